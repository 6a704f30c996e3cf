// Package worker supervises background tasks. Consolidation, catalyst
// detection, and co-occurrence recording run here so the foreground call
// returns without waiting, while shutdown still drains every accepted
// task.
package worker

import (
	"context"
	"sync"
	"time"

	"foldmem/internal/logging"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Task is one unit of background work. Errors are logged and swallowed;
// they never reach a foreground caller.
type Task struct {
	Name  string
	Delay time.Duration
	Run   func(ctx context.Context) error
}

// Supervisor owns a bounded queue and a fixed pool of workers. Submit is
// non-blocking: when the queue is full the task is dropped and counted.
type Supervisor struct {
	queue chan Task
	// drain closes when Close starts so queued settle delays are skipped
	// while the tasks themselves still run to completion.
	drain  chan struct{}
	group  *errgroup.Group
	cancel context.CancelFunc
	log    *zap.Logger

	mu        sync.Mutex
	closed    bool
	submitted int64
	dropped   int64
	completed int64
	failed    int64
}

// NewSupervisor starts workers goroutines servicing a queue of queueSize.
func NewSupervisor(queueSize, workers int) *Supervisor {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	s := &Supervisor{
		queue:  make(chan Task, queueSize),
		drain:  make(chan struct{}),
		group:  group,
		cancel: cancel,
		log:    logging.Get(logging.CategoryWorker),
	}

	for i := 0; i < workers; i++ {
		group.Go(func() error {
			s.serve(ctx)
			return nil
		})
	}
	return s
}

func (s *Supervisor) serve(ctx context.Context) {
	for task := range s.queue {
		if task.Delay > 0 {
			select {
			case <-time.After(task.Delay):
			case <-s.drain:
				// Shutdown overrides settle delays; run immediately.
			}
		}

		err := task.Run(ctx)

		s.mu.Lock()
		if err != nil {
			s.failed++
		} else {
			s.completed++
		}
		s.mu.Unlock()

		if err != nil {
			s.log.Warn("background task failed",
				zap.String("task", task.Name), zap.Error(err))
		}
	}
}

// Submit enqueues a task. Returns false when the supervisor is closed or
// the queue is full; the caller never blocks either way.
func (s *Supervisor) Submit(task Task) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.submitted++
	s.mu.Unlock()

	select {
	case s.queue <- task:
		return true
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.log.Warn("background queue full, task dropped", zap.String("task", task.Name))
		return false
	}
}

// Close stops intake and waits for accepted tasks to finish.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.drain)
	close(s.queue)
	_ = s.group.Wait()
	s.cancel()
}

// Stats reports queue counters.
func (s *Supervisor) Stats() (submitted, dropped, completed, failed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted, s.dropped, s.completed, s.failed
}
