// Package logging provides category-scoped structured logging for foldmem.
// Each subsystem logs through a named zap sub-logger so store, embedding,
// and synthesis activity can be filtered independently.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryBoot        Category = "boot"
	CategoryStore       Category = "store"
	CategoryEmbedding   Category = "embedding"
	CategoryMemory      Category = "memory"
	CategoryResonance   Category = "resonance"
	CategoryTier        Category = "tier"
	CategoryAssoc       Category = "assoc"
	CategoryConsolidate Category = "consolidate"
	CategoryHandshake   Category = "handshake"
	CategoryFold        Category = "fold"
	CategoryWorker      Category = "worker"
)

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	loggers = make(map[Category]*zap.Logger)
)

// Initialize installs the process-wide root logger. debug enables
// development encoding and Debug level; otherwise production JSON at Info.
func Initialize(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	SetRoot(logger)
	return nil
}

// SetRoot replaces the root logger. Tests pass zaptest or zap.NewNop().
func SetRoot(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = zap.NewNop()
	}
	root = logger
	loggers = make(map[Category]*zap.Logger)
}

// Get returns the named sub-logger for a category.
func Get(cat Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	l := root.Named(string(cat))
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries. Safe to call on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
