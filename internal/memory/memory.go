// Package memory is the foreground service: ingest, retrieval, and
// bootstrap, with consolidation, catalyst detection, and co-occurrence
// recording handed to the background supervisor.
package memory

import (
	"context"
	"math"
	"time"
	"unicode/utf8"

	"foldmem/internal/assoc"
	"foldmem/internal/consolidate"
	"foldmem/internal/embedding"
	"foldmem/internal/faults"
	"foldmem/internal/handshake"
	"foldmem/internal/logging"
	"foldmem/internal/resonance"
	"foldmem/internal/store"
	"foldmem/internal/tier"
	"foldmem/internal/worker"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Query defaults.
const (
	DefaultQueryLimit     = 20
	DefaultQueryThreshold = 0.5
	DefaultBootstrapLimit = 50
)

// DefaultConsolidationDelay lets the inserting transaction settle before
// the duplicate scan runs.
const DefaultConsolidationDelay = time.Second

// Service wires the engines behind the public memory operations.
type Service struct {
	store       *store.Store
	embed       embedding.Engine
	tiers       *tier.Engine
	resonance   *resonance.Engine
	assoc       *assoc.Engine
	consolidate *consolidate.Engine
	handshake   *handshake.Service
	workers     *worker.Supervisor

	consolidationDelay time.Duration
	log                *zap.Logger
}

// Deps collects the service's collaborators.
type Deps struct {
	Store       *store.Store
	Embed       embedding.Engine
	Tiers       *tier.Engine
	Resonance   *resonance.Engine
	Assoc       *assoc.Engine
	Consolidate *consolidate.Engine
	Handshake   *handshake.Service
	Workers     *worker.Supervisor

	// ConsolidationDelay defaults to one second when zero.
	ConsolidationDelay time.Duration
}

// NewService builds the memory service.
func NewService(d Deps) *Service {
	delay := d.ConsolidationDelay
	if delay == 0 {
		delay = DefaultConsolidationDelay
	}
	return &Service{
		store:              d.Store,
		embed:              d.Embed,
		tiers:              d.Tiers,
		resonance:          d.Resonance,
		assoc:              d.Assoc,
		consolidate:        d.Consolidate,
		handshake:          d.Handshake,
		workers:            d.Workers,
		consolidationDelay: delay,
		log:                logging.Get(logging.CategoryMemory),
	}
}

// AddRequest describes one ingest.
type AddRequest struct {
	Content        string
	Category       string
	Tags           []string
	Source         string
	IsCatalyst     bool
	ConversationID string
}

// AddResult reports the ingest outcome.
type AddResult struct {
	Memory      store.Memory
	IsDuplicate bool
	ExactMatch  bool
	IsCatalyst  bool
}

// Add ingests a text fragment: hash, embed, exact-dedup, insert, then
// background consolidation and catalyst detection.
func (s *Service) Add(ctx context.Context, req AddRequest) (AddResult, error) {
	if req.Content == "" {
		return AddResult{}, faults.New(faults.InvalidInput, "empty content")
	}
	if utf8.RuneCountInString(req.Content) > store.MaxContentLen {
		return AddResult{}, faults.Newf(faults.InvalidInput,
			"content exceeds %d codepoints", store.MaxContentLen)
	}

	hash := embedding.ContentHash(req.Content)

	emb, err := s.embed.Embed(ctx, req.Content)
	if err != nil {
		if faults.Is(err, faults.InvalidInput) {
			return AddResult{}, err
		}
		return AddResult{}, faults.Wrap(faults.EmbedFailed, "embed content", err)
	}

	if existing, ok, err := s.store.GetLiveByHash(ctx, hash); err != nil {
		return AddResult{}, err
	} else if ok {
		touched, err := s.store.TouchDuplicate(ctx, existing.ID, req.ConversationID)
		if err != nil {
			return AddResult{}, err
		}
		s.log.Debug("exact duplicate", zap.String("memory_id", existing.ID))
		return AddResult{Memory: touched, IsDuplicate: true, ExactMatch: true, IsCatalyst: touched.IsCatalyst}, nil
	}

	phi := 0.0
	if req.IsCatalyst {
		phi = 1.0
	}
	m := &store.Memory{
		ID:             uuid.NewString(),
		Content:        req.Content,
		ContentHash:    hash,
		Embedding:      emb,
		Tier:           store.TierActive,
		Category:       req.Category,
		Tags:           req.Tags,
		Source:         req.Source,
		ConversationID: req.ConversationID,
		Phi:            phi,
		IsCatalyst:     req.IsCatalyst,
	}
	if err := s.store.InsertMemory(ctx, m); err != nil {
		if faults.Is(err, faults.Conflict) {
			// Lost a race with an identical insert; serve the winner.
			if existing, ok, lookupErr := s.store.GetLiveByHash(ctx, hash); lookupErr == nil && ok {
				touched, touchErr := s.store.TouchDuplicate(ctx, existing.ID, req.ConversationID)
				if touchErr == nil {
					return AddResult{Memory: touched, IsDuplicate: true, ExactMatch: true, IsCatalyst: touched.IsCatalyst}, nil
				}
			}
		}
		return AddResult{}, err
	}

	s.scheduleIngestFollowup(m.ID, req.IsCatalyst)

	s.log.Info("memory added",
		zap.String("memory_id", m.ID),
		zap.String("category", req.Category),
		zap.Bool("catalyst", req.IsCatalyst))
	return AddResult{Memory: *m, IsCatalyst: req.IsCatalyst}, nil
}

// scheduleIngestFollowup hands consolidation and catalyst detection to
// the supervisor. Their failures are logged there and never surface.
func (s *Service) scheduleIngestFollowup(memoryID string, isCatalyst bool) {
	s.workers.Submit(worker.Task{
		Name:  "consolidate",
		Delay: s.consolidationDelay,
		Run: func(ctx context.Context) error {
			_, err := s.consolidate.ConsolidateAfterInsert(ctx, memoryID)
			return err
		},
	})

	if !isCatalyst {
		s.workers.Submit(worker.Task{
			Name: "catalyst-detect",
			Run: func(ctx context.Context) error {
				potential, _, err := s.resonance.DetectPotentialCatalyst(ctx, memoryID)
				if err != nil || !potential {
					return err
				}
				return s.resonance.MarkCatalyst(ctx, memoryID)
			},
		})
	}
}

// QueryRequest describes one retrieval.
type QueryRequest struct {
	Text                string
	Limit               int
	SimilarityThreshold float64
	Tiers               []store.Tier
	ConversationID      string
}

// QueryResult carries the ranked memories plus retrieval side effects.
type QueryResult struct {
	Results    []store.SearchResult
	QueryTime  time.Duration
	Promotions []store.TierPromotion
}

// Query retrieves by structural weight, applies the batched access and
// phi updates, promotes across the hot-path thresholds, and records
// co-occurrences in the background.
func (s *Service) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	started := s.store.Now()

	if req.Limit <= 0 {
		req.Limit = DefaultQueryLimit
	}
	if req.SimilarityThreshold == 0 {
		req.SimilarityThreshold = DefaultQueryThreshold
	}

	queryEmb, err := s.embed.Embed(ctx, req.Text)
	if err != nil {
		if faults.Is(err, faults.InvalidInput) {
			return QueryResult{}, err
		}
		return QueryResult{}, faults.Wrap(faults.EmbedFailed, "embed query", err)
	}

	results, err := s.store.Search(ctx, queryEmb, req.SimilarityThreshold, req.Tiers, req.Limit)
	if err != nil {
		return QueryResult{}, err
	}
	if len(results) == 0 {
		return QueryResult{QueryTime: s.store.Now().Sub(started)}, nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Memory.ID
	}

	if err := s.store.BatchAccessUpdate(ctx, ids, req.ConversationID, resonance.NormalDelta); err != nil {
		return QueryResult{}, err
	}
	if err := s.store.AppendAccess(ctx, ids); err != nil {
		s.log.Warn("access trace append failed", zap.Error(err))
	}

	counts, err := s.store.AccessCounts(ctx, ids)
	if err != nil {
		return QueryResult{}, err
	}
	promotions, err := s.tiers.PromoteBatch(ctx, tier.RetrievalCandidates(counts))
	if err != nil {
		return QueryResult{}, err
	}

	// Reflect the batched side effects in the returned rows.
	promoted := make(map[string]store.Tier, len(promotions))
	for _, p := range promotions {
		promoted[p.MemoryID] = p.ToTier
	}
	for i := range results {
		m := &results[i].Memory
		m.AccessCount++
		m.Phi = math.Min(m.Phi+resonance.NormalDelta, store.MaxPhi)
		if t, ok := promoted[m.ID]; ok {
			m.Tier = t
		}
	}

	if req.ConversationID != "" && len(ids) > 1 {
		convID := req.ConversationID
		coIDs := append([]string(nil), ids...)
		s.workers.Submit(worker.Task{
			Name: "co-occurrence",
			Run: func(ctx context.Context) error {
				return s.assoc.RecordCoOccurrences(ctx, coIDs, convID)
			},
		})
	}

	return QueryResult{
		Results:    results,
		QueryTime:  s.store.Now().Sub(started),
		Promotions: promotions,
	}, nil
}

// BootstrapRequest describes a session-start snapshot.
type BootstrapRequest struct {
	ConversationID string
	Limit          int
	IncludeActive  bool
	IncludeThread  bool
	IncludeStable  bool
}

// BootstrapResult is the read-only tiered snapshot plus an optional
// continuity handshake.
type BootstrapResult struct {
	ByTier       map[store.Tier][]store.Memory
	Distribution map[store.Tier]int
	Handshake    *handshake.Snapshot
}

// Bootstrap returns the session-start view: all active memories, then
// thread and stable shares of the remaining budget. No access state is
// touched; handshake failures are swallowed.
func (s *Service) Bootstrap(ctx context.Context, req BootstrapRequest) (BootstrapResult, error) {
	if req.Limit <= 0 {
		req.Limit = DefaultBootstrapLimit
	}

	snap, err := s.store.TieredSnapshot(ctx, req.Limit)
	if err != nil {
		return BootstrapResult{}, err
	}

	out := BootstrapResult{
		ByTier:       make(map[store.Tier][]store.Memory),
		Distribution: make(map[store.Tier]int),
	}

	var active []store.Memory
	if req.IncludeActive {
		active = snap[store.TierActive]
		out.ByTier[store.TierActive] = active
	}

	remaining := req.Limit - len(active)
	if remaining < 0 {
		remaining = 0
	}
	threadCap := int(math.Ceil(0.7 * float64(remaining)))
	stableCap := int(math.Floor(0.3 * float64(remaining)))

	if req.IncludeThread {
		out.ByTier[store.TierThread] = clip(snap[store.TierThread], threadCap)
	}
	if req.IncludeStable {
		out.ByTier[store.TierStable] = clip(snap[store.TierStable], stableCap)
	}
	for t, ms := range out.ByTier {
		out.Distribution[t] = len(ms)
	}

	if hs, err := s.handshake.Get(ctx, req.ConversationID, false); err != nil {
		s.log.Warn("handshake unavailable on bootstrap", zap.Error(err))
	} else {
		out.Handshake = &hs
	}

	return out, nil
}

func clip(ms []store.Memory, n int) []store.Memory {
	if len(ms) > n {
		return ms[:n]
	}
	return ms
}

// SearchText runs a full-text match over memory content, best match
// first. Read-only: no access counts, phi, or promotions are touched.
func (s *Service) SearchText(ctx context.Context, query string, limit int) ([]store.Memory, error) {
	return s.store.SearchText(ctx, query, limit)
}

// Delete soft-deletes a memory.
func (s *Service) Delete(ctx context.Context, memoryID string) error {
	return s.store.SoftDelete(ctx, memoryID)
}

// Get fetches one live memory.
func (s *Service) Get(ctx context.Context, memoryID string) (store.Memory, error) {
	return s.store.GetMemory(ctx, memoryID)
}

// Reflect writes a session-end reflection for handshake composition.
func (s *Service) Reflect(ctx context.Context, conversationID string, metrics map[string]float64, insights, recommendations []string) (store.Reflection, error) {
	r := &store.Reflection{
		ID:              uuid.NewString(),
		ReflectionType:  "session_end",
		ConversationID:  conversationID,
		Metrics:         metrics,
		Insights:        insights,
		Recommendations: recommendations,
	}
	if err := s.store.WriteReflection(ctx, r); err != nil {
		return store.Reflection{}, err
	}
	return *r, nil
}

// Close drains the background supervisor.
func (s *Service) Close() {
	s.workers.Close()
}
