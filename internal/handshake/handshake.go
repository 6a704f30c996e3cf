// Package handshake produces continuity snapshots: short first-person
// prompts that carry a session's structural state across the gap to the
// next one. Snapshots persist as ghost logs and are cached in three
// windows.
package handshake

import (
	"context"
	"math"
	"sort"
	"time"

	"foldmem/internal/logging"
	"foldmem/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Cache windows per scope.
const (
	ConversationWindow = 15 * time.Minute
	SessionWindow      = 60 * time.Minute
	GlobalWindow       = 24 * time.Hour
)

// Cache reasons reported on a hit.
const (
	ReasonPerConversation = "per_conversation"
	ReasonPerSession      = "per_session"
	ReasonGlobalFallback  = "global_fallback"
)

// Ranking and selection bounds.
const (
	topPhiCount       = 3
	researchThreads   = 3
	foldMemoryCount   = 2
	globalPhiFloor    = 2.0
	candidateScanCap  = 200
	categoryResearch  = "research_thread"
	categoryFold      = "the_fold"
	sourceFoldEngine  = "autonomous_synthesis"
	synthesisStandard = "standard"
)

// Snapshot is a handshake result: the ghost plus cache provenance.
type Snapshot struct {
	Ghost       store.GhostLog
	Cached      bool
	CachedFor   time.Duration
	CacheReason string
}

// Service assembles and caches continuity snapshots.
type Service struct {
	store *store.Store
	log   *zap.Logger
}

// NewService builds a handshake service.
func NewService(s *store.Store) *Service {
	return &Service{store: s, log: logging.Get(logging.CategoryHandshake)}
}

// SynthesisWeight ranks a memory for handshake inclusion. Conversation
// scope doubles phi for matching memories; global scope instead requires
// phi at or above the floor (enforced by the caller).
func SynthesisWeight(phi float64, ageDays float64, conversationBoost bool) float64 {
	if conversationBoost {
		phi *= 2
	}
	recency := math.Max(0.1, 1-ageDays/30)
	return 0.7*phi + 0.3*(recency*5)
}

// Get returns a continuity snapshot for the conversation scope, serving
// from cache inside the window unless the state changed or force is set.
func (h *Service) Get(ctx context.Context, conversationID string, force bool) (Snapshot, error) {
	if !force {
		if snap, ok, err := h.cached(ctx, conversationID); err == nil && ok {
			return snap, nil
		} else if err != nil {
			h.log.Warn("handshake cache lookup failed", zap.Error(err))
		}
	}
	return h.Generate(ctx, conversationID)
}

// cached looks up a usable ghost: conversation scope in the 15-minute
// window, the same ghost under the looser 60-minute session window, then
// the global fallback. A catalyst or phi >= 4 memory added in scope since
// the ghost was created invalidates it regardless of window age.
func (h *Service) cached(ctx context.Context, conversationID string) (Snapshot, bool, error) {
	now := h.store.Now()

	if conversationID != "" {
		g, ok, err := h.store.LatestGhost(ctx, conversationID)
		if err != nil {
			return Snapshot{}, false, err
		}
		if ok && now.Sub(g.CreatedAt) < SessionWindow {
			if fresh, err := h.unchanged(ctx, g.CreatedAt, conversationID); err == nil && fresh {
				reason := ReasonPerConversation
				if now.Sub(g.CreatedAt) >= ConversationWindow {
					reason = ReasonPerSession
				}
				return Snapshot{
					Ghost:       g,
					Cached:      true,
					CachedFor:   now.Sub(g.CreatedAt),
					CacheReason: reason,
				}, true, nil
			}
			return Snapshot{}, false, nil
		}
	}

	g, ok, err := h.store.LatestGhost(ctx, "")
	if err != nil {
		return Snapshot{}, false, err
	}
	if ok && now.Sub(g.CreatedAt) < GlobalWindow {
		if fresh, err := h.unchanged(ctx, g.CreatedAt, conversationID); err == nil && fresh {
			return Snapshot{
				Ghost:       g,
				Cached:      true,
				CachedFor:   now.Sub(g.CreatedAt),
				CacheReason: ReasonGlobalFallback,
			}, true, nil
		}
	}
	return Snapshot{}, false, nil
}

func (h *Service) unchanged(ctx context.Context, since time.Time, conversationID string) (bool, error) {
	changed, err := h.store.StateChangedSince(ctx, since, conversationID)
	return !changed, err
}

// Generate assembles a fresh snapshot and persists it as a ghost log.
func (h *Service) Generate(ctx context.Context, conversationID string) (Snapshot, error) {
	now := h.store.Now()

	top, err := h.topPhi(ctx, conversationID)
	if err != nil {
		return Snapshot{}, err
	}

	threads, err := h.store.ListByCategory(ctx, categoryResearch,
		[]store.Tier{store.TierActive, store.TierThread}, researchThreads)
	if err != nil {
		h.log.Warn("research thread lookup failed", zap.Error(err))
	}

	reflection, ok, err := h.store.LatestReflection(ctx, conversationID)
	if err != nil || !ok {
		reflection, _, _ = h.store.LatestReflection(ctx, "")
	}

	foldSince := now.Add(-GlobalWindow)
	if prev, ok, err := h.store.LatestGhost(ctx, ""); err == nil && ok {
		foldSince = prev.CreatedAt
	}
	foldMemories, err := h.store.RecentBySource(ctx, categoryFold, sourceFoldEngine, foldSince, foldMemoryCount)
	if err != nil {
		h.log.Warn("fold memory lookup failed", zap.Error(err))
	}

	prompt := compose(top, threads, reflection, foldMemories)

	ids := make([]string, len(top))
	phis := make([]float64, len(top))
	for i, m := range top {
		ids[i] = m.ID
		phis[i] = m.Phi
	}

	contextType := store.ContextTypeGlobal
	if conversationID != "" {
		contextType = store.ContextTypeConversation
	}

	ghost := &store.GhostLog{
		ID:              uuid.NewString(),
		PromptText:      prompt,
		TopPhiMemories:  ids,
		TopPhiValues:    phis,
		SynthesisMethod: synthesisStandard,
		ConversationID:  conversationID,
		ContextType:     contextType,
	}
	if err := h.store.InsertGhost(ctx, ghost); err != nil {
		return Snapshot{}, err
	}

	h.log.Info("handshake generated",
		zap.String("ghost_id", ghost.ID),
		zap.String("conversation_id", conversationID),
		zap.Int("top_phi", len(top)))
	return Snapshot{Ghost: *ghost}, nil
}

// topPhi selects the trio driving the snapshot, ranked by synthesis
// weight.
func (h *Service) topPhi(ctx context.Context, conversationID string) ([]store.Memory, error) {
	minPhi := 0.0
	if conversationID == "" {
		minPhi = globalPhiFloor
	}
	candidates, err := h.store.ListLive(ctx, minPhi, candidateScanCap)
	if err != nil {
		return nil, err
	}

	now := h.store.Now()
	type ranked struct {
		m store.Memory
		w float64
	}
	rankedList := make([]ranked, 0, len(candidates))
	for _, m := range candidates {
		ageDays := now.Sub(m.CreatedAt).Hours() / 24
		boost := conversationID != "" && m.ConversationID == conversationID
		rankedList = append(rankedList, ranked{m, SynthesisWeight(m.Phi, ageDays, boost)})
	}
	sort.Slice(rankedList, func(i, j int) bool { return rankedList[i].w > rankedList[j].w })

	n := topPhiCount
	if n > len(rankedList) {
		n = len(rankedList)
	}
	out := make([]store.Memory, n)
	for i := 0; i < n; i++ {
		out[i] = rankedList[i].m
	}
	return out, nil
}

// CleanupExpired removes ghosts past their expiry.
func (h *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return h.store.CleanupExpiredGhosts(ctx)
}
