// Package tier applies the deterministic promotion ladder and its audit.
package tier

import (
	"context"

	"foldmem/internal/logging"
	"foldmem/internal/store"

	"go.uber.org/zap"
)

// Canonical promotion thresholds.
const (
	ThreadThreshold = 3
	StableThreshold = 10
)

// Retrieval-path thresholds. The query hot path debounces promotion by
// requiring more accesses than the canonical ladder; both sets are in
// force, with the canonical ones available to out-of-band promotion.
const (
	RetrievalThreadThreshold = 5
	RetrievalStableThreshold = 20
)

// Engine owns tier transitions. Promotion only ever climbs the ladder
// active -> thread -> stable; the network tier is assigned externally and
// never written here.
type Engine struct {
	store *store.Store
	log   *zap.Logger
}

// NewEngine builds a tier engine.
func NewEngine(s *store.Store) *Engine {
	return &Engine{store: s, log: logging.Get(logging.CategoryTier)}
}

// nextTier returns the tier the canonical ladder prescribes for the given
// access count, or "" when no promotion applies.
func nextTier(current store.Tier, accessCount, threadAt, stableAt int) store.Tier {
	switch current {
	case store.TierActive:
		if accessCount >= threadAt {
			return store.TierThread
		}
	case store.TierThread:
		if accessCount >= stableAt {
			return store.TierStable
		}
	}
	return ""
}

// CheckAndPromote promotes a memory if its access count crosses the
// canonical thresholds. Idempotent: a memory already at or past the
// target tier is left alone and no audit is written.
func (e *Engine) CheckAndPromote(ctx context.Context, memoryID string, accessCount int, current store.Tier) (store.Tier, *store.TierPromotion, error) {
	target := nextTier(current, accessCount, ThreadThreshold, StableThreshold)
	if target == "" {
		return current, nil, nil
	}

	promo, err := e.store.UpdateTier(ctx, memoryID, target, store.PromotionReasonAccessThreshold)
	if err != nil {
		return current, nil, err
	}
	if promo.MemoryID == "" {
		// Concurrent promotion got there first.
		return target, nil, nil
	}

	e.log.Info("memory promoted",
		zap.String("memory_id", memoryID),
		zap.String("from", string(promo.FromTier)),
		zap.String("to", string(target)),
		zap.Int("access_count", accessCount))
	return target, &promo, nil
}

// UpdateTier performs a manual tier move with an audit row.
func (e *Engine) UpdateTier(ctx context.Context, memoryID string, to store.Tier, reason string) (store.TierPromotion, error) {
	if reason == "" {
		reason = store.PromotionReasonManual
	}
	return e.store.UpdateTier(ctx, memoryID, to, reason)
}

// RetrievalCandidates maps freshly updated access counts to the batched
// promotions the retrieval path should apply, using the stricter hot-path
// thresholds.
func RetrievalCandidates(counts map[string]struct {
	Count int
	Tier  store.Tier
}) []store.PromotionRequest {
	var reqs []store.PromotionRequest
	for id, c := range counts {
		target := nextTier(c.Tier, c.Count, RetrievalThreadThreshold, RetrievalStableThreshold)
		if target == "" {
			continue
		}
		reqs = append(reqs, store.PromotionRequest{
			MemoryID: id,
			ToTier:   target,
			Reason:   store.PromotionReasonAccessThreshold,
		})
	}
	return reqs
}

// PromoteBatch applies a batch of promotions in one transaction.
func (e *Engine) PromoteBatch(ctx context.Context, reqs []store.PromotionRequest) ([]store.TierPromotion, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	applied, err := e.store.PromoteBatch(ctx, reqs)
	if err != nil {
		return nil, err
	}
	if len(applied) > 0 {
		e.log.Info("batched promotions applied", zap.Int("count", len(applied)))
	}
	return applied, nil
}

// History returns the promotion audit trail for a memory.
func (e *Engine) History(ctx context.Context, memoryID string, limit int) ([]store.TierPromotion, error) {
	return e.store.ListPromotions(ctx, memoryID, limit)
}
