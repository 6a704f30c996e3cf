// Package consolidate merges near-duplicate memories so phi accrues on a
// single resonator instead of fragmenting across copies.
package consolidate

import (
	"context"

	"foldmem/internal/config"
	"foldmem/internal/embedding"
	"foldmem/internal/faults"
	"foldmem/internal/logging"
	"foldmem/internal/store"

	"go.uber.org/zap"
)

// DefaultFragmentationThreshold flags pairs that are close but below the
// merge gate.
const DefaultFragmentationThreshold = 0.92

// fragmentationScanCap bounds the diagnostic pairwise scan.
const fragmentationScanCap = 200

// Engine finds and merges semantic duplicates.
type Engine struct {
	store *store.Store
	tun   *config.Tunables
	log   *zap.Logger
}

// NewEngine builds a consolidation engine.
func NewEngine(s *store.Store, tun *config.Tunables) *Engine {
	return &Engine{store: s, tun: tun, log: logging.Get(logging.CategoryConsolidate)}
}

// FindSemanticDuplicate returns the most similar live memory at or above
// the consolidation gate, excluding excludeID.
func (e *Engine) FindSemanticDuplicate(ctx context.Context, emb []float32, excludeID string) (store.Memory, float64, bool, error) {
	threshold := e.tun.Number(ctx, config.KeySimilarityDedupeGate, config.DefaultConsolidationGate)
	return e.store.FindMostSimilar(ctx, emb, threshold, excludeID)
}

// MergeIntoCentroid absorbs a near-duplicate into the existing memory.
// Phi grows by base*scale where base reflects the variant's catalyst flag
// and scale discounts merges below 0.98 similarity. When newerID is set
// the duplicate row is soft-deleted in the same transaction.
func (e *Engine) MergeIntoCentroid(ctx context.Context, existingID, newerID, newContent string, isCatalyst bool, sim float64) (float64, error) {
	base := 0.1
	if isCatalyst {
		base = 1.0
	}
	scale := 1.0
	if sim < 0.98 {
		scale = 0.9
	}
	contributed := base * scale

	variant := store.SemanticVariant{
		Content:        newContent,
		MergedAt:       e.store.Now(),
		PhiContributed: contributed,
		Similarity:     sim,
		WasCatalyst:    isCatalyst,
	}
	if err := e.store.MergeVariant(ctx, existingID, newerID, variant, isCatalyst); err != nil {
		return 0, err
	}

	e.log.Info("semantic variant merged",
		zap.String("memory_id", existingID),
		zap.Float64("similarity", sim),
		zap.Float64("phi_contributed", contributed),
		zap.Bool("catalyst", isCatalyst))
	return contributed, nil
}

// ConsolidateAfterInsert runs the post-ingest duplicate check for a fresh
// memory. When a live near-duplicate exists, the newer of the two is
// merged into the older so the stable id survives. Returns true when a
// merge happened.
func (e *Engine) ConsolidateAfterInsert(ctx context.Context, insertedID string) (bool, error) {
	inserted, err := e.store.GetMemory(ctx, insertedID)
	if err != nil {
		if faults.Is(err, faults.MemoryNotFound) {
			// Already absorbed by a concurrent consolidation.
			return false, nil
		}
		return false, err
	}

	match, sim, found, err := e.FindSemanticDuplicate(ctx, inserted.Embedding, insertedID)
	if err != nil || !found {
		return false, err
	}

	older, newer := match, inserted
	if inserted.CreatedAt.Before(match.CreatedAt) {
		older, newer = inserted, match
	}

	_, err = e.MergeIntoCentroid(ctx, older.ID, newer.ID, newer.Content, newer.IsCatalyst, sim)
	if err != nil {
		return false, err
	}
	return true, nil
}

// FragmentPair is a diagnostic hit from DetectFragmentation.
type FragmentPair struct {
	IDA, IDB   string
	Similarity float64
}

// DetectFragmentation scans live memory pairs for similarity above the
// given threshold (default when <= 0). Diagnostic only; the scan and the
// output are both bounded.
func (e *Engine) DetectFragmentation(ctx context.Context, threshold float64, limit int) ([]FragmentPair, error) {
	if threshold <= 0 {
		threshold = DefaultFragmentationThreshold
	}
	if limit <= 0 {
		limit = 20
	}

	memories, err := e.store.ListLive(ctx, 0, fragmentationScanCap)
	if err != nil {
		return nil, err
	}

	var pairs []FragmentPair
	for i := 0; i < len(memories) && len(pairs) < limit; i++ {
		for j := i + 1; j < len(memories) && len(pairs) < limit; j++ {
			sim, err := embedding.CosineSimilarity(memories[i].Embedding, memories[j].Embedding)
			if err != nil {
				continue
			}
			if sim >= threshold {
				pairs = append(pairs, FragmentPair{
					IDA:        memories[i].ID,
					IDB:        memories[j].ID,
					Similarity: sim,
				})
			}
		}
	}
	return pairs, nil
}
