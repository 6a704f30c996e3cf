// Package assoc maintains the co-occurrence association graph.
package assoc

import (
	"context"
	"sort"

	"foldmem/internal/logging"
	"foldmem/internal/store"

	"go.uber.org/zap"
)

// Engine records co-occurrence edges and answers graph queries.
type Engine struct {
	store *store.Store
	log   *zap.Logger
}

// NewEngine builds an association engine.
func NewEngine(s *store.Store) *Engine {
	return &Engine{store: s, log: logging.Get(logging.CategoryAssoc)}
}

// pairsOf expands ids into deduplicated canonical pairs.
func pairsOf(ids []string) []store.CoOccurrencePair {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	sort.Strings(uniq)

	var pairs []store.CoOccurrencePair
	for i := 0; i < len(uniq); i++ {
		for j := i + 1; j < len(uniq); j++ {
			pairs = append(pairs, store.CoOccurrencePair{A: uniq[i], B: uniq[j]})
		}
	}
	return pairs
}

// RecordCoOccurrences upserts one edge per unordered pair drawn from ids.
// Pure side effect; callers run it off the foreground path.
func (e *Engine) RecordCoOccurrences(ctx context.Context, ids []string, conversationID string) error {
	pairs := pairsOf(ids)
	if len(pairs) == 0 {
		return nil
	}
	if err := e.store.UpsertCoOccurrences(ctx, pairs, conversationID); err != nil {
		return err
	}
	e.log.Debug("co-occurrences recorded",
		zap.Int("memories", len(ids)),
		zap.Int("pairs", len(pairs)),
		zap.String("conversation_id", conversationID))
	return nil
}

// Discover returns edges incident to memoryID above minStrength.
func (e *Engine) Discover(ctx context.Context, memoryID string, minStrength float64, limit int) ([]store.Association, error) {
	return e.store.ListAssociations(ctx, memoryID, minStrength, limit)
}

// FindHubs returns the most connected live memories.
func (e *Engine) FindHubs(ctx context.Context, minConnections, limit int) ([]store.Hub, error) {
	return e.store.FindHubs(ctx, minConnections, limit)
}

// WeaveSynthesisLinks connects a synthesis product to each of its
// ancestors: fresh edges start at strength 2.0, existing ones gain 1.0.
func (e *Engine) WeaveSynthesisLinks(ctx context.Context, newID string, ancestorIDs []string, conversationID string) error {
	for _, ancestor := range ancestorIDs {
		if ancestor == "" || ancestor == newID {
			continue
		}
		if err := e.store.UpsertSynthesisLink(ctx, newID, ancestor, conversationID); err != nil {
			return err
		}
	}
	e.log.Debug("synthesis links woven",
		zap.String("memory_id", newID),
		zap.Int("ancestors", len(ancestorIDs)))
	return nil
}
