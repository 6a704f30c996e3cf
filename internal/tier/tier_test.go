package tier

import (
	"context"
	"testing"

	"foldmem/internal/embedding"
	"foldmem/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:", store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewEngine(s), s
}

func addMemory(t *testing.T, s *store.Store, tier store.Tier) *store.Memory {
	t.Helper()
	vec := make([]float32, embedding.Dim)
	vec[0] = 1
	content := uuid.NewString()
	m := &store.Memory{
		ID:          uuid.NewString(),
		Content:     content,
		ContentHash: embedding.ContentHash(content),
		Embedding:   vec,
		Tier:        tier,
	}
	require.NoError(t, s.InsertMemory(context.Background(), m))
	return m
}

func TestCheckAndPromoteLadder(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	m := addMemory(t, s, store.TierActive)

	// Below threshold nothing moves.
	got, promo, err := e.CheckAndPromote(ctx, m.ID, 2, store.TierActive)
	require.NoError(t, err)
	assert.Equal(t, store.TierActive, got)
	assert.Nil(t, promo)

	got, promo, err = e.CheckAndPromote(ctx, m.ID, 3, store.TierActive)
	require.NoError(t, err)
	assert.Equal(t, store.TierThread, got)
	require.NotNil(t, promo)
	assert.Equal(t, store.PromotionReasonAccessThreshold, promo.Reason)
	assert.Equal(t, 0, promo.AccessCountAtPromo)

	// Thread holds until the stable threshold.
	got, promo, err = e.CheckAndPromote(ctx, m.ID, 9, store.TierThread)
	require.NoError(t, err)
	assert.Equal(t, store.TierThread, got)
	assert.Nil(t, promo)

	got, _, err = e.CheckAndPromote(ctx, m.ID, 10, store.TierThread)
	require.NoError(t, err)
	assert.Equal(t, store.TierStable, got)

	// Stable is terminal for the ladder; network is never written.
	got, promo, err = e.CheckAndPromote(ctx, m.ID, 100, store.TierStable)
	require.NoError(t, err)
	assert.Equal(t, store.TierStable, got)
	assert.Nil(t, promo)
}

func TestCheckAndPromoteIdempotent(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	m := addMemory(t, s, store.TierThread)

	// The caller's view is stale: it thinks the memory is still active.
	got, promo, err := e.CheckAndPromote(ctx, m.ID, 3, store.TierActive)
	require.NoError(t, err)
	assert.Equal(t, store.TierThread, got)
	assert.Nil(t, promo)

	audits, err := e.History(ctx, m.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, audits)
}

func TestRetrievalCandidates(t *testing.T) {
	counts := map[string]struct {
		Count int
		Tier  store.Tier
	}{
		"a": {Count: 5, Tier: store.TierActive},  // promotes at the hot-path threshold
		"b": {Count: 4, Tier: store.TierActive},  // canonical threshold alone is not enough here
		"c": {Count: 20, Tier: store.TierThread}, // thread -> stable
		"d": {Count: 50, Tier: store.TierStable}, // terminal
		"e": {Count: 50, Tier: store.TierNetwork},
	}

	reqs := RetrievalCandidates(counts)
	targets := map[string]store.Tier{}
	for _, r := range reqs {
		targets[r.MemoryID] = r.ToTier
		assert.Equal(t, store.PromotionReasonAccessThreshold, r.Reason)
	}
	assert.Equal(t, map[string]store.Tier{
		"a": store.TierThread,
		"c": store.TierStable,
	}, targets)
}

func TestPromoteBatchWritesOneAuditEach(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	a := addMemory(t, s, store.TierActive)
	b := addMemory(t, s, store.TierThread)

	applied, err := e.PromoteBatch(ctx, []store.PromotionRequest{
		{MemoryID: a.ID, ToTier: store.TierThread, Reason: store.PromotionReasonAccessThreshold},
		{MemoryID: b.ID, ToTier: store.TierStable, Reason: store.PromotionReasonAccessThreshold},
	})
	require.NoError(t, err)
	assert.Len(t, applied, 2)

	for _, m := range []*store.Memory{a, b} {
		audits, err := e.History(ctx, m.ID, 10)
		require.NoError(t, err)
		assert.Len(t, audits, 1)
	}
}

func TestManualUpdateTier(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	m := addMemory(t, s, store.TierActive)
	promo, err := e.UpdateTier(ctx, m.ID, store.TierNetwork, "")
	require.NoError(t, err)
	assert.Equal(t, store.PromotionReasonManual, promo.Reason)

	got, err := s.GetMemory(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TierNetwork, got.Tier)
}
