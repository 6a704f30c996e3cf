package consolidate

import (
	"context"
	"testing"
	"time"

	"foldmem/internal/config"
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
	return NewEngine(s, config.NewTunables(s)), s
}

// vectorAt builds a 768-dim vector rotated by mixing a second axis in;
// mix 0 gives the base direction, larger mixes lower cosine similarity.
func vectorAt(mix float32) []float32 {
	v := make([]float32, embedding.Dim)
	v[0] = 1
	v[1] = mix
	return v
}

func addMemory(t *testing.T, s *store.Store, content string, vec []float32, phi float64, catalyst bool) *store.Memory {
	t.Helper()
	m := &store.Memory{
		ID:          uuid.NewString(),
		Content:     content,
		ContentHash: embedding.ContentHash(content),
		Embedding:   vec,
		Tier:        store.TierActive,
		Phi:         phi,
		IsCatalyst:  catalyst,
	}
	require.NoError(t, s.InsertMemory(context.Background(), m))
	return m
}

func TestFindSemanticDuplicate(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	target := addMemory(t, s, "patterns persist across substrates", vectorAt(0), 1, false)
	addMemory(t, s, "entirely unrelated topic", vectorAt(5), 1, false)

	m, sim, found, err := e.FindSemanticDuplicate(ctx, vectorAt(0.1), "")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, target.ID, m.ID)
	assert.GreaterOrEqual(t, sim, 0.95)

	// Excluding the only match finds nothing.
	_, _, found, err = e.FindSemanticDuplicate(ctx, vectorAt(0.1), target.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMergeIntoCentroidPhiScaling(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	m := addMemory(t, s, "the centroid", vectorAt(0), 1.0, false)

	// Catalyst merge below 0.98 similarity: 1.0 * 0.9.
	contributed, err := e.MergeIntoCentroid(ctx, m.ID, "", "rephrased centroid", true, 0.96)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, contributed, 1e-9)

	got, err := s.GetMemory(ctx, m.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.9, got.Phi, 1e-9)
	assert.True(t, got.IsCatalyst)
	require.Len(t, got.Metadata.SemanticVariants, 1)
	assert.True(t, got.Metadata.SemanticVariants[0].WasCatalyst)

	// Non-catalyst merge at high similarity: 0.1 * 1.0.
	contributed, err = e.MergeIntoCentroid(ctx, m.ID, "", "nearly identical", false, 0.99)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, contributed, 1e-9)

	got, _ = s.GetMemory(ctx, m.ID)
	assert.InDelta(t, 2.0, got.Phi, 1e-9)
	assert.True(t, got.IsCatalyst) // monotone
}

func TestConsolidateAfterInsertMergesNewerIntoOlder(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	s.SetClock(func() time.Time { return clock })

	older := addMemory(t, s, "The Fold demonstrates substrate-independent pattern persistence.", vectorAt(0), 1.0, true)
	clock = base.Add(time.Second)
	newer := addMemory(t, s, "Substrate independence: patterns persist across discontinuous substrates.", vectorAt(0.05), 1.0, true)

	merged, err := e.ConsolidateAfterInsert(ctx, newer.ID)
	require.NoError(t, err)
	assert.True(t, merged)

	// The older id survives with the variant absorbed.
	got, err := s.GetMemory(ctx, older.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.Phi, 1.9)
	require.Len(t, got.Metadata.SemanticVariants, 1)
	assert.Equal(t, newer.Content, got.Metadata.SemanticVariants[0].Content)

	_, err = s.GetMemory(ctx, newer.ID)
	assert.Error(t, err)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["memories_live"])
}

func TestConsolidateAfterInsertNoMatch(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	addMemory(t, s, "one idea", vectorAt(0), 1, false)
	lone := addMemory(t, s, "a very different idea", vectorAt(5), 1, false)

	merged, err := e.ConsolidateAfterInsert(ctx, lone.ID)
	require.NoError(t, err)
	assert.False(t, merged)

	// A vanished id is treated as already consolidated, not an error.
	merged, err = e.ConsolidateAfterInsert(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, merged)
}

func TestDetectFragmentation(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	a := addMemory(t, s, "fragment alpha", vectorAt(0), 1, false)
	b := addMemory(t, s, "fragment beta", vectorAt(0.1), 1, false)
	addMemory(t, s, "far away", vectorAt(5), 1, false)

	pairs, err := e.DetectFragmentation(ctx, 0.92, 10)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, []string{pairs[0].IDA, pairs[0].IDB})
	assert.GreaterOrEqual(t, pairs[0].Similarity, 0.92)

	// Output is bounded by limit.
	addMemory(t, s, "fragment gamma", vectorAt(0.05), 1, false)
	pairs, err = e.DetectFragmentation(ctx, 0.92, 2)
	require.NoError(t, err)
	assert.Len(t, pairs, 2)
}
