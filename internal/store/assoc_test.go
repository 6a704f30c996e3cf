package store

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertLive(t *testing.T, s *Store, content string, phi float64) *Memory {
	t.Helper()
	m := testMemory(content, phi)
	require.NoError(t, s.InsertMemory(context.Background(), m))
	return m
}

func TestUpsertCoOccurrencesNewEdge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := insertLive(t, s, "edge a", 1)
	b := insertLive(t, s, "edge b", 1)

	require.NoError(t, s.UpsertCoOccurrences(ctx, []CoOccurrencePair{{A: b.ID, B: a.ID}}, "conv-1"))

	assocs, err := s.ListAssociations(ctx, a.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, assocs, 1)

	got := assocs[0]
	lo, hi := OrderPair(a.ID, b.ID)
	assert.Equal(t, lo, got.MemoryA)
	assert.Equal(t, hi, got.MemoryB)
	assert.Equal(t, 1, got.CoOccurrenceCount)
	assert.Equal(t, 1.0, got.Strength)
	assert.Equal(t, []string{"conv-1"}, got.Contexts)
}

func TestUpsertCoOccurrencesIncrement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := insertLive(t, s, "pair left", 1)
	b := insertLive(t, s, "pair right", 1)
	pair := []CoOccurrencePair{{A: a.ID, B: b.ID}}

	require.NoError(t, s.UpsertCoOccurrences(ctx, pair, "conv-1"))
	require.NoError(t, s.UpsertCoOccurrences(ctx, pair, "conv-2"))

	assocs, err := s.ListAssociations(ctx, a.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, assocs, 1)

	got := assocs[0]
	assert.Equal(t, 2, got.CoOccurrenceCount)
	assert.InDelta(t, math.Log(3)/10, got.Strength, 1e-9)
	assert.ElementsMatch(t, []string{"conv-1", "conv-2"}, got.Contexts)
}

func TestContextsKeepRepeatedConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := insertLive(t, s, "repeat left", 1)
	b := insertLive(t, s, "repeat right", 1)
	pair := []CoOccurrencePair{{A: a.ID, B: b.ID}}

	require.NoError(t, s.UpsertCoOccurrences(ctx, pair, "conv-1"))
	require.NoError(t, s.UpsertCoOccurrences(ctx, pair, "conv-1"))
	require.NoError(t, s.UpsertCoOccurrences(ctx, pair, "conv-2"))

	assocs, err := s.ListAssociations(ctx, a.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, assocs, 1)

	got := assocs[0]
	assert.Equal(t, 3, got.CoOccurrenceCount)
	// One context entry per co-occurrence; repeats are not collapsed.
	assert.ElementsMatch(t, []string{"conv-1", "conv-1", "conv-2"}, got.Contexts)
}

func TestUpsertCoOccurrencesSelfPairSkipped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := insertLive(t, s, "self pair", 1)
	require.NoError(t, s.UpsertCoOccurrences(ctx, []CoOccurrencePair{{A: a.ID, B: a.ID}}, ""))

	n, err := s.CountAssociations(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSynthesisLinkStrength(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := insertLive(t, s, "synthesis source", 2)
	b := insertLive(t, s, "synthesis product", 2)

	require.NoError(t, s.UpsertSynthesisLink(ctx, a.ID, b.ID, "conv-1"))
	assocs, err := s.ListAssociations(ctx, a.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, assocs, 1)
	assert.Equal(t, 2.0, assocs[0].Strength)

	require.NoError(t, s.UpsertSynthesisLink(ctx, b.ID, a.ID, "conv-1"))
	assocs, err = s.ListAssociations(ctx, a.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3.0, assocs[0].Strength)
}

func TestListAssociationsFiltersDeadPartners(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := insertLive(t, s, "survivor", 1)
	b := insertLive(t, s, "doomed", 1)
	require.NoError(t, s.UpsertCoOccurrences(ctx, []CoOccurrencePair{{A: a.ID, B: b.ID}}, ""))
	require.NoError(t, s.SoftDelete(ctx, b.ID))

	assocs, err := s.ListAssociations(ctx, a.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, assocs)

	n, err := s.CountAssociations(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFindHubs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hub := insertLive(t, s, "the hub", 3)
	var pairs []CoOccurrencePair
	for i := 0; i < 3; i++ {
		spoke := insertLive(t, s, "spoke "+string(rune('a'+i)), 1)
		pairs = append(pairs, CoOccurrencePair{A: hub.ID, B: spoke.ID})
	}
	require.NoError(t, s.UpsertCoOccurrences(ctx, pairs, "conv-1"))

	hubs, err := s.FindHubs(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, hubs, 1)
	assert.Equal(t, hub.ID, hubs[0].MemoryID)
	assert.Equal(t, 3, hubs[0].Connections)
	assert.Equal(t, 1.0, hubs[0].AvgStrength)
}

func TestRecomputeStrength(t *testing.T) {
	assert.InDelta(t, math.Log(2)/10, RecomputeStrength(1), 1e-9)
	assert.InDelta(t, math.Log(11)/10, RecomputeStrength(10), 1e-9)
	assert.Equal(t, RecomputeStrength(1), RecomputeStrength(0))
}
