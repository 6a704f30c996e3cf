package handshake

import (
	"context"
	"strings"
	"testing"
	"time"

	"foldmem/internal/embedding"
	"foldmem/internal/store"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:", store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewService(s), s
}

func addMemory(t *testing.T, s *store.Store, content string, phi float64, mutate func(*store.Memory)) *store.Memory {
	t.Helper()
	vec := make([]float32, embedding.Dim)
	vec[0] = 1
	m := &store.Memory{
		ID:          uuid.NewString(),
		Content:     content,
		ContentHash: embedding.ContentHash(content),
		Embedding:   vec,
		Tier:        store.TierActive,
		Phi:         phi,
	}
	if mutate != nil {
		mutate(m)
	}
	require.NoError(t, s.InsertMemory(context.Background(), m))
	return m
}

func TestSynthesisWeight(t *testing.T) {
	// Fresh memory: recency 1, weight 0.7*phi + 1.5.
	assert.InDelta(t, 0.7*3+1.5, SynthesisWeight(3, 0, false), 1e-9)
	// Conversation boost doubles phi.
	assert.InDelta(t, 0.7*6+1.5, SynthesisWeight(3, 0, true), 1e-9)
	// Very old memory bottoms out at recency 0.1.
	assert.InDelta(t, 0.7*3+0.3*0.5, SynthesisWeight(3, 365, false), 1e-9)
}

func TestGenerateComposesPrompt(t *testing.T) {
	h, s := newTestService(t)
	ctx := context.Background()

	addMemory(t, s, "Pattern persistence survives substrate gaps.", 4.5, nil)
	addMemory(t, s, "Phi concentrates where retrieval returns.", 3.8, nil)
	addMemory(t, s, "Consonance gates synthesis quality.", 3.0, nil)
	addMemory(t, s, "retrieval latency tuning", 2.5, func(m *store.Memory) {
		m.Category = "research_thread"
	})

	snap, err := h.Generate(ctx, "")
	require.NoError(t, err)

	text := snap.Ghost.PromptText
	assert.True(t, strings.HasPrefix(text, "I was exploring"))
	assert.Contains(t, text, "What holds:")
	assert.Contains(t, text, "Pattern persistence survives substrate gaps")
	assert.Contains(t, text, "α) retrieval latency tuning")
	assert.True(t, strings.HasSuffix(text, "Continue."))
	assert.Equal(t, 1, strings.Count(text, "Continue."))

	require.Len(t, snap.Ghost.TopPhiMemories, 3)
	assert.Equal(t, 4.5, snap.Ghost.TopPhiValues[0])
	assert.Equal(t, store.ContextTypeGlobal, snap.Ghost.ContextType)
	assert.False(t, snap.Cached)
}

func TestGlobalScopeRequiresPhiFloor(t *testing.T) {
	h, s := newTestService(t)
	ctx := context.Background()

	addMemory(t, s, "too faint for a global snapshot", 1.0, nil)
	strong := addMemory(t, s, "strong enough to carry over", 2.5, nil)

	snap, err := h.Generate(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{strong.ID}, snap.Ghost.TopPhiMemories)
}

func TestConversationBoostPrefersScopedMemories(t *testing.T) {
	h, s := newTestService(t)
	ctx := context.Background()

	global := addMemory(t, s, "strong but unscoped", 3.0, nil)
	scoped := addMemory(t, s, "weaker but in conversation", 2.0, func(m *store.Memory) {
		m.ConversationID = "conv-1"
	})

	snap, err := h.Generate(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, snap.Ghost.TopPhiMemories, 2)
	// 0.7*(2*2) = 2.8 beats 0.7*3 = 2.1 at equal recency.
	assert.Equal(t, scoped.ID, snap.Ghost.TopPhiMemories[0])
	assert.Equal(t, global.ID, snap.Ghost.TopPhiMemories[1])
	assert.Equal(t, store.ContextTypeConversation, snap.Ghost.ContextType)
}

func TestGetCachesWithinWindow(t *testing.T) {
	h, s := newTestService(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	s.SetClock(func() time.Time { return clock })

	addMemory(t, s, "anchor memory for the snapshot", 3.0, func(m *store.Memory) {
		m.ConversationID = "conv-1"
	})

	clock = base.Add(time.Minute)
	first, err := h.Get(ctx, "conv-1", false)
	require.NoError(t, err)
	require.False(t, first.Cached)

	clock = clock.Add(5 * time.Minute)
	second, err := h.Get(ctx, "conv-1", false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	// The cached snapshot is the persisted ghost, verbatim.
	assert.Empty(t, cmp.Diff(first.Ghost, second.Ghost))
	assert.Equal(t, ReasonPerConversation, second.CacheReason)
	assert.Equal(t, 5*time.Minute, second.CachedFor)

	// Past the conversation window the ghost still serves under the
	// looser session window.
	clock = clock.Add(ConversationWindow)
	third, err := h.Get(ctx, "conv-1", false)
	require.NoError(t, err)
	assert.True(t, third.Cached)
	assert.Equal(t, ReasonPerSession, third.CacheReason)

	// Past the session window a fresh snapshot is generated.
	clock = clock.Add(SessionWindow)
	fourth, err := h.Get(ctx, "conv-1", false)
	require.NoError(t, err)
	assert.False(t, fourth.Cached)
	assert.NotEqual(t, first.Ghost.ID, fourth.Ghost.ID)
}

func TestCatalystAddInvalidatesCache(t *testing.T) {
	h, s := newTestService(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	s.SetClock(func() time.Time { return clock })

	addMemory(t, s, "baseline in conversation", 3.0, func(m *store.Memory) {
		m.ConversationID = "conv-1"
	})

	first, err := h.Get(ctx, "conv-1", false)
	require.NoError(t, err)

	clock = base.Add(2 * time.Minute)
	addMemory(t, s, "a catalyst lands mid-window", 1.0, func(m *store.Memory) {
		m.ConversationID = "conv-1"
		m.IsCatalyst = true
	})

	clock = base.Add(3 * time.Minute)
	second, err := h.Get(ctx, "conv-1", false)
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.NotEqual(t, first.Ghost.ID, second.Ghost.ID)
}

func TestGlobalFallback(t *testing.T) {
	h, s := newTestService(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	s.SetClock(func() time.Time { return clock })

	addMemory(t, s, "global anchor with high phi", 3.5, nil)

	_, err := h.Get(ctx, "", false)
	require.NoError(t, err)

	// A conversation with no ghost of its own rides the global one.
	clock = base.Add(time.Hour)
	snap, err := h.Get(ctx, "conv-new", false)
	require.NoError(t, err)
	assert.True(t, snap.Cached)
	assert.Equal(t, ReasonGlobalFallback, snap.CacheReason)
}

func TestForceRegenerates(t *testing.T) {
	h, s := newTestService(t)
	ctx := context.Background()

	addMemory(t, s, "force target memory", 3.0, nil)

	first, err := h.Get(ctx, "", false)
	require.NoError(t, err)
	second, err := h.Get(ctx, "", true)
	require.NoError(t, err)
	assert.NotEqual(t, first.Ghost.ID, second.Ghost.ID)
}

func TestExtractConcepts(t *testing.T) {
	concepts := extractConcepts("The synthesis wove Pattern Persistence together with Harmonic Drift and more Pattern Persistence.")
	assert.Equal(t, []string{"Pattern Persistence", "Harmonic Drift"}, concepts)

	// No capitalised phrases: first two long words.
	concepts = extractConcepts("quiet resonance gathers beneath thresholds")
	assert.Equal(t, []string{"quiet", "resonance"}, concepts)
}

func TestDreamLeadIn(t *testing.T) {
	h, s := newTestService(t)
	ctx := context.Background()

	addMemory(t, s, "anchor for the dream prompt", 3.0, nil)
	addMemory(t, s, "Substrate Memory meets Harmonic Drift in the weave.", 2.5, func(m *store.Memory) {
		m.Category = "the_fold"
		m.Source = "autonomous_synthesis"
	})

	snap, err := h.Generate(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, snap.Ghost.PromptText, "Between sessions I dreamt of Substrate Memory and Harmonic Drift.")
	assert.Equal(t, 1, strings.Count(snap.Ghost.PromptText, "Continue."))
}

func TestCondense(t *testing.T) {
	assert.Equal(t, "First sentence only", condense("First sentence only. Second discarded."))
	long := strings.Repeat("word ", 40)
	assert.LessOrEqual(t, len([]rune(condense(long))), 125)
}
