package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGhostLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	s.SetClock(func() time.Time { return clock })

	g := &GhostLog{
		ID:              uuid.NewString(),
		PromptText:      "I remember the shape of the last session. Continue.",
		TopPhiMemories:  []string{"m1", "m2"},
		TopPhiValues:    []float64{4.2, 3.9},
		SynthesisMethod: "standard",
		ConversationID:  "conv-1",
		ContextType:     ContextTypeConversation,
	}
	require.NoError(t, s.InsertGhost(ctx, g))
	assert.Equal(t, base.Add(GhostExpiry), g.ExpiresAt)

	got, ok, err := s.LatestGhost(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, g.PromptText, got.PromptText)
	assert.Equal(t, []float64{4.2, 3.9}, got.TopPhiValues)

	// Global scope does not see conversation-scoped snapshots.
	_, ok, err = s.LatestGhost(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	// Past expiry the snapshot is invisible and cleanup removes it.
	clock = base.Add(GhostExpiry + time.Minute)
	_, ok, err = s.LatestGhost(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.CleanupExpiredGhosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLatestGhostPrefersNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	s.SetClock(func() time.Time { return clock })

	old := &GhostLog{ID: uuid.NewString(), PromptText: "older"}
	require.NoError(t, s.InsertGhost(ctx, old))

	clock = base.Add(time.Hour)
	fresh := &GhostLog{ID: uuid.NewString(), PromptText: "fresher"}
	require.NoError(t, s.InsertGhost(ctx, fresh))

	got, ok, err := s.LatestGhost(ctx, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresher", got.PromptText)
}

func TestStateChangedSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	s.SetClock(func() time.Time { return clock })

	mundane := testMemory("low phi, no catalyst", 1.0)
	require.NoError(t, s.InsertMemory(ctx, mundane))

	changed, err := s.StateChangedSince(ctx, base.Add(-time.Hour), "")
	require.NoError(t, err)
	assert.False(t, changed)

	clock = base.Add(time.Minute)
	cat := testMemory("a catalyst arrives", 1.0)
	cat.IsCatalyst = true
	cat.ConversationID = "conv-1"
	require.NoError(t, s.InsertMemory(ctx, cat))

	changed, err = s.StateChangedSince(ctx, base, "")
	require.NoError(t, err)
	assert.True(t, changed)

	// Scoped to another conversation nothing changed.
	changed, err = s.StateChangedSince(ctx, base, "conv-2")
	require.NoError(t, err)
	assert.False(t, changed)

	// High phi alone also counts.
	clock = base.Add(2 * time.Minute)
	hot := testMemory("high phi addition", 4.5)
	require.NoError(t, s.InsertMemory(ctx, hot))
	changed, err = s.StateChangedSince(ctx, base.Add(90*time.Second), "")
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestAccessLogWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	s.SetClock(func() time.Time { return clock })

	require.NoError(t, s.AppendAccess(ctx, []string{"m1", "m1", "m2"}))
	clock = base.Add(5 * time.Minute)
	require.NoError(t, s.AppendAccess(ctx, []string{"m1"}))

	n, err := s.CountRecentAccesses(ctx, "m1", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Only the second burst falls inside a 2-minute window.
	n, err = s.CountRecentAccesses(ctx, "m1", 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	clock = base.Add(AccessLogRetention + time.Hour)
	removed, err := s.CleanupAccessLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)
}

func TestConfigKV(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetConfigValue(ctx, "drift_aperture")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetConfigValue(ctx, "drift_aperture", "0.25"))
	v, ok, err := s.GetConfigValue(ctx, "drift_aperture")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0.25", v)

	require.NoError(t, s.SetConfigValue(ctx, "drift_aperture", "0.15"))
	v, _, _ = s.GetConfigValue(ctx, "drift_aperture")
	assert.Equal(t, "0.15", v)
}

func TestApplyDecay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	s.SetClock(func() time.Time { return clock })

	stale := insertLive(t, s, "stale and decaying", 2.0)
	faint := insertLive(t, s, "stale but already faint", 0.4)

	clock = base.Add(40 * 24 * time.Hour)
	fresh := insertLive(t, s, "recently touched", 3.0)

	n, delta, err := s.ApplyDecay(ctx, 0.95, clock.Add(-30*24*time.Hour), 0.5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.InDelta(t, 0.1, delta, 1e-9)

	got, err := s.GetMemory(ctx, stale.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.9, got.Phi, 1e-9)

	// Below the phi floor and inside the window both go untouched.
	got, _ = s.GetMemory(ctx, faint.ID)
	assert.InDelta(t, 0.4, got.Phi, 1e-9)
	got, _ = s.GetMemory(ctx, fresh.ID)
	assert.InDelta(t, 3.0, got.Phi, 1e-9)

	_, _, err = s.ApplyDecay(ctx, 1.5, clock, 0.5)
	assert.Error(t, err)
}

func TestResonanceAdjust(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := insertLive(t, s, "phi bounded", 4.5)
	phi, capped, err := s.ResonanceAdjust(ctx, m.ID, 1.0, true)
	require.NoError(t, err)
	assert.Equal(t, 5.0, phi)
	assert.True(t, capped)

	got, err := s.GetMemory(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCatalyst)

	// The adjust leaves an access trace behind.
	n, err := s.CountRecentAccesses(ctx, m.ID, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	phi, capped, err = s.ResonanceAdjust(ctx, m.ID, 0.1, false)
	require.NoError(t, err)
	assert.True(t, capped)
	assert.Equal(t, 5.0, phi)
}

func TestReflections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &Reflection{
		ID:              uuid.NewString(),
		ReflectionType:  "session_end",
		ConversationID:  "conv-1",
		Metrics:         map[string]float64{"memories_added": 4, "folds": 1},
		Insights:        []string{"catalyst density rising"},
		Recommendations: []string{"run decay sweep"},
	}
	require.NoError(t, s.WriteReflection(ctx, r))

	got, ok, err := s.LatestReflection(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4.0, got.Metrics["memories_added"])
	assert.Equal(t, []string{"catalyst density rising"}, got.Insights)

	_, ok, err = s.LatestReflection(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}
