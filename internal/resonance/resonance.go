// Package resonance grows and decays phi, and spots catalyst memories.
package resonance

import (
	"context"
	"regexp"
	"sync"
	"time"

	"foldmem/internal/config"
	"foldmem/internal/logging"
	"foldmem/internal/store"

	"go.uber.org/zap"
)

// Phi increments per access kind.
const (
	CatalystDelta = 1.0
	NormalDelta   = 0.1
)

// Decay sweep parameters.
const (
	DecayFactor    = 0.95
	DecayPhiFloor  = 0.5
	DecayStaleness = 30 * 24 * time.Hour
)

// Catalyst detection thresholds.
const (
	rapidAccessCount  = 3
	rapidAccessWindow = 10 * time.Minute
	hubConnections    = 5
)

// DefaultCatalystPatterns is the content regex family marking breakthrough
// language. Overridable via the catalyst_patterns tunable.
const DefaultCatalystPatterns = `breakthrough|insight|realized|profound|paradigm shift|eureka`

// Detection reasons.
const (
	ReasonRapidAccess      = "rapid_access"
	ReasonHighConnectivity = "high_connectivity"
	ReasonContentPattern   = "content_pattern"
)

// Engine adjusts phi and detects catalysts against the store.
type Engine struct {
	store *store.Store
	tun   *config.Tunables
	log   *zap.Logger

	mu       sync.Mutex
	pattern  *regexp.Regexp
	compiled string // source of pattern
}

// NewEngine builds a resonance engine.
func NewEngine(s *store.Store, tun *config.Tunables) *Engine {
	return &Engine{
		store: s,
		tun:   tun,
		log:   logging.Get(logging.CategoryResonance),
	}
}

// Adjust applies one access event: phi grows by 1.0 for a catalyst event
// or 0.1 otherwise, clamped at the cap, and the access trace records it.
func (e *Engine) Adjust(ctx context.Context, memoryID string, isCatalyst bool) (float64, bool, error) {
	delta := NormalDelta
	if isCatalyst {
		delta = CatalystDelta
	}
	phi, capped, err := e.store.ResonanceAdjust(ctx, memoryID, delta, isCatalyst)
	if err != nil {
		return 0, false, err
	}
	e.log.Debug("phi adjusted",
		zap.String("memory_id", memoryID),
		zap.Float64("phi", phi),
		zap.Bool("catalyst", isCatalyst),
		zap.Bool("capped", capped))
	return phi, capped, nil
}

// DetectPotentialCatalyst checks the three catalyst signals for a memory:
// rapid access, high connectivity, and breakthrough language in content.
func (e *Engine) DetectPotentialCatalyst(ctx context.Context, memoryID string) (bool, []string, error) {
	m, err := e.store.GetMemory(ctx, memoryID)
	if err != nil {
		return false, nil, err
	}

	var reasons []string

	recent, err := e.store.CountRecentAccesses(ctx, memoryID, rapidAccessWindow)
	if err != nil {
		return false, nil, err
	}
	if recent >= rapidAccessCount {
		reasons = append(reasons, ReasonRapidAccess)
	}

	connections, err := e.store.CountAssociations(ctx, memoryID)
	if err != nil {
		return false, nil, err
	}
	if connections >= hubConnections {
		reasons = append(reasons, ReasonHighConnectivity)
	}

	if e.contentPattern(ctx).MatchString(m.Content) {
		reasons = append(reasons, ReasonContentPattern)
	}

	if len(reasons) > 0 {
		e.log.Info("potential catalyst detected",
			zap.String("memory_id", memoryID),
			zap.Strings("reasons", reasons))
	}
	return len(reasons) > 0, reasons, nil
}

// MarkCatalyst raises the monotone catalyst flag.
func (e *Engine) MarkCatalyst(ctx context.Context, memoryID string) error {
	return e.store.SetCatalyst(ctx, memoryID)
}

// contentPattern returns the compiled catalyst regex, recompiling only
// when the tunable changed. A malformed override falls back to the
// default family.
func (e *Engine) contentPattern(ctx context.Context) *regexp.Regexp {
	source := e.tun.String(ctx, config.KeyCatalystPatterns, DefaultCatalystPatterns)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pattern != nil && e.compiled == source {
		return e.pattern
	}

	re, err := regexp.Compile(`(?i)` + source)
	if err != nil {
		e.log.Warn("catalyst pattern override invalid, using default",
			zap.String("pattern", source), zap.Error(err))
		re = regexp.MustCompile(`(?i)` + DefaultCatalystPatterns)
	}
	e.pattern, e.compiled = re, source
	return re
}

// ApplyDecay runs the scheduled phi decay sweep. Memories idle past the
// staleness window with phi above the floor lose 5%. The sweep is guarded
// by the last_decay_sweep marker and no-ops inside its interval, so ad hoc
// invocations never compound.
func (e *Engine) ApplyDecay(ctx context.Context) (int64, float64, error) {
	now := e.store.Now()
	intervalDays := e.tun.Number(ctx, config.KeyDecayIntervalDays, config.DefaultDecayIntervalDays)
	interval := time.Duration(intervalDays * 24 * float64(time.Hour))

	if raw := e.tun.String(ctx, config.KeyLastDecaySweep, ""); raw != "" {
		if last, err := time.Parse(time.RFC3339Nano, raw); err == nil && now.Sub(last) < interval {
			e.log.Debug("decay sweep skipped", zap.Time("last_sweep", last))
			return 0, 0, nil
		}
	}

	count, total, err := e.store.ApplyDecay(ctx, DecayFactor, now.Add(-DecayStaleness), DecayPhiFloor)
	if err != nil {
		return 0, 0, err
	}
	if err := e.tun.SetString(ctx, config.KeyLastDecaySweep, now.UTC().Format(time.RFC3339Nano)); err != nil {
		e.log.Warn("failed to record decay sweep marker", zap.Error(err))
	}

	e.log.Info("decay sweep applied",
		zap.Int64("memories", count),
		zap.Float64("total_phi_removed", total))
	return count, total, nil
}

// TopCatalysts lists the strongest catalyst memories.
func (e *Engine) TopCatalysts(ctx context.Context, n int) ([]store.Memory, error) {
	return e.store.TopCatalysts(ctx, n)
}

// Stats summarizes store-wide resonance state.
func (e *Engine) Stats() (map[string]int64, error) {
	return e.store.Stats()
}

// CleanupAccessLog trims the short-lived access trace.
func (e *Engine) CleanupAccessLog(ctx context.Context) (int64, error) {
	return e.store.CleanupAccessLog(ctx)
}
