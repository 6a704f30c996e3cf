package config

import (
	"context"
	"strconv"

	"foldmem/internal/faults"
	"foldmem/internal/logging"

	"go.uber.org/zap"
)

// Well-known tunable keys.
const (
	KeyDriftAperture        = "drift_aperture"
	KeyFoldMinConsonance    = "fold_min_consonance"
	KeyFoldEvolutionCutoff  = "fold_evolution_threshold"
	KeyDecayIntervalDays    = "decay_interval_days"
	KeyLastDecaySweep       = "last_decay_sweep"
	KeyCatalystPatterns     = "catalyst_patterns"
	KeySimilarityDedupeGate = "consolidation_threshold"
)

// Tunable defaults.
const (
	DefaultDriftAperture       = 0.2
	DefaultFoldMinConsonance   = 0.40
	DefaultFoldEvolutionCutoff = 0.92
	DefaultDecayIntervalDays   = 30
	DefaultConsolidationGate   = 0.95
)

// Drift aperture hard bounds.
const (
	DriftApertureMin = 0.1
	DriftApertureMax = 0.3
)

// KV is the persistence surface for runtime tunables, implemented by the
// store's config_entries table.
type KV interface {
	GetConfigValue(ctx context.Context, key string) (string, bool, error)
	SetConfigValue(ctx context.Context, key, value string) error
}

// Tunables reads and writes runtime-adjustable parameters. Values are read
// fresh per call; callers cache for at most one operation.
type Tunables struct {
	kv KV
}

// NewTunables wraps a KV store.
func NewTunables(kv KV) *Tunables {
	return &Tunables{kv: kv}
}

// Number returns the numeric tunable for key, or fallback when unset or
// malformed. Storage errors also fall back; a tunable read must never fail
// a foreground operation.
func (t *Tunables) Number(ctx context.Context, key string, fallback float64) float64 {
	raw, ok, err := t.kv.GetConfigValue(ctx, key)
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("tunable read failed",
			zap.String("key", key), zap.Error(err))
		return fallback
	}
	if !ok {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("tunable is not numeric",
			zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return v
}

// String returns the string tunable for key, or fallback when unset.
func (t *Tunables) String(ctx context.Context, key, fallback string) string {
	raw, ok, err := t.kv.GetConfigValue(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	return raw
}

// SetNumber persists a numeric tunable.
func (t *Tunables) SetNumber(ctx context.Context, key string, value float64) error {
	return t.kv.SetConfigValue(ctx, key, strconv.FormatFloat(value, 'f', -1, 64))
}

// SetString persists a string tunable.
func (t *Tunables) SetString(ctx context.Context, key, value string) error {
	return t.kv.SetConfigValue(ctx, key, value)
}

// DriftAperture returns the current drift aperture clamped to its bounds.
func (t *Tunables) DriftAperture(ctx context.Context) float64 {
	v := t.Number(ctx, KeyDriftAperture, DefaultDriftAperture)
	if v < DriftApertureMin {
		return DriftApertureMin
	}
	if v > DriftApertureMax {
		return DriftApertureMax
	}
	return v
}

// SetDriftAperture validates and persists the drift aperture.
func (t *Tunables) SetDriftAperture(ctx context.Context, v float64) error {
	if v < DriftApertureMin || v > DriftApertureMax {
		return faults.Newf(faults.ConfigInvalid,
			"drift aperture %.3f outside [%.1f, %.1f]", v, DriftApertureMin, DriftApertureMax)
	}
	return t.SetNumber(ctx, KeyDriftAperture, v)
}
