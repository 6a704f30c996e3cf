package embedding

import (
	"context"
	"time"

	"foldmem/internal/config"
	"foldmem/internal/faults"
	"foldmem/internal/logging"

	"go.uber.org/zap"
)

// Provenance records which layer of the chain produced a vector.
type Provenance string

const (
	ProvenanceCache     Provenance = "cache"
	ProvenancePrimary   Provenance = "primary"
	ProvenanceSecondary Provenance = "secondary"
)

// Chain is the embedding port: cache front, primary provider with bounded
// retries, optional secondary fallback. It satisfies Engine so downstream
// code never sees provider identity.
type Chain struct {
	primary   Engine
	secondary Engine // may be nil
	cache     *Cache
	retries   int
	timeout   time.Duration
}

// NewChain assembles the port. secondary may be nil.
func NewChain(primary, secondary Engine, cache *Cache, retries int, timeout time.Duration) *Chain {
	if retries < 0 {
		retries = 0
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Chain{
		primary:   primary,
		secondary: secondary,
		cache:     cache,
		retries:   retries,
		timeout:   timeout,
	}
}

// NewChainFromConfig builds the provider chain the config describes. The
// configured provider is primary; the other becomes the fallback when its
// settings allow constructing it.
func NewChainFromConfig(cfg config.EmbeddingConfig) (*Chain, error) {
	cache := NewCache(cfg.CacheCapacity, config.Duration(cfg.CacheTTL, DefaultCacheTTL))
	timeout := config.Duration(cfg.Timeout, 30*time.Second)

	var genaiEng, ollamaEng Engine
	if cfg.GenAIAPIKey != "" {
		eng, err := NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel)
		if err != nil {
			return nil, err
		}
		genaiEng = eng
	}
	ollamaEng, _ = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)

	var primary, secondary Engine
	switch cfg.Provider {
	case "ollama":
		primary, secondary = ollamaEng, genaiEng
	default:
		primary, secondary = genaiEng, ollamaEng
	}
	if primary == nil {
		primary, secondary = secondary, nil
	}
	if primary == nil {
		return nil, faults.New(faults.ConfigInvalid, "no embedding provider configured")
	}

	return NewChain(primary, secondary, cache, cfg.Retries, timeout), nil
}

// EmbedWithProvenance resolves text to a vector, reporting where it came
// from. Empty text is InvalidInput; exhaustion of all providers is
// SubstrateUnavailable.
func (c *Chain) EmbedWithProvenance(ctx context.Context, text string) ([]float32, Provenance, error) {
	if text == "" {
		return nil, "", faults.New(faults.InvalidInput, "cannot embed empty text")
	}

	if c.cache != nil {
		if vec, ok := c.cache.Get(text); ok {
			return vec, ProvenanceCache, nil
		}
	}

	log := logging.Get(logging.CategoryEmbedding)

	vec, err := c.tryProvider(ctx, c.primary, text)
	if err == nil {
		c.populate(text, vec)
		return vec, ProvenancePrimary, nil
	}
	log.Warn("primary embedding provider failed",
		zap.String("provider", c.primary.Name()), zap.Error(err))

	if c.secondary != nil {
		vec, err2 := c.tryProvider(ctx, c.secondary, text)
		if err2 == nil {
			c.populate(text, vec)
			return vec, ProvenanceSecondary, nil
		}
		log.Warn("secondary embedding provider failed",
			zap.String("provider", c.secondary.Name()), zap.Error(err2))
	}

	return nil, "", faults.Wrap(faults.SubstrateUnavailable, "all embedding providers failed", err)
}

// tryProvider attempts one provider with the chain's retry budget. Each
// attempt gets its own deadline derived from the caller's context.
func (c *Chain) tryProvider(ctx context.Context, eng Engine, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		vec, err := eng.Embed(attemptCtx, text)
		cancel()
		if err == nil {
			return vec, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Chain) populate(text string, vec []float32) {
	if c.cache != nil {
		c.cache.Put(text, vec)
	}
}

// Embed satisfies Engine.
func (c *Chain) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, _, err := c.EmbedWithProvenance(ctx, text)
	return vec, err
}

// EmbedBatch satisfies Engine; texts resolve through the cache and
// fallback logic individually.
func (c *Chain) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, _, err := c.EmbedWithProvenance(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions satisfies Engine.
func (c *Chain) Dimensions() int { return c.primary.Dimensions() }

// Name satisfies Engine.
func (c *Chain) Name() string { return "chain:" + c.primary.Name() }

// CacheStats exposes the cache counters for the stats surface.
func (c *Chain) CacheStats() (hits, misses uint64, size int) {
	if c.cache == nil {
		return 0, 0, 0
	}
	return c.cache.Stats()
}
