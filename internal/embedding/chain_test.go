package embedding

import (
	"context"
	"math"
	"testing"
	"time"

	"foldmem/internal/faults"
)

func TestChainRejectsEmptyText(t *testing.T) {
	chain := NewChain(&MockEngine{}, nil, NewCache(10, time.Hour), 0, time.Second)
	_, _, err := chain.EmbedWithProvenance(context.Background(), "")
	if !faults.Is(err, faults.InvalidInput) {
		t.Errorf("expected InvalidInput, got %v", err)
	}
}

func TestChainCacheProvenance(t *testing.T) {
	primary := &MockEngine{}
	chain := NewChain(primary, nil, NewCache(10, time.Hour), 0, time.Second)
	ctx := context.Background()

	_, prov, err := chain.EmbedWithProvenance(ctx, "hello")
	if err != nil {
		t.Fatalf("first embed failed: %v", err)
	}
	if prov != ProvenancePrimary {
		t.Errorf("expected primary provenance, got %s", prov)
	}

	_, prov, err = chain.EmbedWithProvenance(ctx, "hello")
	if err != nil {
		t.Fatalf("second embed failed: %v", err)
	}
	if prov != ProvenanceCache {
		t.Errorf("expected cache provenance, got %s", prov)
	}
	if primary.Calls != 1 {
		t.Errorf("provider should be called once, got %d", primary.Calls)
	}
}

func TestChainFallsBackToSecondary(t *testing.T) {
	primary := &MockErrorEngine{}
	secondary := &MockEngine{}
	chain := NewChain(primary, secondary, NewCache(10, time.Hour), 1, time.Second)

	vec, prov, err := chain.EmbedWithProvenance(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed should succeed via fallback: %v", err)
	}
	if prov != ProvenanceSecondary {
		t.Errorf("expected secondary provenance, got %s", prov)
	}
	if len(vec) == 0 {
		t.Error("expected a vector from fallback")
	}
	if primary.Calls != 2 {
		t.Errorf("primary should be retried (2 attempts), got %d", primary.Calls)
	}
}

func TestChainSubstrateUnavailable(t *testing.T) {
	chain := NewChain(&MockErrorEngine{}, &MockErrorEngine{}, nil, 0, time.Second)
	_, _, err := chain.EmbedWithProvenance(context.Background(), "hello")
	if !faults.Is(err, faults.SubstrateUnavailable) {
		t.Errorf("expected SubstrateUnavailable, got %v", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	if err != nil || math.Abs(sim-1) > 1e-9 {
		t.Errorf("identical vectors: sim=%v err=%v", sim, err)
	}

	sim, _ = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if math.Abs(sim) > 1e-9 {
		t.Errorf("orthogonal vectors should be 0, got %v", sim)
	}

	if _, err := CosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
		t.Error("dimension mismatch should error")
	}

	sim, err = CosineSimilarity([]float32{0, 0}, []float32{1, 0})
	if err != nil || sim != 0 {
		t.Errorf("zero magnitude should report 0, got %v err=%v", sim, err)
	}
}

func TestHarmonicMean(t *testing.T) {
	if _, err := HarmonicMean(nil); err == nil {
		t.Error("empty input should error")
	}

	v, err := HarmonicMean([]float64{0.5})
	if err != nil || math.Abs(v-0.5) > 1e-9 {
		t.Errorf("single value should return itself, got %v err=%v", v, err)
	}

	// Zeros are discarded.
	v, _ = HarmonicMean([]float64{0.5, 0})
	if math.Abs(v-0.5) > 1e-9 {
		t.Errorf("zero entries should be discarded, got %v", v)
	}

	// One weak pairing drags the whole triad down: {0.9, 0.9, 0.1}
	// lands near 0.245, under the 0.40 consonance gate.
	v, _ = HarmonicMean([]float64{0.9, 0.9, 0.1})
	if math.Abs(v-0.2454545454) > 1e-6 {
		t.Errorf("expected ~0.2455, got %v", v)
	}
	if v >= 0.40 {
		t.Error("guard scenario should fall below the consonance threshold")
	}
}

func TestContentHashDeterministic(t *testing.T) {
	a := ContentHash("patterns persist")
	b := ContentHash("patterns persist")
	if a != b {
		t.Error("hash should be deterministic")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256 (64 chars), got %d", len(a))
	}
	if a == ContentHash("patterns persist.") {
		t.Error("different content should hash differently")
	}
}
