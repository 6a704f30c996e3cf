// Package embedding generates vector embeddings for memory content.
// Supports a Google GenAI (cloud) primary and an Ollama (local) fallback,
// fronted by a TTL cache keyed on content hash.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
)

// Dim is the embedding dimension the store enforces for live memories.
// Both gemini-embedding-001 and embeddinggemma produce 768-wide vectors.
const Dim = 768

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// ContentHash returns the hex SHA-256 digest used for exact deduplication
// and as the embedding cache key.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1. Zero-magnitude vectors report 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, magA, magB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// HarmonicMean computes the harmonic mean of the given similarities,
// discarding zero entries. An empty input is an error; a single surviving
// value returns itself. Used as the Fold consonance gate.
func HarmonicMean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("harmonic mean of empty input")
	}

	var sum float64
	n := 0
	for _, v := range values {
		if v == 0 {
			continue
		}
		sum += 1 / v
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if n == 1 {
		return 1 / sum, nil
	}
	return float64(n) / sum, nil
}
