package memory

import (
	"context"
	"fmt"
	"sync"

	"foldmem/internal/embedding"
)

// mockEmbed maps exact texts to fixed vectors so tests control geometry.
type mockEmbed struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
}

func newMockEmbed() *mockEmbed {
	return &mockEmbed{vectors: make(map[string][]float32)}
}

// vec768 embeds low-dimensional directions into the store dimension.
func vec768(components ...float32) []float32 {
	v := make([]float32, embedding.Dim)
	copy(v, components)
	return v
}

func (m *mockEmbed) set(text string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = vec
}

func (m *mockEmbed) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if vec, ok := m.vectors[text]; ok {
		return vec, nil
	}
	return nil, fmt.Errorf("mockEmbed: no vector for %q", text)
}

func (m *mockEmbed) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mockEmbed) Dimensions() int { return embedding.Dim }

func (m *mockEmbed) Name() string { return "mock-embed" }
