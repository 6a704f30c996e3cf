package fold

import (
	"context"
	"errors"

	"foldmem/internal/embedding"
)

// mockEmbed returns a fixed vector for every text.
type mockEmbed struct {
	result []float32
	err    error
	calls  int
}

func (m *mockEmbed) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return nil, errors.New("mockEmbed: no result configured")
	}
	return m.result, nil
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
