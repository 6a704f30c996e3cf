package embedding

import (
	"context"
	"fmt"
)

// MockEngine implements Engine for testing.
type MockEngine struct {
	EmbedFunc      func(ctx context.Context, text string) ([]float32, error)
	DimensionsFunc func() int
	NameFunc       func() string

	Calls int
}

func (m *MockEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	m.Calls++
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

func (m *MockEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

func (m *MockEngine) Dimensions() int {
	if m.DimensionsFunc != nil {
		return m.DimensionsFunc()
	}
	return 4
}

func (m *MockEngine) Name() string {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "mock-engine"
}

// MockErrorEngine always fails.
type MockErrorEngine struct {
	Calls int
}

func (m *MockErrorEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	m.Calls++
	return nil, fmt.Errorf("mock error")
}

func (m *MockErrorEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("mock error")
}

func (m *MockErrorEngine) Dimensions() int { return 4 }

func (m *MockErrorEngine) Name() string { return "mock-error-engine" }
