package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/nextlevelbuilder/pgclaw/internal/vector"
)

// MockModel is a deterministic hash-seeded LocalModel for tests: equal
// texts map to equal unit vectors.
type MockModel struct {
	dims int
}

// NewMockModel returns a mock model with the given dimensionality.
func NewMockModel(dims int) *MockModel {
	if dims <= 0 {
		dims = onnxDefaultDim
	}
	return &MockModel{dims: dims}
}

func (m *MockModel) Encode(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.vectorFor(text)
	}
	return out, nil
}

func (m *MockModel) Dimensions() int { return m.dims }

func (m *MockModel) Close() error { return nil }

func (m *MockModel) vectorFor(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dims)
	for i := range vec {
		// LCG stepped from the text hash.
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return vector.Normalize(vec)
}

// NewMockProvider returns an initialized local-mode provider backed by a
// MockModel. For tests.
func NewMockProvider(dims int) *Provider {
	p := NewProvider(
		Config{Model: "mock", Dims: dims, MaxChars: 512, CacheSize: 64},
		nil,
		func() (LocalModel, error) { return NewMockModel(dims), nil },
	)
	if err := p.Initialize(context.Background()); err != nil {
		panic(err)
	}
	return p
}
