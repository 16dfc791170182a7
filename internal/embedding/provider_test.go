package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/pgclaw/internal/store"
)

// fakeRemote scripts the two probe outcomes and counts embed calls.
type fakeRemote struct {
	registered   bool
	registryErr  error
	embedErr     error
	embedCalls   int
	lastTexts    []string
	dims         int
	closed       bool
	failAfterOne bool
}

func (f *fakeRemote) ModelRegistered(_ context.Context, _ string) (bool, error) {
	return f.registered, f.registryErr
}

func (f *fakeRemote) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	f.embedCalls++
	f.lastTexts = texts
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	if f.failAfterOne && f.embedCalls > 1 {
		return nil, errors.New("connection lost")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, f.dims)
		vec[0] = float32(len(text)) // distinguishable per input
		vec[f.dims-1] = float32(i + 1)
		out[i] = vec
	}
	return out, nil
}

func (f *fakeRemote) Close() error {
	f.closed = true
	return nil
}

func localLoader(dims int) LocalLoader {
	return func() (LocalModel, error) { return NewMockModel(dims), nil }
}

func testConfig() Config {
	return Config{Model: "all_minilm_l12_v2", Dims: 8, MaxChars: 512, CacheSize: 16}
}

func TestInitialize_RemoteMode(t *testing.T) {
	remote := &fakeRemote{registered: true, dims: 8}
	p := NewProvider(testConfig(), remote, localLoader(8))

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if p.Mode() != ModeRemote {
		t.Errorf("mode = %v, want remote", p.Mode())
	}
}

func TestInitialize_ModelNotRegistered_FallsBackToLocal(t *testing.T) {
	remote := &fakeRemote{registered: false, dims: 8}
	p := NewProvider(testConfig(), remote, localLoader(8))

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if p.Mode() != ModeLocal {
		t.Errorf("mode = %v, want local", p.Mode())
	}
	if !remote.closed {
		t.Error("remote backend not released after failed probe")
	}
}

func TestInitialize_RegistryCheckError_FallsBackToLocal(t *testing.T) {
	remote := &fakeRemote{registryErr: errors.New("no registry"), dims: 8}
	p := NewProvider(testConfig(), remote, localLoader(8))

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if p.Mode() != ModeLocal {
		t.Errorf("mode = %v, want local", p.Mode())
	}
}

func TestInitialize_TestEmbedFails_FallsBackToLocal(t *testing.T) {
	remote := &fakeRemote{registered: true, embedErr: errors.New("boom"), dims: 8}
	p := NewProvider(testConfig(), remote, localLoader(8))

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if p.Mode() != ModeLocal {
		t.Errorf("mode = %v, want local", p.Mode())
	}
}

func TestInitialize_BothFail_IsFatal(t *testing.T) {
	remote := &fakeRemote{registered: false, dims: 8}
	p := NewProvider(testConfig(), remote, func() (LocalModel, error) {
		return nil, errors.New("model file missing")
	})

	if err := p.Initialize(context.Background()); err == nil {
		t.Fatal("expected fatal initialization error")
	}
	if p.Mode() != ModeNone {
		t.Errorf("mode = %v, want none", p.Mode())
	}
}

func TestInitialize_NoRemoteNoLocal(t *testing.T) {
	p := NewProvider(testConfig(), nil, nil)
	if err := p.Initialize(context.Background()); err == nil {
		t.Fatal("expected error with no backends")
	}
}

func TestEmbedMany_Ordering(t *testing.T) {
	remote := &fakeRemote{registered: true, dims: 8}
	p := NewProvider(testConfig(), remote, nil)
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	texts := []string{"a", "bb", "ccc"}
	vecs, err := p.EmbedMany(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedMany: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("len = %d, want 3", len(vecs))
	}
	for i, text := range texts {
		if vecs[i][0] != float32(len(text)) {
			t.Errorf("vector %d does not correspond to input %d", i, i)
		}
	}
}

func TestEmbedOne_MatchesEmbedMany(t *testing.T) {
	p := NewMockProvider(8)
	defer p.Close()

	one, err := p.EmbedOne(context.Background(), "hello")
	if err != nil {
		t.Fatalf("EmbedOne: %v", err)
	}
	many, err := p.EmbedMany(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("EmbedMany: %v", err)
	}
	for i := range one {
		if one[i] != many[0][i] {
			t.Fatalf("EmbedOne != EmbedMany[0] at %d", i)
		}
	}
}

func TestEmbedMany_Truncation(t *testing.T) {
	remote := &fakeRemote{registered: true, dims: 8}
	p := NewProvider(testConfig(), remote, nil)
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	long := strings.Repeat("x", 2000)
	if _, err := p.EmbedMany(context.Background(), []string{long}); err != nil {
		t.Fatalf("EmbedMany: %v", err)
	}
	if got := len(remote.lastTexts[0]); got != 512 {
		t.Errorf("backend received %d chars, want 512", got)
	}
}

func TestEmbedMany_Uninitialized(t *testing.T) {
	p := NewProvider(testConfig(), nil, nil)
	_, err := p.EmbedMany(context.Background(), []string{"x"})
	if !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestEmbedMany_DimensionMismatch(t *testing.T) {
	remote := &fakeRemote{registered: true, dims: 4} // provider expects 8
	p := NewProvider(testConfig(), remote, nil)
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, err := p.EmbedMany(context.Background(), []string{"x"})
	var be *store.BackendError
	if !errors.As(err, &be) {
		t.Errorf("err = %v, want BackendError", err)
	}
}

func TestRemoteFailure_NoDemotion(t *testing.T) {
	remote := &fakeRemote{registered: true, dims: 8, failAfterOne: true}
	p := NewProvider(testConfig(), remote, localLoader(8))
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if p.Mode() != ModeRemote {
		t.Fatalf("mode = %v, want remote", p.Mode())
	}

	// Later call fails: recoverable error, mode unchanged.
	if _, err := p.EmbedMany(context.Background(), []string{"later"}); err == nil {
		t.Fatal("expected embed failure")
	}
	if p.Mode() != ModeRemote {
		t.Errorf("provider demoted to %v after runtime failure", p.Mode())
	}
}

func TestEmbedMany_CacheHit(t *testing.T) {
	remote := &fakeRemote{registered: true, dims: 8}
	p := NewProvider(testConfig(), remote, nil)
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	callsAfterProbe := remote.embedCalls
	if _, err := p.EmbedMany(context.Background(), []string{"repeat me"}); err != nil {
		t.Fatalf("EmbedMany: %v", err)
	}
	if _, err := p.EmbedMany(context.Background(), []string{"repeat me"}); err != nil {
		t.Fatalf("EmbedMany: %v", err)
	}
	if remote.embedCalls != callsAfterProbe+1 {
		t.Errorf("backend called %d times for identical text, want 1", remote.embedCalls-callsAfterProbe)
	}
}

func TestMockModel_Deterministic(t *testing.T) {
	m := NewMockModel(16)
	a, _ := m.Encode(context.Background(), []string{"same"})
	b, _ := m.Encode(context.Background(), []string{"same"})
	c, _ := m.Encode(context.Background(), []string{"different"})

	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatal("mock embeddings not deterministic")
		}
	}
	same := true
	for i := range a[0] {
		if a[0][i] != c[0][i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts produced identical vectors")
	}
}
