// Package embedding produces fixed-dimension vectors for text through one
// of two interchangeable strategies: in-store model execution (remote) or
// in-process ONNX inference (local). The strategy is selected once at
// startup by a probing procedure and never swapped mid-session — vectors of
// a different mode's dimensionality would corrupt comparisons against rows
// already stored.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/nextlevelbuilder/pgclaw/internal/memory"
	"github.com/nextlevelbuilder/pgclaw/internal/store"
)

// Mode is the embedding computation strategy the provider committed to.
type Mode int

const (
	ModeNone Mode = iota // not initialized
	ModeRemote
	ModeLocal
)

func (m Mode) String() string {
	switch m {
	case ModeRemote:
		return "remote"
	case ModeLocal:
		return "local"
	default:
		return "none"
	}
}

// RemoteBackend is the in-store inference surface: a model registry check
// and an embedding invocation, both backend-specific.
type RemoteBackend interface {
	ModelRegistered(ctx context.Context, model string) (bool, error)
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
	Close() error
}

// LocalModel is an in-process embedding model with fixed output size.
type LocalModel interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// LocalLoader lazily loads the local model; only invoked when the remote
// probe fails, since loading is expensive.
type LocalLoader func() (LocalModel, error)

// Config configures the provider.
type Config struct {
	Model     string // in-store model name, already validated by config
	Dims      int    // expected output dimensionality
	MaxChars  int    // inputs longer than this are silently truncated
	CacheSize int    // in-process LRU entries; <= 0 disables caching
}

// Provider selects and drives one embedding backend. Safe for concurrent
// use after Initialize: the mode is written once and only read afterwards.
type Provider struct {
	cfg       Config
	remote    RemoteBackend
	loadLocal LocalLoader

	mode  Mode
	local LocalModel

	cache  *lru.Cache[string, []float32]
	shared *RedisCache // optional cross-process cache
	sf     singleflight.Group

	closeOnce sync.Once
}

// NewProvider builds a provider; call Initialize before serving traffic.
// remote may be nil when no store connection is available, loadLocal may be
// nil when no local model is configured — but not both.
func NewProvider(cfg Config, remote RemoteBackend, loadLocal LocalLoader) *Provider {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 512
	}
	p := &Provider{cfg: cfg, remote: remote, loadLocal: loadLocal}
	if cfg.CacheSize > 0 {
		p.cache, _ = lru.New[string, []float32](cfg.CacheSize)
	}
	return p
}

// SetSharedCache attaches an optional Redis-backed embedding cache shared
// across sidecar instances. Must be called before Initialize.
func (p *Provider) SetSharedCache(c *RedisCache) { p.shared = c }

// Initialize runs the mode selection procedure once:
//
//	ModeNone → probe remote → ModeRemote
//	                        ↘ load local → ModeLocal
//
// The remote probe requires the model to be registered in the store AND one
// real embedding call with a short fixed string to return a non-null
// vector. When the probe fails the provider falls back to the local model;
// when that also fails initialization is fatal.
func (p *Provider) Initialize(ctx context.Context) error {
	if p.mode != ModeNone {
		return nil
	}

	if p.remote != nil && p.probeRemote(ctx) {
		p.mode = ModeRemote
		slog.Info("embedding provider initialized", "mode", p.mode, "model", p.cfg.Model)
		return nil
	}
	if p.remote != nil {
		p.remote.Close()
		p.remote = nil
	}

	if p.loadLocal == nil {
		return fmt.Errorf("embedding: remote probe failed and no local model configured")
	}
	slog.Info("falling back to local embedding model")
	local, err := p.loadLocal()
	if err != nil {
		return fmt.Errorf("embedding: load local model: %w", err)
	}
	if local.Dimensions() != p.cfg.Dims {
		local.Close()
		return fmt.Errorf("embedding: local model dimensions %d, configured %d",
			local.Dimensions(), p.cfg.Dims)
	}
	p.local = local
	p.mode = ModeLocal
	slog.Info("embedding provider initialized", "mode", p.mode, "dims", p.cfg.Dims)
	return nil
}

func (p *Provider) probeRemote(ctx context.Context) bool {
	registered, err := p.remote.ModelRegistered(ctx, p.cfg.Model)
	if err != nil || !registered {
		if err != nil {
			slog.Debug("model registry check failed", "model", p.cfg.Model, "error", err)
		}
		return false
	}
	vecs, err := p.remote.Embed(ctx, p.cfg.Model, []string{"test"})
	if err != nil || len(vecs) != 1 || len(vecs[0]) == 0 {
		slog.Debug("remote embedding test failed", "model", p.cfg.Model, "error", err)
		return false
	}
	return true
}

// Mode reports the committed strategy, for health reporting.
func (p *Provider) Mode() Mode { return p.mode }

// Model returns the configured model name.
func (p *Provider) Model() string { return p.cfg.Model }

// Dimensions returns the configured output vector size.
func (p *Provider) Dimensions() int { return p.cfg.Dims }

// EmbedMany embeds texts in order: output vector i corresponds to input
// text i. Inputs beyond the model's budget are silently truncated.
func (p *Provider) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if p.mode == ModeNone {
		return nil, fmt.Errorf("embedding provider: %w", store.ErrUnavailable)
	}

	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		text = truncate(text, p.cfg.MaxChars)
		key := p.cacheKey(text)
		if vec, ok := p.cacheGet(ctx, key); ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		vecs, err := p.embed(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range vecs {
			if len(vec) != p.cfg.Dims {
				return nil, &store.BackendError{
					Op:  "embed",
					Err: fmt.Errorf("vector dimensionality %d, expected %d", len(vec), p.cfg.Dims),
				}
			}
			results[missIdx[j]] = vec
			p.cachePut(ctx, p.cacheKey(missTexts[j]), vec)
		}
	}

	return results, nil
}

// EmbedOne embeds a single text; defined as EmbedMany([text])[0].
// Concurrent identical calls are collapsed through singleflight.
func (p *Provider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	key := p.cacheKey(truncate(text, p.cfg.MaxChars))
	v, err, _ := p.sf.Do(key, func() (any, error) {
		vecs, err := p.EmbedMany(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		return vecs[0], nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

func (p *Provider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	switch p.mode {
	case ModeRemote:
		vecs, err := p.remote.Embed(ctx, p.cfg.Model, texts)
		if err != nil {
			// Recoverable: the caller may retry, but the provider does
			// not demote itself to local mode mid-session.
			return nil, store.Backend("remote embed", err)
		}
		return vecs, nil
	case ModeLocal:
		vecs, err := p.local.Encode(ctx, texts)
		if err != nil {
			return nil, store.Backend("local embed", err)
		}
		return vecs, nil
	default:
		return nil, fmt.Errorf("embedding provider: %w", store.ErrUnavailable)
	}
}

// Close releases the backend connection or loaded model.
func (p *Provider) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.remote != nil {
			err = p.remote.Close()
		}
		if p.local != nil {
			if cerr := p.local.Close(); err == nil {
				err = cerr
			}
		}
		p.mode = ModeNone
	})
	return err
}

func (p *Provider) cacheKey(text string) string {
	return memory.ContentHash(p.cfg.Model + "\x00" + text)
}

func (p *Provider) cacheGet(ctx context.Context, key string) ([]float32, bool) {
	if p.cache != nil {
		if vec, ok := p.cache.Get(key); ok {
			return vec, true
		}
	}
	if p.shared != nil {
		if vec, ok := p.shared.Get(ctx, key); ok {
			if p.cache != nil {
				p.cache.Add(key, vec)
			}
			return vec, true
		}
	}
	return nil, false
}

func (p *Provider) cachePut(ctx context.Context, key string, vec []float32) {
	if p.cache != nil {
		p.cache.Add(key, vec)
	}
	if p.shared != nil {
		p.shared.Put(ctx, key, vec)
	}
}

// truncate cuts text to at most max runes. Oversized input is a lossy
// transform, not an error.
func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
