// Package config loads sidecar settings from the environment.
package config

import (
	"fmt"
	"regexp"

	"github.com/caarlos0/env/v11"
)

// modelNameRe is the allow-list for in-store model identifiers. The name is
// interpolated into registry probe SQL, so anything outside this set is
// rejected before a backend call is made.
var modelNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Settings holds all service configuration, parsed from environment
// variables with the PGCLAW_ prefix.
type Settings struct {
	// Postgres connection. DSN wins when set; otherwise the host/port
	// fields are assembled into one.
	DSN      string `env:"PGCLAW_DSN"`
	Host     string `env:"PGCLAW_PG_HOST" envDefault:"localhost"`
	Port     int    `env:"PGCLAW_PG_PORT" envDefault:"5432"`
	Database string `env:"PGCLAW_PG_DATABASE" envDefault:"pgclaw"`
	User     string `env:"PGCLAW_PG_USER" envDefault:"pgclaw"`
	Password string `env:"PGCLAW_PG_PASSWORD"`
	SSLMode  string `env:"PGCLAW_PG_SSLMODE" envDefault:"disable"`

	PoolMin int `env:"PGCLAW_POOL_MIN" envDefault:"2"`
	PoolMax int `env:"PGCLAW_POOL_MAX" envDefault:"10"`

	// Embedding configuration.
	EmbedModel    string `env:"PGCLAW_EMBED_MODEL" envDefault:"all_minilm_l12_v2"`
	EmbedDims     int    `env:"PGCLAW_EMBED_DIMS" envDefault:"384"`
	EmbedMaxChars int    `env:"PGCLAW_EMBED_MAX_CHARS" envDefault:"512"`
	CacheSize     int    `env:"PGCLAW_EMBED_CACHE_SIZE" envDefault:"4096"`

	// Local (in-process) model fallback.
	LocalModelPath     string `env:"PGCLAW_LOCAL_MODEL_PATH"`
	LocalTokenizerPath string `env:"PGCLAW_LOCAL_TOKENIZER_PATH"`
	OnnxLibraryPath    string `env:"PGCLAW_ONNX_LIBRARY_PATH"`

	// Optional shared embedding cache.
	RedisURL string `env:"PGCLAW_REDIS_URL"`

	// Service surface.
	ServicePort  int    `env:"PGCLAW_SERVICE_PORT" envDefault:"8100"`
	ServiceToken string `env:"PGCLAW_SERVICE_TOKEN"`
	AutoInit     bool   `env:"PGCLAW_AUTO_INIT" envDefault:"false"`

	// Tracing (OTLP). Empty endpoint disables export.
	OTLPEndpoint string `env:"PGCLAW_OTLP_ENDPOINT"`
	OTLPProtocol string `env:"PGCLAW_OTLP_PROTOCOL" envDefault:"grpc"`
	OTLPInsecure bool   `env:"PGCLAW_OTLP_INSECURE" envDefault:"false"`
}

// Load parses settings from the environment and validates them.
func Load() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects malformed settings before any backend is contacted.
func (s *Settings) Validate() error {
	if !modelNameRe.MatchString(s.EmbedModel) {
		return fmt.Errorf("invalid embed model name %q (alphanumeric and underscores only)", s.EmbedModel)
	}
	if s.PoolMin < 0 || s.PoolMax < 1 || s.PoolMin > s.PoolMax {
		return fmt.Errorf("invalid pool bounds min=%d max=%d", s.PoolMin, s.PoolMax)
	}
	if s.EmbedDims <= 0 {
		return fmt.Errorf("invalid embedding dimensions %d", s.EmbedDims)
	}
	return nil
}

// PostgresDSN returns the connection string for the pool.
func (s *Settings) PostgresDSN() string {
	if s.DSN != "" {
		return s.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, s.Port, s.Database, s.SSLMode)
}
