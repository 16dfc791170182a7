package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ServicePort != 8100 {
		t.Errorf("ServicePort = %d, want 8100", s.ServicePort)
	}
	if s.EmbedModel != "all_minilm_l12_v2" {
		t.Errorf("EmbedModel = %q", s.EmbedModel)
	}
	if s.EmbedDims != 384 {
		t.Errorf("EmbedDims = %d, want 384", s.EmbedDims)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PGCLAW_PG_HOST", "db.internal")
	t.Setenv("PGCLAW_POOL_MAX", "25")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Host != "db.internal" {
		t.Errorf("Host = %q", s.Host)
	}
	if s.PoolMax != 25 {
		t.Errorf("PoolMax = %d", s.PoolMax)
	}
}

func TestValidate_ModelName(t *testing.T) {
	ok := []string{"all_minilm_l12_v2", "ALL_MINILM", "model1"}
	bad := []string{"model-1", "m;DROP TABLE", "model name", ""}

	for _, name := range ok {
		s := Settings{EmbedModel: name, PoolMin: 1, PoolMax: 2, EmbedDims: 384}
		if err := s.Validate(); err != nil {
			t.Errorf("Validate(%q): unexpected error %v", name, err)
		}
	}
	for _, name := range bad {
		s := Settings{EmbedModel: name, PoolMin: 1, PoolMax: 2, EmbedDims: 384}
		if err := s.Validate(); err == nil {
			t.Errorf("Validate(%q): expected error", name)
		}
	}
}

func TestValidate_PoolBounds(t *testing.T) {
	s := Settings{EmbedModel: "m", PoolMin: 5, PoolMax: 2, EmbedDims: 384}
	if err := s.Validate(); err == nil {
		t.Error("expected error for min > max")
	}
}

func TestPostgresDSN(t *testing.T) {
	s := Settings{Host: "h", Port: 5432, Database: "d", User: "u", Password: "p", SSLMode: "disable"}
	want := "postgres://u:p@h:5432/d?sslmode=disable"
	if got := s.PostgresDSN(); got != want {
		t.Errorf("PostgresDSN = %q, want %q", got, want)
	}

	s.DSN = "postgres://explicit"
	if got := s.PostgresDSN(); got != "postgres://explicit" {
		t.Errorf("explicit DSN not honored: %q", got)
	}
}
