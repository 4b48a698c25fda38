package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
server:
  port: "9090"
redis:
  addr: "localhost:6379"
quiz:
  ttl: "5m"
auth:
  jwt_secret: "from-file"
ws:
  send_buffer: 32
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("DATABASE_URL", "postgres://quiz@localhost/quiz")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" || cfg.WS.SendBuffer != 32 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("expected env secret, got %s", cfg.Auth.JWTSecret)
	}
	if cfg.Postgres.URL != "postgres://quiz@localhost/quiz" {
		t.Fatalf("expected env database url, got %s", cfg.Postgres.URL)
	}
	if got := TTLDuration(cfg.Quiz.TTL, time.Minute); got != 5*time.Minute {
		t.Fatalf("expected 5m ttl, got %s", got)
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := TTLDuration("bogus", time.Second); got != time.Second {
		t.Fatalf("expected fallback for bad input, got %s", got)
	}
}
