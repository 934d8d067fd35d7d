package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.Auth.TokenTTL != 15*time.Minute {
		t.Fatalf("unexpected ttl %v", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.Secret != "" {
		t.Fatalf("secret should have no default")
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "addr: \":9090\"\nauth:\n  secret: from-file\n  token_ttl: 1h\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FENCELINE_AUTH_SECRET", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("file addr not applied: %q", cfg.Addr)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Fatalf("file ttl not applied: %v", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.Secret != "from-env" {
		t.Fatalf("env should override file, got %q", cfg.Auth.Secret)
	}
}

func TestLoadRejectsBadTTL(t *testing.T) {
	t.Setenv("FENCELINE_TOKEN_TTL", "-5m")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}
