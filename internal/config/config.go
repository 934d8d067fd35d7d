// Package config loads service configuration from an optional YAML file with
// environment overrides. Environment always wins so deployments can keep a
// checked-in baseline file and inject secrets separately.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "FENCELINE_"

// AuthConfig holds token signing settings.
type AuthConfig struct {
	// Secret signs access tokens. Leaving it empty disables issuance but
	// not the rest of the API.
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// LimitsConfig holds request throttling settings.
type LimitsConfig struct {
	RateBurst     int   `yaml:"rate_burst"`
	RatePerSecond int   `yaml:"rate_per_second"`
	MaxBodyBytes  int64 `yaml:"max_body_bytes"`
}

// Config is the full service configuration.
type Config struct {
	Addr   string       `yaml:"addr"`
	PGDSN  string       `yaml:"pg_dsn"`
	Auth   AuthConfig   `yaml:"auth"`
	Limits LimitsConfig `yaml:"limits"`
}

// Default returns a configuration suitable for local development, minus the
// auth secret which has no safe default.
func Default() Config {
	return Config{
		Addr: ":8080",
		Auth: AuthConfig{
			Issuer:   "fenceline",
			TokenTTL: 15 * time.Minute,
		},
		Limits: LimitsConfig{
			RateBurst:     20,
			RatePerSecond: 10,
			MaxBodyBytes:  1 << 20,
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist), then applies FENCELINE_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// baseline file is optional
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := getenv("ADDR"); v != "" {
		c.Addr = v
	}
	if v := getenv("PG_DSN"); v != "" {
		c.PGDSN = v
	}
	if v := getenv("AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := getenv("AUTH_ISSUER"); v != "" {
		c.Auth.Issuer = v
	}
	if v := getenv("TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return fmt.Errorf("config: invalid %sTOKEN_TTL %q", envPrefix, v)
		}
		c.Auth.TokenTTL = ttl
	}
	if v := getenv("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("config: invalid %sRATE_BURST %q", envPrefix, v)
		}
		c.Limits.RateBurst = n
	}
	if v := getenv("RATE_PER_SECOND"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("config: invalid %sRATE_PER_SECOND %q", envPrefix, v)
		}
		c.Limits.RatePerSecond = n
	}
	return nil
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}
