// Package config resolves runtime configuration from the environment, with
// an optional YAML overlay file for deployments that prefer checked-in
// settings over raw env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config is the resolved configuration for one server process.
type Config struct {
	Env            string        `yaml:"env"`
	APIPort        int           `yaml:"api_port"`
	SignalingPort  int           `yaml:"signaling_port"`
	DatabaseURL    string        `yaml:"database_url"`
	RedisURL       string        `yaml:"redis_url"`
	TokenSecret    string        `yaml:"token_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

const (
	defaultAPIPort       = 3000
	defaultSignalingPort = 3001
	defaultTokenTTL      = time.Hour
	// devTokenSecret keeps local development frictionless. Production
	// refuses to start without an explicit secret.
	devTokenSecret = "one-call-dev-secret-change-me"
)

// Production reports whether the process runs with production hardening.
func (c *Config) Production() bool { return c.Env == "production" }

// Load reads .env (if present), then the process environment, then an
// optional YAML file named by ONECALL_CONFIG. Env vars win over YAML.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Env:           getenv("APP_ENV", "development"),
		APIPort:       defaultAPIPort,
		SignalingPort: defaultSignalingPort,
		TokenTTL:      defaultTokenTTL,
	}

	if path := os.Getenv("ONECALL_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	var err error
	if cfg.APIPort, err = getport("API_PORT", cfg.APIPort); err != nil {
		return nil, err
	}
	if cfg.SignalingPort, err = getport("SIGNALING_PORT", cfg.SignalingPort); err != nil {
		return nil, err
	}
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getenv("REDIS_URL", cfg.RedisURL)
	cfg.TokenSecret = getenv("TOKEN_SECRET", cfg.TokenSecret)

	if raw := os.Getenv("TOKEN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TOKEN_TTL %q: %w", raw, err)
		}
		cfg.TokenTTL = ttl
	}

	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		cfg.AllowedOrigins = splitOrigins(raw)
	}

	if cfg.TokenSecret == "" {
		if cfg.Production() {
			return nil, fmt.Errorf("TOKEN_SECRET must be set in production")
		}
		cfg.TokenSecret = devTokenSecret
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getport(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return port, nil
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
