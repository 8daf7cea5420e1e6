// Package config loads the engine configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/thc1006/stagegate/pkg/logging"
	"github.com/thc1006/stagegate/pkg/notify"
)

// Config is the full engine configuration.
type Config struct {
	// HTTPAddr is the listen address of the reference HTTP handlers.
	HTTPAddr string `yaml:"http_addr"`

	Logging logging.Config `yaml:"logging"`

	// ApproverRoles is the fixed role set granted every decide capability.
	ApproverRoles []string `yaml:"approver_roles"`

	Notifier NotifierConfig `yaml:"notifier"`
}

// NotifierConfig tunes the notification publisher chain.
type NotifierConfig struct {
	Enabled bool                 `yaml:"enabled"`
	Breaker notify.BreakerConfig `yaml:"breaker"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		HTTPAddr:      ":8080",
		Logging:       logging.DefaultConfig(),
		ApproverRoles: []string{"approver", "program-director"},
		Notifier: NotifierConfig{
			Enabled: true,
			Breaker: notify.DefaultBreakerConfig(),
		},
	}
}

// Load reads the YAML file at path, falling back to defaults for unset
// fields, then applies environment overrides. An empty path yields the
// defaults with overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.HTTPAddr = getEnvOrDefault("STAGEGATE_HTTP_ADDR", cfg.HTTPAddr)
	cfg.Logging.Level = logging.LogLevel(getEnvOrDefault("STAGEGATE_LOG_LEVEL", string(cfg.Logging.Level)))
	cfg.Logging.Format = getEnvOrDefault("STAGEGATE_LOG_FORMAT", cfg.Logging.Format)
	if roles := os.Getenv("STAGEGATE_APPROVER_ROLES"); roles != "" {
		cfg.ApproverRoles = splitAndTrim(roles)
	}
	cfg.Notifier.Enabled = getEnvBool("STAGEGATE_NOTIFIER_ENABLED", cfg.Notifier.Enabled)
	if v := os.Getenv("STAGEGATE_NOTIFIER_MAX_FAILURES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Notifier.Breaker.MaxFailures = uint32(n)
		}
	}
	if v := os.Getenv("STAGEGATE_NOTIFIER_OPEN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Notifier.Breaker.OpenTimeout = d
		}
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
