// Package config loads and watches the daemon configuration file. YAML and
// JSON5 are both accepted, environment variables are expanded, and $include
// directives compose fragments. Hard-block policy changes apply live through
// the watcher.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// Config is the daemon configuration document.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Profiles ProfilesConfig `yaml:"profiles"`
	Trust    TrustConfig    `yaml:"trust"`
	Safety   SafetyConfig   `yaml:"safety"`
	LLM      LLMConfig      `yaml:"llm"`
	Logging  LoggingConfig  `yaml:"logging"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// GatewayConfig configures the IPC endpoint.
type GatewayConfig struct {
	// Addr must stay on loopback; the gateway has no authentication layer
	// of its own.
	Addr           string `yaml:"addr"`
	Path           string `yaml:"path"`
	OutboundBuffer int    `yaml:"outbound_buffer"`
}

// ProfilesConfig locates the profile root.
type ProfilesConfig struct {
	Root string `yaml:"root"`
}

// TrustConfig is the non-overridable deny policy. Reloadable at runtime.
type TrustConfig struct {
	BlockedTools         []string `yaml:"blocked_tools"`
	BlockedDomains       []string `yaml:"blocked_domains"`
	BlockedScopePrefixes []string `yaml:"blocked_scope_prefixes"`
}

// HardBlock converts the trust section into the engine's policy type.
func (t TrustConfig) HardBlock() models.HardBlockConfig {
	return models.HardBlockConfig{
		BlockedTools:         t.BlockedTools,
		BlockedDomains:       t.BlockedDomains,
		BlockedScopePrefixes: t.BlockedScopePrefixes,
	}
}

// SafetyConfig restricts what plans may contain, checked before execution.
type SafetyConfig struct {
	BlockedTools  []string `yaml:"blocked_tools"`
	BlockedScopes []string `yaml:"blocked_scopes"`
}

// LLMConfig tunes the HTTP client shared by all provider adapters.
type LLMConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// RetryCount is a pointer so an explicit 0 (retries disabled) survives
	// defaulting.
	RetryCount *int `yaml:"retry_count"`
}

// Retries returns the configured retry budget; the default applies when the
// key is absent.
func (l LLMConfig) Retries() int {
	if l.RetryCount == nil {
		return defaultRetryCount
	}
	return *l.RetryCount
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Output  string `yaml:"output"`
	Format  string `yaml:"format"`
}

// MetricsConfig exposes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// defaultRetryCount is the LLM retry budget when retry_count is absent.
const defaultRetryCount = 2

// DefaultPath returns the conventional config location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		home = "."
	}
	return filepath.Join(home, ".acta", "config.yaml")
}

// Default returns the built-in configuration, used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, merges, and validates the configuration file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the file when it exists and falls back to defaults
// when it does not. Parse and validation errors are still fatal; a broken
// file must not silently degrade to defaults.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

func applyDefaults(cfg *Config) {
	if cfg.Gateway.Addr == "" {
		cfg.Gateway.Addr = "127.0.0.1:48732"
	}
	if cfg.Gateway.Path == "" {
		cfg.Gateway.Path = "/ipc"
	}
	if cfg.Gateway.OutboundBuffer == 0 {
		cfg.Gateway.OutboundBuffer = 256
	}
	if cfg.Profiles.Root == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			home = "."
		}
		cfg.Profiles.Root = filepath.Join(home, ".acta", "profiles")
	}
	if len(cfg.Safety.BlockedScopes) == 0 {
		cfg.Safety.BlockedScopes = []string{"shell", "system"}
	}
	if cfg.LLM.RequestTimeout == 0 {
		cfg.LLM.RequestTimeout = 60 * time.Second
	}
	if cfg.LLM.RetryCount == nil {
		retries := defaultRetryCount
		cfg.LLM.RetryCount = &retries
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Audit.Output == "" {
		cfg.Audit.Output = "stdout"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = "127.0.0.1:9464"
	}
}

// Validate checks the structural invariants of the configuration.
func (c *Config) Validate() error {
	host, _, found := strings.Cut(c.Gateway.Addr, ":")
	if !found {
		return fmt.Errorf("gateway.addr %q must be host:port", c.Gateway.Addr)
	}
	switch host {
	case "127.0.0.1", "localhost", "::1", "[::1]":
	default:
		return fmt.Errorf("gateway.addr %q must bind loopback", c.Gateway.Addr)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q must be json or text", c.Logging.Format)
	}

	if c.LLM.RetryCount != nil && *c.LLM.RetryCount < 0 {
		return fmt.Errorf("llm.retry_count must not be negative")
	}
	if c.LLM.RequestTimeout < 0 {
		return fmt.Errorf("llm.request_timeout must not be negative")
	}
	return nil
}
