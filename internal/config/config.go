// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// relay.
//
// Configuration sources, in order of precedence:
//   - Environment variables (RELAY_ENDPOINT, RELAY_API_KEY, ...)
//   - ~/.rigrun-relay/config.toml
//   - Built-in defaults
//
// A .env file in the working directory is loaded into the environment first,
// so development credentials never have to live in the config file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/rigrun-relay/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete relay configuration.
type Config struct {
	// Remote contains the continuation endpoint settings.
	Remote RemoteConfig `toml:"remote"`

	// Sandbox contains the code-execution service settings.
	Sandbox SandboxConfig `toml:"sandbox"`

	// Safety extends the built-in command policy.
	Safety SafetyConfig `toml:"safety"`

	// Storage controls where session state lives.
	Storage StorageConfig `toml:"storage"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `toml:"log_level"`
}

// RemoteConfig identifies the continuation endpoint.
type RemoteConfig struct {
	// Endpoint is the URL continuation requests are POSTed to.
	Endpoint string `toml:"endpoint"`
	// APIKey is the bearer credential for the endpoint.
	APIKey string `toml:"api_key"`
	// TimeoutSecs bounds one continuation POST. Default 30.
	TimeoutSecs int `toml:"timeout_secs"`
}

// SandboxConfig identifies the code-execution service. An empty APIKey
// disables execute_code gracefully rather than erroring.
type SandboxConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// SafetyConfig lets a deployment extend the built-in command policy. The
// built-in deny patterns and allowlist always apply; these only add.
type SafetyConfig struct {
	// AllowedCommands are extra base commands to allow.
	AllowedCommands []string `toml:"allowed_commands"`
	// BlockedPatterns are extra deny regexes, checked before the allowlist.
	BlockedPatterns []string `toml:"blocked_patterns"`
}

// StorageConfig controls persistence of work context.
type StorageConfig struct {
	// Path is the SQLite database file. Empty means
	// ~/.rigrun-relay/state.db; "memory" keeps state in-process only.
	Path string `toml:"path"`
}

// =============================================================================
// DEFAULTS AND PATHS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			TimeoutSecs: 30,
		},
		Sandbox:  SandboxConfig{},
		Storage:  StorageConfig{},
		LogLevel: "info",
	}
}

// Timeout returns the continuation timeout as a duration.
func (r RemoteConfig) Timeout() time.Duration {
	if r.TimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.TimeoutSecs) * time.Second
}

// ConfigDir returns the relay configuration directory, ~/.rigrun-relay.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigrun-relay"), nil
}

// Path returns the TOML config file path.
func Path() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultStorePath returns the default SQLite state file path.
func DefaultStorePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.db"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the config file (if present), applies environment overrides,
// and validates. A missing file is not an error; defaults apply.
func Load() (*Config, error) {
	// Development convenience; a missing .env is fine.
	_ = godotenv.Load()

	cfg := Default()

	path, err := Path()
	if err == nil {
		if err := LoadTOML(cfg, path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML merges the TOML file at path into cfg.
func LoadTOML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnvOverrides lets environment variables take precedence over the
// file. SECURITY: credentials are expected to arrive this way in CI and
// container deployments.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RELAY_ENDPOINT"); v != "" {
		c.Remote.Endpoint = v
	}
	if v := os.Getenv("RELAY_API_KEY"); v != "" {
		c.Remote.APIKey = v
	}
	if v := os.Getenv("RELAY_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Remote.TimeoutSecs = n
		}
	}
	if v := os.Getenv("SANDBOX_API_KEY"); v != "" {
		c.Sandbox.APIKey = v
	}
	if v := os.Getenv("SANDBOX_BASE_URL"); v != "" {
		c.Sandbox.BaseURL = v
	}
	if v := os.Getenv("RELAY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("RELAY_STORE_PATH"); v != "" {
		c.Storage.Path = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Validate checks field-level constraints. An empty endpoint is allowed at
// load time (check-only invocations don't need one); callers that transmit
// validate presence themselves.
func (c *Config) Validate() error {
	if c.Remote.Endpoint != "" {
		u, err := url.Parse(c.Remote.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return ValidationError{Field: "remote.endpoint", Message: "must be an absolute URL"}
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return ValidationError{Field: "remote.endpoint", Message: "scheme must be http or https"}
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return ValidationError{Field: "log_level", Message: fmt.Sprintf("unknown level %q", c.LogLevel)}
	}
	if c.Remote.TimeoutSecs < 0 {
		return ValidationError{Field: "remote.timeout_secs", Message: "must be positive"}
	}
	return nil
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes cfg to the default config path, creating the directory with
// restrictive permissions if needed.
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path, err := Path()
	if err != nil {
		return err
	}

	var sb strings.Builder
	enc := toml.NewEncoder(&sb)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	// SECURITY: the file may carry credentials; keep it owner-only.
	if err := util.AtomicWriteFile(path, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
