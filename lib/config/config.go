// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production federation testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config is the master configuration for keystoned.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// ServerName is the domain this homeserver signs as, optionally
	// with a port. Required.
	ServerName string `yaml:"server_name"`

	Paths      PathsConfig      `yaml:"paths"`
	Signing    SigningConfig    `yaml:"signing"`
	Storage    StorageConfig    `yaml:"storage"`
	Federation FederationConfig `yaml:"federation"`
	Rooms      RoomsConfig      `yaml:"rooms"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Storage    *StorageConfig    `yaml:"storage,omitempty"`
	Federation *FederationConfig `yaml:"federation,omitempty"`
	Metrics    *MetricsConfig    `yaml:"metrics,omitempty"`
	Log        *LogConfig        `yaml:"log,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for keystone data. Other paths may
	// refer to it as ${KEYSTONE_ROOT}.
	Root string `yaml:"root"`
}

// SigningConfig locates the server's ed25519 signing key.
type SigningConfig struct {
	// KeyFile holds the key as "ed25519 <version> <base64 seed>". It is
	// generated on first start when missing.
	// Default: ${KEYSTONE_ROOT}/signing.key
	KeyFile string `yaml:"key_file"`

	// AgeIdentityFile, when set, names an age identity file; KeyFile is
	// then expected to be age-encrypted to that identity.
	AgeIdentityFile string `yaml:"age_identity_file"`
}

// StorageConfig configures room record persistence.
type StorageConfig struct {
	// Driver is "memory" or "sqlite".
	// Default: memory (development)
	Driver string `yaml:"driver"`

	// Path is the SQLite database file.
	// Default: ${KEYSTONE_ROOT}/rooms.db
	Path string `yaml:"path"`

	// PoolSize is the number of SQLite connections.
	// Default: 4
	PoolSize int `yaml:"pool_size"`
}

// FederationConfig configures the outbound federation client.
type FederationConfig struct {
	// Timeout bounds each outbound call.
	// Default: 30s
	Timeout string `yaml:"timeout"`

	// WireScheme replaces matrix:// when requests are sent.
	// Default: https
	WireScheme string `yaml:"wire_scheme"`

	// DefaultPort is used for servers whose name carries no port.
	// Default: 8448
	DefaultPort int `yaml:"default_port"`

	// RequestsPerSecond paces requests to each destination. Zero
	// disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the pacing bucket size.
	Burst int `yaml:"burst"`

	// StaticHosts maps server names to host:port, bypassing normal
	// resolution.
	StaticHosts map[string]string `yaml:"static_hosts"`
}

// RoomsConfig configures the room cache.
type RoomsConfig struct {
	// CacheIdle is how long an unused room stays loaded.
	// Default: 10m
	CacheIdle string `yaml:"cache_idle"`

	// SweepInterval is how often idle rooms are evicted.
	// Default: 1m
	SweepInterval string `yaml:"sweep_interval"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Listen is the address serving /metrics.
	// Default: 127.0.0.1:9464
	Listen string `yaml:"listen"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is json or text.
	// Default: json
	Format string `yaml:"format"`
}

// Default returns the default configuration. It is the base a config
// file is merged into; the file itself is still required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "keystone")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root: defaultRoot,
		},
		Signing: SigningConfig{
			KeyFile: "${KEYSTONE_ROOT}/signing.key",
		},
		Storage: StorageConfig{
			Driver:   DriverMemory,
			Path:     "${KEYSTONE_ROOT}/rooms.db",
			PoolSize: 4,
		},
		Federation: FederationConfig{
			Timeout:     "30s",
			WireScheme:  "https",
			DefaultPort: 8448,
		},
		Rooms: RoomsConfig{
			CacheIdle:     "10m",
			SweepInterval: "1m",
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from the KEYSTONE_CONFIG environment
// variable. It fails when the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv("KEYSTONE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("KEYSTONE_CONFIG environment variable not set; " +
			"set it to the path of your keystone.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// Environment variables do not override config values. The only
// expansion performed is on path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Storage != nil {
		if overrides.Storage.Driver != "" {
			c.Storage.Driver = overrides.Storage.Driver
		}
		if overrides.Storage.Path != "" {
			c.Storage.Path = overrides.Storage.Path
		}
		if overrides.Storage.PoolSize != 0 {
			c.Storage.PoolSize = overrides.Storage.PoolSize
		}
	}

	if overrides.Federation != nil {
		if overrides.Federation.Timeout != "" {
			c.Federation.Timeout = overrides.Federation.Timeout
		}
		if overrides.Federation.WireScheme != "" {
			c.Federation.WireScheme = overrides.Federation.WireScheme
		}
		if overrides.Federation.DefaultPort != 0 {
			c.Federation.DefaultPort = overrides.Federation.DefaultPort
		}
		if overrides.Federation.RequestsPerSecond != 0 {
			c.Federation.RequestsPerSecond = overrides.Federation.RequestsPerSecond
		}
		if overrides.Federation.Burst != 0 {
			c.Federation.Burst = overrides.Federation.Burst
		}
		if overrides.Federation.StaticHosts != nil {
			c.Federation.StaticHosts = overrides.Federation.StaticHosts
		}
	}

	if overrides.Metrics != nil {
		// Enabled is a bool, so it always applies.
		c.Metrics.Enabled = overrides.Metrics.Enabled
		if overrides.Metrics.Listen != "" {
			c.Metrics.Listen = overrides.Metrics.Listen
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"KEYSTONE_ROOT": c.Paths.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["KEYSTONE_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Signing.KeyFile = expandVars(c.Signing.KeyFile, vars)
	c.Signing.AgeIdentityFile = expandVars(c.Signing.AgeIdentityFile, vars)
	c.Storage.Path = expandVars(c.Storage.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, preferring
// vars over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]Environment{Development, Staging, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.ServerName == "" {
		errs = append(errs, errors.New("server_name is required"))
	}
	if c.Signing.KeyFile == "" {
		errs = append(errs, errors.New("signing.key_file is required"))
	}

	switch c.Storage.Driver {
	case DriverMemory:
		if c.Environment == Production {
			errs = append(errs, errors.New("storage.driver memory is not allowed in production"))
		}
	case DriverSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for the sqlite driver"))
		}
		if c.Storage.PoolSize < 1 {
			errs = append(errs, fmt.Errorf("storage.pool_size must be positive, got %d", c.Storage.PoolSize))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be one of: %v", []string{DriverMemory, DriverSQLite}))
	}

	durations := []struct{ name, value string }{
		{"federation.timeout", c.Federation.Timeout},
		{"rooms.cache_idle", c.Rooms.CacheIdle},
		{"rooms.sweep_interval", c.Rooms.SweepInterval},
	}
	for _, field := range durations {
		if parsed, err := time.ParseDuration(field.value); err != nil || parsed <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration, got %q", field.name, field.value))
		}
	}

	if !slices.Contains([]string{"https", "http"}, c.Federation.WireScheme) {
		errs = append(errs, fmt.Errorf("federation.wire_scheme must be https or http, got %q", c.Federation.WireScheme))
	}
	if c.Federation.DefaultPort < 1 || c.Federation.DefaultPort > 65535 {
		errs = append(errs, fmt.Errorf("federation.default_port out of range: %d", c.Federation.DefaultPort))
	}
	if c.Federation.RequestsPerSecond < 0 || c.Federation.Burst < 0 {
		errs = append(errs, errors.New("federation.requests_per_second and federation.burst must not be negative"))
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen is required when metrics are enabled"))
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}
	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// FederationTimeout returns the parsed federation timeout. The config
// must have been validated.
func (c *Config) FederationTimeout() time.Duration {
	return mustDuration(c.Federation.Timeout)
}

// CacheIdle returns the parsed room cache idle timeout.
func (c *Config) CacheIdle() time.Duration { return mustDuration(c.Rooms.CacheIdle) }

// SweepInterval returns the parsed room sweep interval.
func (c *Config) SweepInterval() time.Duration { return mustDuration(c.Rooms.SweepInterval) }

func mustDuration(value string) time.Duration {
	parsed, _ := time.ParseDuration(value)
	return parsed
}

// EnsurePaths creates the data directories the configuration refers to.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Paths.Root, filepath.Dir(c.Signing.KeyFile)}
	if c.Storage.Driver == DriverSQLite {
		paths = append(paths, filepath.Dir(c.Storage.Path))
	}
	for _, path := range paths {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
