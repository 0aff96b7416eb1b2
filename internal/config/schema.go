// Package config handles YAML configuration loading, environment variable
// expansion, and startup validation for pulsewatch.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" or "5m" parse
// directly into config fields.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level configuration structure.
type Config struct {
	// Bind is the HTTP listen address, e.g. "127.0.0.1:8080".
	Bind string `yaml:"bind"`

	// Database is the path to the SQLite database file.
	Database string `yaml:"database"`

	Poll    PollConfig    `yaml:"poll"`
	VK      VKConfig      `yaml:"vk"`
	Auth    AuthConfig    `yaml:"auth"`
	Sweep   SweepConfig   `yaml:"sweep"`
	Tracing TracingConfig `yaml:"tracing"`
}

// PollConfig controls the sampling cadence and window lifetimes.
type PollConfig struct {
	// Interval is the tick cadence of each polling job.
	Interval Duration `yaml:"interval"`

	// WindowPeriod is the duration a freshly created or extended window
	// stays open.
	WindowPeriod Duration `yaml:"window_period"`

	// FetchTimeout bounds a single VK API call. Must be smaller than
	// Interval so a hung fetch cannot stall a tick past its cadence.
	FetchTimeout Duration `yaml:"fetch_timeout"`
}

// VKConfig holds credentials and endpoint settings for the VK API.
type VKConfig struct {
	// Token is the VK access token. Supports ${VK_TOKEN} expansion.
	Token string `yaml:"token"`

	// Domain is the full URL of the wall.getById method endpoint.
	Domain string `yaml:"domain"`

	// Version is the VK API version, e.g. "5.199".
	Version string `yaml:"version"`
}

// AuthConfig protects the /status endpoint when a token is set.
type AuthConfig struct {
	// Token is the expected bearer token. Empty disables auth.
	Token string `yaml:"token"`
}

// SweepConfig controls the periodic reconcile pass that re-schedules open
// windows whose last sample went stale without a new client request.
type SweepConfig struct {
	// Enabled turns the sweep on. The startup reconcile always runs.
	Enabled bool `yaml:"enabled"`

	// Schedule is a 5-field cron expression. Empty means "*/5 * * * *".
	Schedule string `yaml:"schedule"`
}

// TracingConfig enables OTLP trace export when an endpoint is set.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector host:port. Empty disables tracing.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the exporter connection.
	Insecure bool `yaml:"insecure"`
}

// Default values applied by withDefaults.
const (
	DefaultBind         = "127.0.0.1:8080"
	DefaultDatabase     = "pulsewatch.db"
	DefaultInterval     = 30 * time.Second
	DefaultWindowPeriod = 300 * time.Second
	DefaultFetchTimeout = 10 * time.Second
	DefaultVKVersion    = "5.199"
)

func (c *Config) withDefaults() {
	if c.Bind == "" {
		c.Bind = DefaultBind
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = Duration(DefaultInterval)
	}
	if c.Poll.WindowPeriod == 0 {
		c.Poll.WindowPeriod = Duration(DefaultWindowPeriod)
	}
	if c.Poll.FetchTimeout == 0 {
		c.Poll.FetchTimeout = Duration(DefaultFetchTimeout)
	}
	if c.VK.Version == "" {
		c.VK.Version = DefaultVKVersion
	}
}
