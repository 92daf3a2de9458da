package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

//go:generate go run ../tools/schema-generator/

// Store backends understood by the credential store factory.
const (
	StoreBackendFile   = "file"
	StoreBackendBolt   = "bolt"
	StoreBackendMemory = "memory"
)

// ServerConfig locates the backend.
type ServerConfig struct {
	BaseURL        string   `yaml:"base_url,omitempty" toml:"base_url,omitempty" jsonschema:"description=Base URL of the HTTP API (e.g. https://api.example.com)"`
	RealtimeURL    string   `yaml:"realtime_url,omitempty" toml:"realtime_url,omitempty" jsonschema:"description=Base URL of the realtime endpoint; derived from base_url when empty"`
	RequestTimeout Duration `yaml:"request_timeout,omitempty" toml:"request_timeout,omitempty" jsonschema:"description=Timeout for a single HTTP request"`
}

// RealtimeConfig controls the realtime channel and its reconnect policy.
type RealtimeConfig struct {
	HostConnectTimeout   Duration `yaml:"host_connect_timeout,omitempty" toml:"host_connect_timeout,omitempty" jsonschema:"description=Connect timeout for the host channel"`
	MemberConnectTimeout Duration `yaml:"member_connect_timeout,omitempty" toml:"member_connect_timeout,omitempty" jsonschema:"description=Connect timeout for the member channel"`
	DataTimeout          Duration `yaml:"data_timeout,omitempty" toml:"data_timeout,omitempty" jsonschema:"description=How long to wait for the first snapshot after connecting"`
	ReconnectDelay       Duration `yaml:"reconnect_delay,omitempty" toml:"reconnect_delay,omitempty" jsonschema:"description=Delay before the first reconnect attempt"`
	MaxReconnectDelay    Duration `yaml:"max_reconnect_delay,omitempty" toml:"max_reconnect_delay,omitempty" jsonschema:"description=Upper bound for the reconnect backoff"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts,omitempty" toml:"max_reconnect_attempts,omitempty" jsonschema:"minimum=1,description=Consecutive failed reconnects before giving up"`
	RequestEvent         string   `yaml:"request_event,omitempty" toml:"request_event,omitempty" jsonschema:"description=Event sent once after connecting to request data"`
	DataEvent            string   `yaml:"data_event,omitempty" toml:"data_event,omitempty" jsonschema:"description=Event carrying location snapshots"`
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	Backend string `yaml:"backend,omitempty" toml:"backend,omitempty" jsonschema:"enum=file,enum=bolt,enum=memory,description=Credential store backend"`
	Path    string `yaml:"path,omitempty" toml:"path,omitempty" jsonschema:"description=Location of the credential store; defaults under the XDG state directory"`
}

// AlertsConfig controls the departure alert journal.
type AlertsConfig struct {
	Disabled bool   `yaml:"disabled,omitempty" toml:"disabled,omitempty" jsonschema:"description=Disable the sqlite alert journal"`
	Journal  string `yaml:"journal,omitempty" toml:"journal,omitempty" jsonschema:"description=Path to the alert journal database"`
}

// ThresholdsConfig holds the local default distance thresholds in meters.
type ThresholdsConfig struct {
	Safe    float64 `yaml:"safe,omitempty" toml:"safe,omitempty" jsonschema:"minimum=0,description=Safe radius"`
	Warning float64 `yaml:"warning,omitempty" toml:"warning,omitempty" jsonschema:"minimum=0,description=Warning radius"`
	Danger  float64 `yaml:"danger,omitempty" toml:"danger,omitempty" jsonschema:"minimum=0,description=Danger radius"`
}

// MetricsConfig exposes Prometheus metrics while watching.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" toml:"addr,omitempty" jsonschema:"description=Listen address for /metrics (e.g. :9090); disabled when empty"`
}

// Config represents the tether configuration (tether.yml).
type Config struct {
	Server     ServerConfig     `yaml:"server,omitempty" toml:"server,omitempty"`
	Realtime   RealtimeConfig   `yaml:"realtime,omitempty" toml:"realtime,omitempty"`
	Store      StoreConfig      `yaml:"store,omitempty" toml:"store,omitempty"`
	Alerts     AlertsConfig     `yaml:"alerts,omitempty" toml:"alerts,omitempty"`
	Thresholds ThresholdsConfig `yaml:"thresholds,omitempty" toml:"thresholds,omitempty"`
	Metrics    MetricsConfig    `yaml:"metrics,omitempty" toml:"metrics,omitempty"`
	DeviceID   string           `yaml:"device_id,omitempty" toml:"device_id,omitempty"`

	// Extensions captures all other top-level keys for extensibility.
	Extensions map[string]interface{} `yaml:",inline" toml:"-" jsonschema:"-"`
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = Duration(10 * time.Second)
	}
	if c.Server.RealtimeURL == "" && c.Server.BaseURL != "" {
		c.Server.RealtimeURL = realtimeFromBase(c.Server.BaseURL)
	}

	rt := &c.Realtime
	if rt.HostConnectTimeout == 0 {
		rt.HostConnectTimeout = Duration(8 * time.Second)
	}
	if rt.MemberConnectTimeout == 0 {
		rt.MemberConnectTimeout = Duration(5 * time.Second)
	}
	if rt.DataTimeout == 0 {
		rt.DataTimeout = Duration(10 * time.Second)
	}
	if rt.ReconnectDelay == 0 {
		rt.ReconnectDelay = Duration(3 * time.Second)
	}
	if rt.MaxReconnectDelay == 0 {
		rt.MaxReconnectDelay = rt.ReconnectDelay
	}
	if rt.MaxReconnectAttempts == 0 {
		rt.MaxReconnectAttempts = 5
	}
	if rt.RequestEvent == "" {
		rt.RequestEvent = "requestData"
	}
	if rt.DataEvent == "" {
		rt.DataEvent = "info"
	}

	if c.Store.Backend == "" {
		c.Store.Backend = StoreBackendFile
	}

	if c.Thresholds == (ThresholdsConfig{}) {
		c.Thresholds = ThresholdsConfig{Safe: 100, Warning: 200, Danger: 300}
	}
}

// ConnectTimeout returns the connect timeout for a role ("host" or "member").
func (c *Config) ConnectTimeout(role string) time.Duration {
	if role == "member" {
		return c.Realtime.MemberConnectTimeout.Std()
	}
	return c.Realtime.HostConnectTimeout.Std()
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded tether.yml into the provided target struct. The target must be a pointer.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}

// ConfigSource identifies the origin of a configuration value.
type ConfigSource string

const (
	SourceDefault  ConfigSource = "default"
	SourceGlobal   ConfigSource = "global"
	SourceProject  ConfigSource = "project"
	SourceOverride ConfigSource = "override"
)

// Layer is one configuration file as read from disk, before merging.
type Layer struct {
	Source ConfigSource
	Path   string
	Raw    map[string]interface{}
}

// LayeredConfig holds the raw configuration from each source file,
// as well as the final merged configuration, for analysis purposes.
type LayeredConfig struct {
	Layers []Layer
	Final  *Config
}
