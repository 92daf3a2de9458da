package config

import (
	"fmt"
	"net/url"

	"github.com/grovetools/tether/errors"
	"github.com/grovetools/tether/pkg/proximity"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.BaseURL != "" {
		if err := validateURL("server.base_url", c.Server.BaseURL, "http", "https"); err != nil {
			return err
		}
	}
	if c.Server.RealtimeURL != "" {
		if err := validateURL("server.realtime_url", c.Server.RealtimeURL, "ws", "wss", "http", "https"); err != nil {
			return err
		}
	}

	durations := map[string]Duration{
		"server.request_timeout":          c.Server.RequestTimeout,
		"realtime.host_connect_timeout":   c.Realtime.HostConnectTimeout,
		"realtime.member_connect_timeout": c.Realtime.MemberConnectTimeout,
		"realtime.data_timeout":           c.Realtime.DataTimeout,
		"realtime.reconnect_delay":        c.Realtime.ReconnectDelay,
		"realtime.max_reconnect_delay":    c.Realtime.MaxReconnectDelay,
	}
	for name, d := range durations {
		if d < 0 {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("%s must not be negative", name)).
				WithDetail("field", name)
		}
	}
	if c.Realtime.MaxReconnectDelay < c.Realtime.ReconnectDelay {
		return errors.New(errors.ErrCodeConfigValidation, "realtime.max_reconnect_delay must be at least realtime.reconnect_delay")
	}
	if c.Realtime.MaxReconnectAttempts < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "realtime.max_reconnect_attempts must not be negative")
	}

	switch c.Store.Backend {
	case StoreBackendFile, StoreBackendBolt, StoreBackendMemory:
	default:
		return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("unknown store backend: %s", c.Store.Backend)).
			WithDetail("backend", c.Store.Backend)
	}

	t := proximity.Thresholds{Safe: c.Thresholds.Safe, Warning: c.Thresholds.Warning, Danger: c.Thresholds.Danger}
	if err := proximity.ValidateThresholds(t); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid thresholds configuration")
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("%s is not an absolute URL: %s", field, raw)).
			WithDetail("field", field)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("%s has unsupported scheme %q", field, u.Scheme)).
		WithDetail("field", field)
}
