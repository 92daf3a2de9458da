package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/tether/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the global config lookup at an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("TETHER_HOME", home)
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDefaults(t *testing.T) {
	isolate(t)
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Server.RequestTimeout.Std())
	assert.Equal(t, 8*time.Second, cfg.ConnectTimeout("host"))
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout("member"))
	assert.Equal(t, 10*time.Second, cfg.Realtime.DataTimeout.Std())
	assert.Equal(t, 3*time.Second, cfg.Realtime.ReconnectDelay.Std())
	assert.Equal(t, 5, cfg.Realtime.MaxReconnectAttempts)
	assert.Equal(t, "info", cfg.Realtime.DataEvent)
	assert.Equal(t, "requestData", cfg.Realtime.RequestEvent)
	assert.Equal(t, StoreBackendFile, cfg.Store.Backend)
	assert.Equal(t, ThresholdsConfig{Safe: 100, Warning: 200, Danger: 300}, cfg.Thresholds)
}

func TestLayeredMerge(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, "config", "tether", "tether.yml"), `
server:
  base_url: https://global.example.com
  request_timeout: 20s
realtime:
  data_timeout: 15s
`)

	project := t.TempDir()
	writeFile(t, filepath.Join(project, "tether.yml"), `
server:
  base_url: https://project.example.com
thresholds:
  safe: 50
  warning: 150
  danger: 250
`)
	writeFile(t, filepath.Join(project, "tether.override.yml"), `
realtime:
  max_reconnect_attempts: 2
`)

	nested := filepath.Join(project, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	cfg, err := LoadFrom(nested)
	require.NoError(t, err)

	assert.Equal(t, "https://project.example.com", cfg.Server.BaseURL, "project overrides global")
	assert.Equal(t, 20*time.Second, cfg.Server.RequestTimeout.Std(), "global value survives a partial project section")
	assert.Equal(t, "wss://project.example.com", cfg.Server.RealtimeURL, "realtime url derived from base url")
	assert.Equal(t, 15*time.Second, cfg.Realtime.DataTimeout.Std())
	assert.Equal(t, 2, cfg.Realtime.MaxReconnectAttempts)
	assert.Equal(t, 50.0, cfg.Thresholds.Safe)

	layered, err := LoadLayered(nested)
	require.NoError(t, err)
	require.Len(t, layered.Layers, 3)
	assert.Equal(t, SourceGlobal, layered.Layers[0].Source)
	assert.Equal(t, SourceProject, layered.Layers[1].Source)
	assert.Equal(t, SourceOverride, layered.Layers[2].Source)
}

func TestTOMLProjectConfig(t *testing.T) {
	isolate(t)
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "tether.toml"), `
[server]
base_url = "http://localhost:8080"

[store]
backend = "bolt"
`)

	cfg, err := LoadFrom(project)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080", cfg.Server.RealtimeURL)
	assert.Equal(t, StoreBackendBolt, cfg.Store.Backend)
}

func TestEnvExpansion(t *testing.T) {
	isolate(t)
	t.Setenv("TETHER_TEST_URL", "https://env.example.com")

	cfg, err := LoadFromBytes([]byte(`
server:
  base_url: ${TETHER_TEST_URL}
  realtime_url: ${TETHER_TEST_MISSING:-wss://fallback.example.com}
`))
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "wss://fallback.example.com", cfg.Server.RealtimeURL)
}

func TestSchemaRejections(t *testing.T) {
	isolate(t)
	tests := []struct {
		name string
		yaml string
	}{
		{"numeric duration", "realtime:\n  data_timeout: 10\n"},
		{"malformed duration", "realtime:\n  data_timeout: soon\n"},
		{"unknown nested key", "server:\n  base_uri: https://x\n"},
		{"unknown backend", "store:\n  backend: redis\n"},
		{"negative threshold", "thresholds:\n  safe: -1\n  warning: 2\n  danger: 3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeConfigInvalid), "got %v", err)
		})
	}
}

func TestSemanticValidation(t *testing.T) {
	isolate(t)
	tests := []struct {
		name string
		yaml string
	}{
		{"thresholds out of order", "thresholds:\n  safe: 300\n  warning: 200\n  danger: 100\n"},
		{"relative base url", "server:\n  base_url: /api\n"},
		{"bad scheme", "server:\n  base_url: ftp://example.com\n"},
		{"max delay below delay", "realtime:\n  reconnect_delay: 5s\n  max_reconnect_delay: 1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeConfigValidation), "got %v", err)
		})
	}
}

// TestExtensions verifies that extension sections are kept and decodable.
func TestExtensions(t *testing.T) {
	isolate(t)
	cfg, err := LoadFromBytes([]byte(`
logging:
  level: debug
  format:
    preset: json
`))
	require.NoError(t, err)

	type formatSection struct {
		Preset string `yaml:"preset"`
	}
	type loggingSection struct {
		Level  string        `yaml:"level"`
		Format formatSection `yaml:"format"`
	}

	var lc loggingSection
	require.NoError(t, cfg.UnmarshalExtension("logging", &lc))
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "json", lc.Format.Preset)

	var missing loggingSection
	require.NoError(t, cfg.UnmarshalExtension("absent", &missing))
	assert.Empty(t, missing.Level)
}

func TestLoadWithOverride(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yml")
	writeFile(t, path, "metrics:\n  addr: \":9100\"\n")

	cfg, err := LoadWithOverride(path, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)

	_, err = LoadWithOverride(filepath.Join(t.TempDir(), "nope.yml"), logrus.New())
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	_, err := FindConfigFile(dir)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))

	writeFile(t, filepath.Join(dir, ".tether.yml"), "{}\n")
	found, err := FindConfigFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".tether.yml"), found)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Std())

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))

	assert.Error(t, d.UnmarshalText([]byte("ninety")))
}

func TestGenerateSchema(t *testing.T) {
	doc, err := GenerateSchema()
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"base_url"`)
	assert.Contains(t, string(doc), `"max_reconnect_attempts"`)
	assert.Contains(t, string(doc), `"pattern"`)
}
