package config

import (
	"bytes"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/grovetools/tether/errors"
	"github.com/grovetools/tether/pkg/paths"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

var configNames = []string{
	"tether.yml",
	"tether.yaml",
	"tether.toml",
	".tether.yml",
	".tether.yaml",
}

var overrideNames = []string{
	"tether.override.yml",
	"tether.override.yaml",
	"tether.override.toml",
}

// Load reads and parses a single tether configuration file
func Load(path string) (*Config, error) {
	raw, err := readLayer(path)
	if err != nil {
		return nil, err
	}
	return finalize(raw)
}

// LoadFromBytes parses YAML configuration from a byte array
func LoadFromBytes(data []byte) (*Config, error) {
	raw, err := parseRaw(data, "yaml")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
	}
	return finalize(raw)
}

// LoadDefault finds and loads the configuration with hierarchical merging:
// 1. Global config (~/.config/tether/tether.yml) - base layer
// 2. Project config (tether.yml) - overrides global
// 3. Local override (tether.override.yml) - overrides all
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}

	return LoadFrom(cwd)
}

// LoadFrom loads configuration with hierarchical merging starting from the given directory
func LoadFrom(startDir string) (*Config, error) {
	return LoadFromWithLogger(startDir, logrus.New())
}

// LoadFromWithLogger loads configuration with hierarchical merging and logging.
// Unlike the project file of other tools, every layer is optional: with no files
// at all the defaults apply.
func LoadFromWithLogger(startDir string, logger *logrus.Logger) (*Config, error) {
	layered, err := loadLayers(startDir, "", logger)
	if err != nil {
		return nil, err
	}
	return layered.Final, nil
}

// LoadWithOverride loads the global layer and then the given file in place of the
// project discovery. Used by the --config flag.
func LoadWithOverride(path string, logger *logrus.Logger) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.ConfigNotFound(path)
	}
	layered, err := loadLayers("", path, logger)
	if err != nil {
		return nil, err
	}
	return layered.Final, nil
}

// LoadLayered finds and loads all configuration layers (global, project, overrides)
// without discarding them, for analysis purposes. It also computes the final merged config.
func LoadLayered(startDir string) (*LayeredConfig, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return loadLayers(startDir, "", logger)
}

func loadLayers(startDir, explicit string, logger *logrus.Logger) (*LayeredConfig, error) {
	layered := &LayeredConfig{}

	// 1. Global config (optional)
	if globalPath := GlobalConfigPath(); globalPath != "" {
		raw, err := readLayer(globalPath)
		switch {
		case err == nil:
			logger.WithField("path", globalPath).Debug("Loading global configuration")
			layered.Layers = append(layered.Layers, Layer{Source: SourceGlobal, Path: globalPath, Raw: raw})
		case errors.Is(err, errors.ErrCodeConfigNotFound):
		default:
			logger.WithError(err).Warn("Failed to load global configuration, continuing without it")
		}
	}

	// 2. Project config (optional)
	projectPath := explicit
	if projectPath == "" && startDir != "" {
		if found, err := FindConfigFile(startDir); err == nil {
			projectPath = found
		}
	}
	if projectPath != "" {
		logger.WithField("path", projectPath).Debug("Loading project configuration")
		raw, err := readLayer(projectPath)
		if err != nil {
			return nil, err
		}
		layered.Layers = append(layered.Layers, Layer{Source: SourceProject, Path: projectPath, Raw: raw})

		// 3. Override files next to the project file (optional)
		projectDir := filepath.Dir(projectPath)
		for _, name := range overrideNames {
			overridePath := filepath.Join(projectDir, name)
			raw, err := readLayer(overridePath)
			if err != nil {
				if !errors.Is(err, errors.ErrCodeConfigNotFound) {
					logger.WithError(err).Warn("Failed to parse override file, skipping")
				}
				continue
			}
			logger.WithField("path", overridePath).Debug("Loading local override configuration")
			layered.Layers = append(layered.Layers, Layer{Source: SourceOverride, Path: overridePath, Raw: raw})
		}
	}

	merged := map[string]interface{}{}
	for _, layer := range layered.Layers {
		merged = mergeMaps(merged, layer.Raw)
	}

	final, err := finalize(merged)
	if err != nil {
		return nil, err
	}
	layered.Final = final

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(final); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}

	return layered, nil
}

// finalize validates a merged raw document and turns it into a Config with defaults.
func finalize(raw map[string]interface{}) (*Config, error) {
	validator, err := NewSchemaValidator()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create validator")
	}
	if err := validator.Validate(raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "schema validation failed")
	}

	// Round-trip through YAML so Duration and friends use their text decoders.
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to encode merged configuration")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode merged configuration")
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readLayer(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	raw, err := parseRaw(data, formatFor(path))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config file").
			WithDetail("path", path)
	}
	return raw, nil
}

func parseRaw(data []byte, format string) (map[string]interface{}, error) {
	expanded := []byte(expandEnvVars(string(data)))
	raw := map[string]interface{}{}
	if len(bytes.TrimSpace(expanded)) == 0 {
		return raw, nil
	}

	var err error
	if format == "toml" {
		err = toml.Unmarshal(expanded, &raw)
	} else {
		err = yaml.Unmarshal(expanded, &raw)
	}
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	return raw, nil
}

func formatFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

// FindConfigFile searches from startDir up to the filesystem root for a tether
// configuration file.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// GlobalConfigPath returns the first existing global config file, or the default
// YAML location when none exists.
func GlobalConfigPath() string {
	dir := paths.ConfigDir()
	if dir == "" {
		return ""
	}
	for _, name := range []string{"tether.yml", "tether.yaml", "tether.toml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(dir, "tether.yml")
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// realtimeFromBase maps http(s) to ws(s) on the same host.
func realtimeFromBase(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return strings.TrimRight(u.String(), "/")
}
