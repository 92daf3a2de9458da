package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema generates the JSON Schema for tether.yml from the Go types.
// Unknown top-level keys stay allowed because they hold extension sections
// such as "logging"; unknown keys inside known sections are rejected.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
		FieldNameTag:               "yaml",
	}

	// Mirror of Config without the inline Extensions field.
	type BaseConfig struct {
		Server     ServerConfig     `yaml:"server,omitempty" jsonschema:"description=HTTP and realtime endpoints"`
		Realtime   RealtimeConfig   `yaml:"realtime,omitempty" jsonschema:"description=Realtime channel timeouts and reconnect policy"`
		Store      StoreConfig      `yaml:"store,omitempty" jsonschema:"description=Credential store"`
		Alerts     AlertsConfig     `yaml:"alerts,omitempty" jsonschema:"description=Departure alert journal"`
		Thresholds ThresholdsConfig `yaml:"thresholds,omitempty" jsonschema:"description=Default distance thresholds in meters"`
		Metrics    MetricsConfig    `yaml:"metrics,omitempty" jsonschema:"description=Prometheus metrics endpoint"`
		DeviceID   string           `yaml:"device_id,omitempty" jsonschema:"description=Device identifier used for signup; generated when empty"`
	}

	schema := r.Reflect(&BaseConfig{})
	schema.Title = "tether configuration"
	schema.Description = "Schema for tether.yml."
	schema.AdditionalProperties = nil

	return json.MarshalIndent(schema, "", "  ")
}
