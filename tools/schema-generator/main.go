// Command schema-generator writes the JSON Schemas for tether.yml and its
// "logging" extension section. Run it through go generate in ./config.
package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"github.com/grovetools/tether/config"
	"github.com/grovetools/tether/logging"
	"github.com/invopop/jsonschema"
)

func main() {
	outputDir := "../schema/definitions"
	if len(os.Args) > 1 {
		outputDir = os.Args[1]
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		log.Fatalf("Error creating schema directory: %v", err)
	}

	base, err := config.GenerateSchema()
	if err != nil {
		log.Fatalf("Error generating schema: %v", err)
	}
	write(filepath.Join(outputDir, "tether.schema.json"), base)

	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
	}
	ls := r.Reflect(&logging.Config{})
	ls.Title = "tether logging configuration"
	ls.Description = "Schema for the 'logging' section of tether.yml."
	ls.Required = nil
	data, err := json.MarshalIndent(ls, "", "  ")
	if err != nil {
		log.Fatalf("Error marshaling logging schema: %v", err)
	}
	write(filepath.Join(outputDir, "logging.schema.json"), data)
}

func write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}
	log.Printf("Generated %s", path)
}
