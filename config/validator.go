package config

import (
	"sync"

	"github.com/grovetools/tether/schema"
)

var (
	validatorOnce sync.Once
	validatorInst *schema.Validator
	validatorErr  error
)

// SchemaValidator validates raw configuration documents against the schema
// generated by GenerateSchema.
type SchemaValidator struct {
	validator *schema.Validator
}

// NewSchemaValidator returns a validator; the schema is generated and compiled once.
func NewSchemaValidator() (*SchemaValidator, error) {
	validatorOnce.Do(func() {
		doc, err := GenerateSchema()
		if err != nil {
			validatorErr = err
			return
		}
		validatorInst, validatorErr = schema.NewValidator("tether.json", doc)
	})
	if validatorErr != nil {
		return nil, validatorErr
	}
	return &SchemaValidator{validator: validatorInst}, nil
}

// Validate validates configuration data against the schema.
func (v *SchemaValidator) Validate(configData interface{}) error {
	return v.validator.Validate(configData)
}
