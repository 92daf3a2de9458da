package schema

import (
	"strings"
	"testing"
)

const testSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "retries": {"type": "integer", "minimum": 1}
  },
  "additionalProperties": false
}`

func TestValidator(t *testing.T) {
	v, err := NewValidator("test.json", []byte(testSchema))
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}

	tests := []struct {
		name    string
		data    interface{}
		wantErr string
	}{
		{"valid", map[string]interface{}{"name": "x", "retries": 3}, ""},
		{"empty", map[string]interface{}{}, ""},
		{"wrong type", map[string]interface{}{"name": 7}, "/name"},
		{"below minimum", map[string]interface{}{"retries": 0}, "/retries"},
		{"unknown key", map[string]interface{}{"extra": true}, "schema validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.data)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewValidatorRejectsBadSchema(t *testing.T) {
	if _, err := NewValidator("bad.json", []byte(`{"type": 12}`)); err == nil {
		t.Error("expected compile error for invalid schema")
	}
}
