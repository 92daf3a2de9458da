// Package device provides the stable identifier a member device signs up with.
package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/grovetools/tether/pkg/paths"
)

// ID returns the configured identifier when override is non-empty, otherwise
// the identifier stored at the default location, generating it on first use.
func ID(override string) (string, error) {
	if id := strings.TrimSpace(override); id != "" {
		return id, nil
	}
	return LoadOrCreate(paths.DeviceIDPath())
}

// LoadOrCreate reads the identifier at path, writing a new random UUID there
// when the file is missing, empty or not a UUID.
func LoadOrCreate(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, perr := uuid.Parse(id); perr == nil {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read device id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create device id dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write device id: %w", err)
	}
	return id, nil
}
