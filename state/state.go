// Package state persists small pieces of local tether state, such as the last
// thresholds confirmed by the server, in a YAML file under the state directory.
package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grovetools/tether/pkg/paths"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// KeyThresholds holds the last thresholds confirmed by the server.
const KeyThresholds = "thresholds"

// State represents the local state as a generic map of key-value pairs.
type State map[string]interface{}

// File is a state file on disk.
type File struct {
	path string
}

// New returns the state file at path.
func New(path string) *File {
	return &File{path: path}
}

// Default returns the state file in the tether state directory.
func Default() *File {
	return New(filepath.Join(paths.StateDir(), "state.yml"))
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Load loads the state from the state file.
// Returns an empty state if the file doesn't exist.
func (f *File) Load() (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(State), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	if state == nil {
		state = make(State)
	}
	return state, nil
}

// Save writes the state file, replacing it atomically.
func (f *File) Save(state State) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Get retrieves a value from the state by key.
// Returns the value and true if found, nil and false otherwise.
func (f *File) Get(key string) (interface{}, bool, error) {
	state, err := f.Load()
	if err != nil {
		return nil, false, err
	}
	val, ok := state[key]
	return val, ok, nil
}

// Decode copies the value stored under key into target, a pointer to a struct
// or map. It reports false when the key is absent.
func (f *File) Decode(key string, target interface{}) (bool, error) {
	val, ok, err := f.Get(key)
	if err != nil || !ok {
		return false, err
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return false, fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(val); err != nil {
		return false, fmt.Errorf("decode state key %q: %w", key, err)
	}
	return true, nil
}

// Set sets a value in the state.
func (f *File) Set(key string, value interface{}) error {
	state, err := f.Load()
	if err != nil {
		return err
	}
	state[key] = value
	return f.Save(state)
}

// Delete removes a key from the state.
func (f *File) Delete(key string) error {
	state, err := f.Load()
	if err != nil {
		return err
	}
	delete(state, key)
	return f.Save(state)
}
