// Package credstore persists small string values such as session tokens.
//
// Backends are interchangeable: a YAML file (default), a bbolt database and an
// in-memory map for tests. Callers treat a store as an opaque key/value map and
// write related keys together with Set.
package credstore

import (
	"fmt"

	"github.com/grovetools/tether/config"
	"github.com/grovetools/tether/pkg/paths"
)

// Store is a persistent string key/value map.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	// Set writes all values in a single update.
	Set(values map[string]string) error
	// Delete removes the given keys. Missing keys are ignored.
	Delete(keys ...string) error
}

// Open builds the store selected by cfg.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", config.StoreBackendFile:
		path := cfg.Path
		if path == "" {
			path = paths.CredentialsPath()
		}
		return NewFileStore(path), nil
	case config.StoreBackendBolt:
		path := cfg.Path
		if path == "" {
			path = paths.CredentialsDBPath()
		}
		return NewBoltStore(path), nil
	case config.StoreBackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown credential store backend %q", cfg.Backend)
	}
}

// Location returns the on-disk path of s, or "" for stores without one.
func Location(s Store) string {
	switch st := s.(type) {
	case *FileStore:
		return st.Path()
	case *BoltStore:
		return st.Path()
	default:
		return ""
	}
}
