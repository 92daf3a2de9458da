package credstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var credentialsBucket = []byte("credentials")

// BoltStore keeps values in a bbolt database. The database is opened per
// operation so several tether processes can share it.
type BoltStore struct {
	path    string
	timeout time.Duration
}

// NewBoltStore returns a store backed by the bbolt file at path.
func NewBoltStore(path string) *BoltStore {
	return &BoltStore{path: path, timeout: 2 * time.Second}
}

// Path returns the database file.
func (s *BoltStore) Path() string {
	return s.path
}

func (s *BoltStore) open(readOnly bool) (*bolt.DB, error) {
	if !readOnly {
		if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
			return nil, fmt.Errorf("create credentials directory: %w", err)
		}
	}
	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: s.timeout, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("open credentials db: %w", err)
	}
	return db, nil
}

// Get retrieves a value by key.
func (s *BoltStore) Get(key string) (string, bool, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return "", false, nil
	}
	db, err := s.open(true)
	if err != nil {
		return "", false, err
	}
	defer db.Close()

	var (
		value string
		found bool
	)
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value, found = string(v), true
		}
		return nil
	})
	return value, found, err
}

// Set writes all values in one transaction.
func (s *BoltStore) Set(values map[string]string) error {
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(credentialsBucket)
		if err != nil {
			return err
		}
		for k, v := range values {
			if err := b.Put([]byte(k), []byte(v)); err != nil {
				return fmt.Errorf("put %s: %w", k, err)
			}
		}
		return nil
	})
}

// Delete removes keys in one transaction.
func (s *BoltStore) Delete(keys ...string) error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		if b == nil {
			return nil
		}
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
		}
		return nil
	})
}
