package credstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/tether/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	dir := t.TempDir()
	return map[string]Store{
		"file":   NewFileStore(filepath.Join(dir, "creds", "credentials.yml")),
		"bolt":   NewBoltStore(filepath.Join(dir, "creds", "credentials.db")),
		"memory": NewMemoryStore(),
	}
}

func TestStoreOperations(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get("access_token")
			require.NoError(t, err)
			assert.False(t, ok, "empty store has no keys")

			require.NoError(t, store.Set(map[string]string{
				"access_token":  "a1",
				"refresh_token": "r1",
				"user_type":     "host",
			}))

			v, ok, err := store.Get("refresh_token")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "r1", v)

			require.NoError(t, store.Set(map[string]string{"access_token": "a2"}))
			v, _, _ = store.Get("access_token")
			assert.Equal(t, "a2", v)
			v, _, _ = store.Get("user_type")
			assert.Equal(t, "host", v, "unrelated keys survive a partial set")

			require.NoError(t, store.Delete("access_token", "refresh_token", "user_type", "missing"))
			_, ok, err = store.Get("user_type")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Delete("access_token"), "deleting from an empty store is fine")
		})
	}
}

func TestFileStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yml")
	store := NewFileStore(path)
	require.NoError(t, store.Set(map[string]string{"access_token": "secret"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, store.Delete("access_token"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file is removed once empty")
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yml")
	require.NoError(t, os.WriteFile(path, []byte("{not: [valid"), 0600))
	store := NewFileStore(path)

	_, _, err := store.Get("access_token")
	assert.Error(t, err)

	require.NoError(t, store.Set(map[string]string{"access_token": "fresh"}))
	v, ok, err := store.Get("access_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(config.StoreConfig{Backend: config.StoreBackendFile, Path: filepath.Join(dir, "c.yml")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	assert.Equal(t, filepath.Join(dir, "c.yml"), Location(s))

	s, err = Open(config.StoreConfig{Backend: config.StoreBackendBolt, Path: filepath.Join(dir, "c.db")})
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, s)

	s, err = Open(config.StoreConfig{Backend: config.StoreBackendMemory})
	require.NoError(t, err)
	assert.Equal(t, "", Location(s))

	_, err = Open(config.StoreConfig{Backend: "redis"})
	assert.Error(t, err)
}

func TestWatcherReportsRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yml")
	store := NewFileStore(path)
	require.NoError(t, store.Set(map[string]string{"access_token": "a"}))

	changed := make(chan struct{}, 4)
	w, err := NewWatcher(path, 10*time.Millisecond, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.NoError(t, store.Delete("access_token"))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification after removing the file")
	}
}
