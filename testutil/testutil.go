// Package testutil holds helpers shared by tests across the module.
package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// QuietLogger returns a logger that discards everything.
func QuietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(l).WithField("component", "test")
}

// IsolateHome points every tether directory at a fresh temp dir for the test.
func IsolateHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TETHER_HOME", dir)
	return dir
}

// WriteConfig writes a tether.yml with content into dir and returns its path.
func WriteConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "tether.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// RandomString generates a random string of the specified length
func RandomString(length int) string {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)[:length]
}

// WaitFor polls cond until it returns true or timeout passes.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// ErrStoreBroken is returned by every BrokenStore operation.
var ErrStoreBroken = errors.New("store unavailable")

// BrokenStore is a credential store whose every operation fails.
type BrokenStore struct{}

func (BrokenStore) Get(string) (string, bool, error) { return "", false, ErrStoreBroken }
func (BrokenStore) Set(map[string]string) error      { return ErrStoreBroken }
func (BrokenStore) Delete(...string) error           { return ErrStoreBroken }
