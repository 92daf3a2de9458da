// Package paths provides XDG-compliant path resolution for tether.
//
// Resolution order:
// 1. TETHER_HOME (portable root) → $TETHER_HOME/{config,data,state,cache}
// 2. XDG env vars → $XDG_*_HOME/tether
// 3. Platform defaults → ~/.config/tether, ~/.local/share/tether, etc.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "tether"

// home resolves one XDG base directory.
func home(sub, xdgVar string, fallback ...string) string {
	if root := os.Getenv("TETHER_HOME"); root != "" {
		return filepath.Join(root, sub)
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return dir
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(append([]string{homeDir}, fallback...)...)
	}
	return ""
}

func appDir(base string) string {
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}

// ConfigDir returns the tether configuration directory.
// Used for the global tether.yml.
func ConfigDir() string {
	return appDir(home("config", "XDG_CONFIG_HOME", ".config"))
}

// DataDir returns the tether data directory.
func DataDir() string {
	return appDir(home("data", "XDG_DATA_HOME", ".local", "share"))
}

// StateDir returns the tether state directory.
// Used for credentials, the device identifier and the alert journal.
func StateDir() string {
	return appDir(home("state", "XDG_STATE_HOME", ".local", "state"))
}

// CacheDir returns the tether cache directory.
func CacheDir() string {
	return appDir(home("cache", "XDG_CACHE_HOME", ".cache"))
}

// CredentialsPath returns the default file credential store location.
func CredentialsPath() string {
	return filepath.Join(StateDir(), "credentials.yml")
}

// CredentialsDBPath returns the default bbolt credential store location.
func CredentialsDBPath() string {
	return filepath.Join(StateDir(), "credentials.db")
}

// DeviceIDPath returns where the generated device identifier is persisted.
func DeviceIDPath() string {
	return filepath.Join(StateDir(), "device-id")
}

// AlertsDBPath returns the default alert journal location.
func AlertsDBPath() string {
	return filepath.Join(StateDir(), "alerts.db")
}

// EnsureDirs creates all tether directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), DataDir(), StateDir(), CacheDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
