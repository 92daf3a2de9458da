package cmd

import (
	"github.com/grovetools/tether/pkg/paths"
	"github.com/spf13/cobra"
)

// PathsOutput represents the XDG-compliant paths used by tether.
type PathsOutput struct {
	ConfigDir   string `json:"config_dir"`
	DataDir     string `json:"data_dir"`
	StateDir    string `json:"state_dir"`
	CacheDir    string `json:"cache_dir"`
	Credentials string `json:"credentials"`
	DeviceID    string `json:"device_id"`
	Alerts      string `json:"alerts"`
}

func NewPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the XDG-compliant paths used by tether",
		Long: `Print the XDG-compliant paths used by tether as JSON.

- config_dir: Configuration files (tether.yml)
- state_dir: Credentials, device identifier and the alert journal
- credentials, device_id, alerts: default file locations

TETHER_HOME relocates every directory below a single root.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), PathsOutput{
				ConfigDir:   paths.ConfigDir(),
				DataDir:     paths.DataDir(),
				StateDir:    paths.StateDir(),
				CacheDir:    paths.CacheDir(),
				Credentials: paths.CredentialsPath(),
				DeviceID:    paths.DeviceIDPath(),
				Alerts:      paths.AlertsDBPath(),
			})
		},
	}
}
