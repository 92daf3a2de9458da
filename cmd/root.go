package cmd

import (
	"github.com/grovetools/tether/cli"
	"github.com/grovetools/tether/version"
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the tether command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := cli.NewStandardCommand(
		"tether",
		"Proximity monitoring client for hosts and members",
	)
	rootCmd.Long = `tether signs in to a proximity backend, streams the live distance of tracked
members over a realtime channel and alerts when someone leaves the safe zone.`
	cli.SetVersionTemplate(rootCmd, version.GetInfo())

	rootCmd.AddCommand(NewLoginCmd())
	rootCmd.AddCommand(NewSignupCmd())
	rootCmd.AddCommand(NewLogoutCmd())
	rootCmd.AddCommand(NewStatusCmd())
	rootCmd.AddCommand(NewWatchCmd())
	rootCmd.AddCommand(NewRenameCmd())
	rootCmd.AddCommand(NewThresholdsCmd())
	rootCmd.AddCommand(NewAlertsCmd())
	rootCmd.AddCommand(NewDeviceCmd())
	rootCmd.AddCommand(NewConfigCmd())
	rootCmd.AddCommand(NewPathsCmd())
	rootCmd.AddCommand(cli.NewVersionCommand("tether", version.GetInfo()))

	cli.ApplyStyledHelpRecursive(rootCmd)
	return rootCmd
}
