package cmd

import (
	"fmt"
	"strconv"

	"github.com/grovetools/tether/errors"
	"github.com/grovetools/tether/logging"
	"github.com/grovetools/tether/pkg/models"
	"github.com/grovetools/tether/pkg/proximity"
	"github.com/spf13/cobra"
)

// requireHost fails unless a host session is stored.
func (a *app) requireHost(op string) error {
	if err := a.requireServer(); err != nil {
		return err
	}
	status := a.sessions.CheckStoredSession()
	if !status.Success {
		return errors.NotAuthenticated(op)
	}
	if status.Role != models.RoleHost {
		return errors.InvalidInput("role", op+" is only available to hosts")
	}
	return nil
}

func NewRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <current-name> <new-name>",
		Short: "Rename a tracked member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.requireHost("rename"); err != nil {
				return err
			}
			if err := a.hostClient().RenameMember(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}

			if a.opts.JSONOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"success": true, "before": args[0], "after": args[1]})
			}
			logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).
				Success(fmt.Sprintf("Renamed %s to %s", args[0], args[1]))
			return nil
		},
	}
}

func NewThresholdsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Show or change the distance thresholds",
	}
	cmd.AddCommand(newThresholdsShowCmd())
	cmd.AddCommand(newThresholdsSetCmd())
	return cmd
}

func newThresholdsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active thresholds in meters",
		Long: `Print the active thresholds in meters: the last values confirmed by the
server, or the configured defaults before any were confirmed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			t := a.thresholds.Load()
			if a.opts.JSONOutput {
				return writeJSON(cmd.OutOrStdout(), t)
			}
			printThresholds(cmd, t)
			return nil
		},
	}
}

func newThresholdsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <safe> <warning> <danger>",
		Short: "Send new thresholds to the server",
		Long: `Validate and send new thresholds. Values are meters and must satisfy
0 <= safe < warning < danger <= 2000. Invalid values are never sent.

Examples:
  tether thresholds set 100 250 500`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseThresholds(args)
			if err != nil {
				return err
			}
			if err := proximity.ValidateThresholds(t); err != nil {
				return err
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.requireHost("thresholds set"); err != nil {
				return err
			}
			hc := a.hostClient()
			if err := hc.UpdateThresholds(cmd.Context(), t); err != nil {
				return err
			}
			a.rememberThresholds()

			if a.opts.JSONOutput {
				return writeJSON(cmd.OutOrStdout(), hc.Thresholds())
			}
			logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success("Thresholds updated")
			printThresholds(cmd, hc.Thresholds())
			return nil
		},
	}
}

func parseThresholds(args []string) (proximity.Thresholds, error) {
	names := []string{"safe", "warning", "danger"}
	values := make([]float64, len(args))
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return proximity.Thresholds{}, errors.InvalidInput(names[i], fmt.Sprintf("%q is not a number", arg))
		}
		values[i] = v
	}
	return proximity.Thresholds{Safe: values[0], Warning: values[1], Danger: values[2]}, nil
}

func printThresholds(cmd *cobra.Command, t proximity.Thresholds) {
	pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
	pretty.Field("Safe", fmt.Sprintf("%gm", t.Safe))
	pretty.Field("Warning", fmt.Sprintf("%gm", t.Warning))
	pretty.Field("Danger", fmt.Sprintf("%gm", t.Danger))
}
