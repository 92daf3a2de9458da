package cmd

import (
	"fmt"
	"time"

	"github.com/grovetools/tether/errors"
	"github.com/grovetools/tether/logging"
	"github.com/spf13/cobra"
)

func NewAlertsCmd() *cobra.Command {
	var limit int
	var since time.Duration
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List departure alerts recorded by watch",
		Long: `List departure alerts from the local alert journal, newest first.

Examples:
  tether alerts
  tether alerts --since 24h --limit 10
  tether alerts --clear`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return errors.InvalidInput("limit", "must not be negative")
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			journal, err := a.openJournal()
			if err != nil {
				return err
			}
			if journal == nil {
				return errors.New(errors.ErrCodeConfigValidation, "the alert journal is disabled (alerts.disabled)")
			}
			defer journal.Close()

			ctx := cmd.Context()
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())

			if clearAll {
				n, err := journal.Clear(ctx)
				if err != nil {
					return err
				}
				if a.opts.JSONOutput {
					return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"deleted": n})
				}
				pretty.Success(fmt.Sprintf("Deleted %d alerts", n))
				return nil
			}

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			alerts, err := journal.List(ctx, limit, from)
			if err != nil {
				return err
			}

			if a.opts.JSONOutput {
				return writeJSON(cmd.OutOrStdout(), alerts)
			}
			if len(alerts) == 0 {
				pretty.InfoPretty("No alerts recorded")
				return nil
			}
			for _, alert := range alerts {
				pretty.Severity(alert.ToTier, alert.Timestamp.Format("Jan 02 15:04"), alert.Message)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of alerts to show")
	cmd.Flags().DurationVar(&since, "since", 0, "Only show alerts newer than this (e.g. 1h, 24h)")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Delete all recorded alerts")
	return cmd
}
