package cmd

import (
	"fmt"

	"github.com/grovetools/tether/pkg/device"
	"github.com/spf13/cobra"
)

func NewDeviceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Print the device identifier used for member signup",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			id, err := device.ID(a.cfg.DeviceID)
			if err != nil {
				return err
			}
			if a.opts.JSONOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"device_id": id})
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}
