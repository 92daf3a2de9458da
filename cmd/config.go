package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/grovetools/tether/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the tether configuration",
	}
	cmd.AddCommand(newConfigLayersCmd())
	cmd.AddCommand(newConfigSchemaCmd())
	return cmd
}

func newConfigLayersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "Display the layered configuration for the current directory",
		Long: `Shows how the final configuration is built by merging layers:
1. Global config (~/.config/tether/tether.yml)
2. Project config (tether.yml, searched upwards from the current directory)
3. Override files (tether.override.yml)
This is useful for debugging configuration issues.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current directory: %w", err)
			}

			layered, err := config.LoadLayered(cwd)
			if err != nil {
				return fmt.Errorf("failed to load layered config: %w", err)
			}

			out := cmd.OutOrStdout()
			printLayer := func(title, path string, v interface{}) {
				fmt.Fprintf(out, "--- # %s\n", title)
				if path != "" {
					fmt.Fprintf(out, "# Source: %s\n", path)
				}
				data, _ := yaml.Marshal(v)
				fmt.Fprintln(out, string(data))
			}

			if len(layered.Layers) == 0 {
				fmt.Fprintln(out, "# No configuration files found, using defaults")
			}
			for _, layer := range layered.Layers {
				printLayer(strings.ToUpper(string(layer.Source))+" CONFIG", layer.Path, layer.Raw)
			}
			printLayer("FINAL MERGED CONFIG", "", layered.Final)
			return nil
		},
	}
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for tether.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return fmt.Errorf("failed to generate schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
