package cli

import (
	"os"

	"github.com/grovetools/tether/config"
	"github.com/grovetools/tether/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CommandOptions holds common options for tether commands
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
	NoColor    bool
}

// NewStandardCommand creates a new command with standard tether flags
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to tether.yml config file")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	SetStyledHelp(cmd)

	return cmd
}

// GetLogger returns the CLI logger, switched to debug level with --verbose.
func GetLogger(cmd *cobra.Command) *logrus.Entry {
	entry := logging.NewLogger("tether-cli")

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		entry.Logger.SetLevel(logrus.DebugLevel)
	}

	return entry
}

// GetOptions extracts common options from a command
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
		NoColor:    noColor,
	}
}

// InitConfig initializes the configuration file path
func InitConfig(configFile string) (string, error) {
	if configFile != "" {
		return configFile, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	foundConfigFile, err := config.FindConfigFile(cwd)
	if err != nil {
		// No config file found; defaults apply.
		return "", nil
	}

	return foundConfigFile, nil
}

// LoadConfig loads the configuration selected by the command's --config flag,
// falling back to layered discovery from the working directory.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	opts := GetOptions(cmd)
	logger := GetLogger(cmd).Logger
	if opts.ConfigFile != "" {
		return config.LoadWithOverride(opts.ConfigFile, logger)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.LoadFromWithLogger(cwd, logger)
}
