package commands

import (
	"github.com/spf13/cobra"

	"github.com/ctkgo/deviceaccess/internal/cli/output"
)

var configShowFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect devicectl's resolved configuration",
	Long: `Config groups subcommands that report the configuration devicectl
actually resolved after layering DEVICEACCESS_* environment variables
and the config file on top of the built-in defaults.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Long: `Show prints the Config struct PersistentPreRunE already loaded for this
invocation — useful to confirm which dmap search path, logging level, or
metrics address actually took effect once environment and file are
merged.`,
	RunE: runConfigShow,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configShowCmd.Flags().StringVarP(&configShowFormat, "output", "o", "yaml", "output format: yaml, json")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(configShowFormat)
	if err != nil {
		return err
	}
	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	}
	return output.PrintYAML(cmd.OutOrStdout(), cfg)
}
