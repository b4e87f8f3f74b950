// Package commands implements devicectl's cobra command tree: the thin
// CLI the core framework's spec explicitly excludes from itself. Every
// subcommand here talks to the framework exclusively through
// pkg/device's public API (Open, GetAccessor, Catalogue, TriggerInterrupt)
// plus internal/config and internal/obslog for process setup, grounded on
// the teacher's cmd/dittofs/commands tree.
package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ctkgo/deviceaccess/internal/config"
	"github.com/ctkgo/deviceaccess/pkg/device"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile  string
	dmapFile string
	cfg      *config.Config
	reg      *device.Registry
)

var rootCmd = &cobra.Command{
	Use:   "devicectl",
	Short: "Inspect and exercise register-access devices from the command line",
	Long: `devicectl opens a device descriptor (CDD), lists or exercises its
registers, and triggers interrupts — a thin client over the register-access
framework's public Device API. It never implements register semantics
itself; every subcommand is a few lines of catalogue lookup and
accessor Read/Write.

Use "devicectl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		if err := config.Apply(loaded); err != nil {
			return fmt.Errorf("applying configuration: %w", err)
		}
		cfg = loaded
		reg = device.NewRegistry(searchPathOpener(cfg.DMapSearchPath))
		if dmapFile != "" {
			f, err := searchPathOpener(cfg.DMapSearchPath)(dmapFile)
			if err != nil {
				return fmt.Errorf("opening dmap file %q: %w", dmapFile, err)
			}
			defer f.Close()
			if err := reg.LoadDMap(f); err != nil {
				return fmt.Errorf("loading dmap file %q: %w", dmapFile, err)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and runs it. Called
// once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/deviceaccess/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dmapFile, "dmap", "", "dmap file declaring aliases a logicalNameMapper CDD's target= parameter may reference")

	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(catalogueCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(readGroupCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(triggerInterruptCmd)
	rootCmd.AddCommand(serveMetricsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// searchPathOpener returns a device.Registry map-file opener that tries
// path as given first, then each directory in dirs in order, matching
// spec §6's "thin dmap plumbing" — a bare map-file name in a CDD is
// resolved the way a shell resolves a bare command name against $PATH.
func searchPathOpener(dirs []string) func(path string) (io.ReadCloser, error) {
	return func(path string) (io.ReadCloser, error) {
		if f, err := os.Open(path); err == nil {
			return f, nil
		} else if filepath.IsAbs(path) {
			return nil, err
		}

		var firstErr error
		for _, dir := range dirs {
			f, err := os.Open(filepath.Join(dir, path))
			if err == nil {
				return f, nil
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		if firstErr != nil {
			return nil, firstErr
		}
		return os.Open(path)
	}
}
