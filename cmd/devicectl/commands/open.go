package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctkgo/deviceaccess/internal/cli/output"
	"github.com/ctkgo/deviceaccess/pkg/device"
)

var openCmd = &cobra.Command{
	Use:   "open <CDD>",
	Short: "Open a device and report whether it succeeded",
	Long: `Open parses a device descriptor (CDD), constructs the named backend
type, and opens it, printing the register catalogue size on success.

This exercises exactly what every other subcommand does internally before
touching a register, useful on its own to validate a CDD and its map file
without reading or writing anything.

Examples:
  devicectl open '(dummy?map=mydevice.map)'
  devicectl open '(logicalNameMapper?map=mydevice.xml&target=raw)' --dmap devices.dmap`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

func runOpen(cmd *cobra.Command, args []string) error {
	cdd := args[0]
	dev, err := device.Open(context.Background(), cdd)
	if err != nil {
		return err
	}
	defer dev.Close()

	printer := output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, false)
	printer.Success(fmt.Sprintf("opened %s: %d registers", cdd, len(dev.Catalogue().List())))
	return nil
}
