package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ctkgo/deviceaccess/internal/cli/output"
	"github.com/ctkgo/deviceaccess/internal/cli/prompt"
	"github.com/ctkgo/deviceaccess/pkg/catalogue"
	"github.com/ctkgo/deviceaccess/pkg/device"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

var writeForce bool

var writeCmd = &cobra.Command{
	Use:   "write <CDD> <register> <value>...",
	Short: "Write values into a register's channel 0",
	Long: `Write parses one or more float64 values, stores them into channel 0 of
a freshly obtained accessor's buffer, and runs one blocking Write. The
number of values must match the register's NumberOfSamples; multi-
channel registers beyond channel 0 are out of scope for this
command — use a map file dump plus per-channel devicectl invocations for
those.

A register whose catalogue entry is writeable but not readable is, by
convention, a control or policy-restricted register rather than ordinary
process data — write prompts for confirmation before touching one unless
--force is given.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runWrite,
}

func init() {
	writeCmd.Flags().BoolVarP(&writeForce, "force", "f", false, "skip the confirmation prompt for policy-restricted registers")
}

func runWrite(cmd *cobra.Command, args []string) error {
	cdd, path, rawValues := args[0], args[1], args[2:]

	values := make([]float64, len(rawValues))
	for i, s := range rawValues {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parsing value %q: %w", s, err)
		}
		values[i] = v
	}

	dev, err := device.Open(context.Background(), cdd)
	if err != nil {
		return err
	}
	defer dev.Close()

	if info, ok := dev.Catalogue().GetRegister(catalogue.NewPath(path)); ok && info.Writeable && !info.Readable {
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("%q is write-only (policy-restricted); write anyway?", path), writeForce)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("write to %q cancelled", path)
		}
	}

	acc, err := device.GetAccessor[float64](dev, path)
	if err != nil {
		return err
	}

	buf := acc.Buffer()
	if got, want := len(values), len(buf.Channel(0)); got != want {
		return fmt.Errorf("register %q channel 0 holds %d samples, got %d values", path, want, got)
	}
	buf.SetChannel(0, values)

	dataLost, err := acc.Write(context.Background(), version.New())
	if err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}

	printer := output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, false)
	if dataLost {
		printer.Warning(fmt.Sprintf("wrote %s (a pending value was overwritten before being sent)", path))
		return nil
	}
	printer.Success(fmt.Sprintf("wrote %s", path))
	return nil
}
