package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ctkgo/deviceaccess/internal/cli/output"
	"github.com/ctkgo/deviceaccess/pkg/device"
)

var triggerInterruptCmd = &cobra.Command{
	Use:   "trigger-interrupt <CDD> <id>",
	Short: "Fire an interrupt number against a backend",
	Long: `Trigger-interrupt calls Device.TriggerInterrupt(id) and prints the
version number stamped on the event. Only backends that simulate or
forward interrupts support this — in practice the dummy and sharedDummy
backends; the xdma, subdevice and logicalNameMapper backends return a
logic error, matching Backend.TriggerInterrupt's contract.

<id> may be a plain interrupt number (e.g. "3") or a register path whose
catalogue entry declares an interrupt id (e.g. "/app/someRegister"),
resolved via Device.InterruptIDs first.`,
	Args: cobra.ExactArgs(2),
	RunE: runTriggerInterrupt,
}

func runTriggerInterrupt(cmd *cobra.Command, args []string) error {
	cdd, target := args[0], args[1]

	dev, err := device.Open(context.Background(), cdd)
	if err != nil {
		return err
	}
	defer dev.Close()

	id, err := interruptIDFromArg(dev, target)
	if err != nil {
		return err
	}

	v, err := dev.TriggerInterrupt(context.Background(), id)
	if err != nil {
		return fmt.Errorf("triggering interrupt %d: %w", id, err)
	}

	printer := output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, false)
	printer.Success(fmt.Sprintf("triggered interrupt %d, version %s", id, v))
	return nil
}

// interruptIDFromArg accepts either a bare interrupt number or a
// register path, resolving the latter via Device.InterruptIDs.
func interruptIDFromArg(dev *device.Device, target string) (uint32, error) {
	if n, err := strconv.ParseUint(target, 10, 32); err == nil {
		return uint32(n), nil
	}
	ids, err := dev.InterruptIDs(target)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}
