package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ctkgo/deviceaccess/internal/cli/output"
	"github.com/ctkgo/deviceaccess/pkg/device"
)

var readFormat string

var readCmd = &cobra.Command{
	Use:   "read <CDD> <register>",
	Short: "Read a register and print its cooked values",
	Long: `Read obtains a float64 accessor for register via device.GetAccessor,
runs one blocking Read, and prints every channel's samples. Values are
always reported as float64 regardless of the register's underlying raw
width, matching how the command-line tools of the original framework
default to double precision for ad-hoc inspection.`,
	Args: cobra.ExactArgs(2),
	RunE: runRead,
}

func init() {
	readCmd.Flags().StringVarP(&readFormat, "output", "o", "table", "output format: table, json, yaml")
}

type registerValues struct {
	Path     string      `json:"path" yaml:"path"`
	Channels [][]float64 `json:"channels" yaml:"channels"`
}

func (v registerValues) Headers() []string { return []string{"CHANNEL", "VALUES"} }

func (v registerValues) Rows() [][]string {
	rows := make([][]string, 0, len(v.Channels))
	for ch, samples := range v.Channels {
		strs := make([]string, len(samples))
		for i, s := range samples {
			strs[i] = strconv.FormatFloat(s, 'g', -1, 64)
		}
		rows = append(rows, []string{strconv.Itoa(ch), strings.Join(strs, ", ")})
	}
	return rows
}

func runRead(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(readFormat)
	if err != nil {
		return err
	}
	cdd, path := args[0], args[1]

	dev, err := device.Open(context.Background(), cdd)
	if err != nil {
		return err
	}
	defer dev.Close()

	acc, err := device.GetAccessor[float64](dev, path)
	if err != nil {
		return err
	}
	if err := acc.Read(context.Background()); err != nil {
		return fmt.Errorf("reading %q: %w", path, err)
	}

	buf := acc.Buffer()
	values := registerValues{Path: path}
	for ch := 0; ch < buf.NumberOfChannels(); ch++ {
		samples := buf.Channel(ch)
		values.Channels = append(values.Channels, append([]float64(nil), samples...))
	}

	return output.NewPrinter(cmd.OutOrStdout(), format, false).Print(values)
}
