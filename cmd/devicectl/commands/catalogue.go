package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ctkgo/deviceaccess/internal/cli/output"
	"github.com/ctkgo/deviceaccess/pkg/device"
)

var catalogueFormat string

var catalogueCmd = &cobra.Command{
	Use:     "catalogue <CDD>",
	Aliases: []string{"cat", "list"},
	Short:   "List every register a device's catalogue declares",
	Long: `Catalogue opens the device, then prints its RegisterCatalogue: one row
per register with element/channel counts, access flags, and the cooked
data type the register's DataDescriptor reports.`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalogue,
}

func init() {
	catalogueCmd.Flags().StringVarP(&catalogueFormat, "output", "o", "table", "output format: table, json, yaml")
}

type catalogueRow struct {
	Path      string `json:"path" yaml:"path"`
	Elements  int    `json:"elements" yaml:"elements"`
	Channels  int    `json:"channels" yaml:"channels"`
	Readable  bool   `json:"readable" yaml:"readable"`
	Writeable bool   `json:"writeable" yaml:"writeable"`
	DataType  string `json:"dataType" yaml:"dataType"`
}

type catalogueTable []catalogueRow

func (t catalogueTable) Headers() []string {
	return []string{"PATH", "ELEMENTS", "CHANNELS", "R", "W", "TYPE"}
}

func (t catalogueTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		rows = append(rows, []string{
			r.Path,
			strconv.Itoa(r.Elements),
			strconv.Itoa(r.Channels),
			flagMark(r.Readable),
			flagMark(r.Writeable),
			r.DataType,
		})
	}
	return rows
}

func flagMark(v bool) string {
	if v {
		return "x"
	}
	return "-"
}

func runCatalogue(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(catalogueFormat)
	if err != nil {
		return err
	}

	dev, err := device.Open(context.Background(), args[0])
	if err != nil {
		return err
	}
	defer dev.Close()

	var rows catalogueTable
	for _, info := range dev.Catalogue().List() {
		rows = append(rows, catalogueRow{
			Path:      string(info.Path),
			Elements:  info.NumberOfElements,
			Channels:  info.NumberOfChannels,
			Readable:  info.Readable,
			Writeable: info.Writeable,
			DataType:  info.DataDescriptor.FundamentalType.String(),
		})
	}

	printer := output.NewPrinter(cmd.OutOrStdout(), format, false)
	if format == output.FormatTable && len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no registers")
		return nil
	}
	return printer.Print(rows)
}
