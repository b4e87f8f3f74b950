// Command devicectl is a thin command-line client over pkg/device's
// public API: open a CDD, list its catalogue, read or write a register,
// trigger an interrupt, or serve the Prometheus metrics endpoint.
package main

import (
	"fmt"
	"os"

	"github.com/ctkgo/deviceaccess/cmd/devicectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "devicectl:", err)
		os.Exit(1)
	}
}
