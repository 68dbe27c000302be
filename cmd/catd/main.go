// catd runs the cat firmware core on a host machine: the flash
// filesystem, upload and management services, and the WebAssembly
// program runner, wired over the loopback BLE transport for development
// and emulation. On hardware the same wiring runs against the real BLE
// stack and flash driver.
package main

import (
	"fmt"
	"os"

	"github.com/rudelblinken/firmware/cmd/catd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
