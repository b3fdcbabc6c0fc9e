// Command converse joins an agent-led conversation from the terminal.
package main

import (
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := NewRootCmd(&Dependencies{}).Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
