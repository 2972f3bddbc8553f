// Command zarrfusion registers two views of a light-sheet acquisition
// stored as Zarr and shows the fused result in the terminal.
package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Build information injected via ldflags at build time.
var version = "dev"

func init() {
	// Query the terminal background before the viewer's input loop starts,
	// otherwise the OSC 11 response can show up as input.
	_ = lipgloss.HasDarkBackground()
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stderr))
}
