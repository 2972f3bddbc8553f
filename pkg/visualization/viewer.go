// Package visualization shows registration results in an interactive
// terminal viewer and plots optimizer traces.
package visualization

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Viewer displays a layer stack in a full-screen terminal session.
type Viewer struct {
	opts        Options
	programOpts []tea.ProgramOption
}

// NewViewer creates a viewer. Program options are appended after the
// defaults, so callers can redirect input and output.
func NewViewer(opts Options, programOpts ...tea.ProgramOption) *Viewer {
	return &Viewer{opts: opts, programOpts: programOpts}
}

// Show runs the viewer and blocks until the user quits.
func (v *Viewer) Show(layers []*Layer) error {
	if len(layers) == 0 {
		return fmt.Errorf("no layers to show")
	}
	opts := append([]tea.ProgramOption{tea.WithAltScreen()}, v.programOpts...)
	if _, err := tea.NewProgram(NewModel(layers, v.opts), opts...).Run(); err != nil {
		return fmt.Errorf("running viewer: %w", err)
	}
	return nil
}
