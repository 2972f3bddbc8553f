package visualization

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the viewer keybindings.
type KeyMap struct {
	// Navigation
	NextSlice key.Binding
	PrevSlice key.Binding
	NextAxis  key.Binding

	// Layers
	ToggleFixed    key.Binding
	ToggleAligned  key.Binding
	ToggleOriginal key.Binding

	// General
	Snapshot key.Binding
	Help     key.Binding
	Quit     key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		NextSlice: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("k/↑", "next slice"),
		),
		PrevSlice: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("j/↓", "previous slice"),
		),
		NextAxis: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "cycle axis"),
		),
		ToggleFixed: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "toggle view 0"),
		),
		ToggleAligned: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "toggle aligned"),
		),
		ToggleOriginal: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "toggle original"),
		),
		Snapshot: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "save slice"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextSlice, k.PrevSlice, k.NextAxis, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextSlice, k.PrevSlice, k.NextAxis},
		{k.ToggleFixed, k.ToggleAligned, k.ToggleOriginal},
		{k.Snapshot, k.Help, k.Quit},
	}
}

func (k KeyMap) toggles() []key.Binding {
	return []key.Binding{k.ToggleFixed, k.ToggleAligned, k.ToggleOriginal}
}
