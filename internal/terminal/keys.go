package terminal

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global bindings of the stealth terminal.
type KeyMap struct {
	Submit  key.Binding
	Panic   key.Binding
	Restore key.Binding // Leaves the decoy. Deliberately undocumented in /help.
	Quit    key.Binding
}

var DefaultKeyMap = KeyMap{
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "run"),
	),
	Panic: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "panic"),
	),
	Restore: key.NewBinding(
		key.WithKeys("alt+ctrl+g"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "ctrl+d"),
		key.WithHelp("ctrl+c", "quit"),
	),
}
