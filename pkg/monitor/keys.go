package monitor

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Sync    key.Binding
	Offline key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Sync:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sync")),
		Offline: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "toggle offline")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Sync, k.Offline, k.Refresh, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Sync, k.Offline},
		{k.Refresh, k.Help, k.Quit},
	}
}
