package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	LineStart key.Binding
	Backspace key.Binding
	Kill      key.Binding
	Yank      key.Binding
	Left      key.Binding
	Right     key.Binding
	Submit    key.Binding
	Older     key.Binding
	Newer     key.Binding
	Cancel    key.Binding
	ScrollUp  key.Binding
	ScrollDn  key.Binding
	Quit      key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		LineStart: key.NewBinding(
			key.WithKeys("ctrl+a", "home"),
			key.WithHelp("ctrl+a", "line start"),
		),
		Backspace: key.NewBinding(
			key.WithKeys("backspace"),
			key.WithHelp("⌫", "delete"),
		),
		Kill: key.NewBinding(
			key.WithKeys("ctrl+k"),
			key.WithHelp("ctrl+k", "kill line"),
		),
		Yank: key.NewBinding(
			key.WithKeys("ctrl+y"),
			key.WithHelp("ctrl+y", "yank"),
		),
		Left: key.NewBinding(
			key.WithKeys("left", "ctrl+b"),
		),
		Right: key.NewBinding(
			key.WithKeys("right", "ctrl+f"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Older: key.NewBinding(
			key.WithKeys("alt+p"),
			key.WithHelp("alt+p/n", "history"),
		),
		Newer: key.NewBinding(
			key.WithKeys("alt+n"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "cancel"),
		),
		ScrollUp: key.NewBinding(
			key.WithKeys("pgup"),
		),
		ScrollDn: key.NewBinding(
			key.WithKeys("pgdown"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+d"),
			key.WithHelp("esc", "quit"),
		),
	}
}

// helpLine lists the bindings shown in the status bar.
func (k keyMap) helpLine() string {
	var out string
	for _, b := range []key.Binding{k.Submit, k.Older, k.Kill, k.Cancel, k.Quit} {
		h := b.Help()
		if out != "" {
			out += "  "
		}
		out += h.Key + " " + h.Desc
	}
	return out
}
