package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"

	"github.com/mabhi256/dllcheck/internal/report"
)

type Model struct {
	// Data
	report *report.Report
	title  string

	// UI State
	currentTab TabType
	width      int
	height     int
	ready      bool

	viewport viewport.Model
	help     help.Model

	// Key bindings
	keys KeyMap
}

type TabType int

const (
	HierarchyTab TabType = iota
	SystemTab
	MissingTab
	FailedTab
	DuplicatesTab
	SummaryTab
)

var tabNames = []string{"Hierarchy", "System", "Missing", "Failed", "Duplicates", "Summary"}

func (t TabType) String() string {
	if t < 0 || int(t) >= len(tabNames) {
		return "Unknown"
	}
	return tabNames[t]
}

type KeyMap struct {
	Left     key.Binding
	Right    key.Binding
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Left, k.Right, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Top, k.Bottom},
		{k.Left, k.Right, k.Help, k.Quit},
	}
}

func k(keys []string, help, desc string) key.Binding {
	return key.NewBinding(
		key.WithKeys(keys...),
		key.WithHelp(help, desc),
	)
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Left:     k([]string{"left", "h", "shift+tab"}, "←/h", "prev tab"),
		Right:    k([]string{"right", "l", "tab"}, "→/l", "next tab"),
		Up:       k([]string{"up", "k"}, "↑/k", "up"),
		Down:     k([]string{"down", "j"}, "↓/j", "down"),
		PageUp:   k([]string{"pgup", "b"}, "pgup", "page up"),
		PageDown: k([]string{"pgdown", "f", " "}, "pgdn", "page down"),
		Top:      k([]string{"home", "g"}, "g", "top"),
		Bottom:   k([]string{"end", "G"}, "G", "bottom"),
		Help:     k([]string{"?"}, "?", "more"),
		Quit:     k([]string{"q", "ctrl+c"}, "q", "quit"),
	}
}
