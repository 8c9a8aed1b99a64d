package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mabhi256/dllcheck/internal/report"
)

func sampleReport() *report.Report {
	return &report.Report{
		Hierarchy: []report.HierarchyLine{
			{Depth: 0, Name: "App.dll", Version: "1.0.0.0", Status: report.StatusOK, Expanded: true},
			{Depth: 1, Name: "Gone.dll", Version: "3.0.0.0", Status: report.StatusMissing, Expanded: true},
			{Depth: 1, Name: "Broken.dll", Version: "0.0.0.0", Status: report.StatusFailed, Expanded: true},
		},
		System:  []report.SystemModule{{Module: report.Module{Name: "mscorlib.dll", Version: "4.0.0.0"}, Path: "/sys/mscorlib.dll"}},
		Missing: []report.Module{{Name: "Gone.dll", Version: "3.0.0.0"}},
		Failed:  []report.Module{{Name: "Broken.dll", Version: "0.0.0.0"}},
		Summary: report.Summary{Missing: 1, Failed: 1},
	}
}

func sized(t *testing.T) *Model {
	t.Helper()
	m := NewModel(sampleReport(), "/etc/dllcheck.json")
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func press(m *Model, s string) {
	var msg tea.KeyMsg
	switch s {
	case "left":
		msg = tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		msg = tea.KeyMsg{Type: tea.KeyRight}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
	m.Update(msg)
}

func TestViewBeforeResize(t *testing.T) {
	m := NewModel(sampleReport(), "")
	if got := m.View(); got != "Loading..." {
		t.Errorf("View() = %q, want Loading...", got)
	}
}

func TestHierarchyTab(t *testing.T) {
	view := sized(t).View()
	for _, want := range []string{"App.dll (1.0.0.0)", "Gone.dll (3.0.0.0) missing!", "Broken.dll (0.0.0.0) failed to load!", "Failed"} {
		if !strings.Contains(view, want) {
			t.Errorf("hierarchy view lacks %q", want)
		}
	}
}

func TestFooter(t *testing.T) {
	m := sized(t)
	if !strings.Contains(m.View(), "Hierarchy 100%") {
		t.Errorf("status bar lacks tab and scroll position:\n%s", m.View())
	}

	press(m, "right")
	if !strings.Contains(m.View(), "System 100%") {
		t.Errorf("status bar did not follow the tab:\n%s", m.View())
	}
}

func TestTabNavigation(t *testing.T) {
	m := sized(t)

	press(m, "right")
	if m.currentTab != SystemTab {
		t.Fatalf("after right, tab = %v, want System", m.currentTab)
	}
	if !strings.Contains(m.View(), "/sys/mscorlib.dll") {
		t.Error("system tab does not show the resolved path")
	}

	press(m, "left")
	press(m, "left")
	if m.currentTab != SummaryTab {
		t.Errorf("left from first tab = %v, want wrap to Summary", m.currentTab)
	}

	press(m, "3")
	if m.currentTab != MissingTab {
		t.Errorf("key 3 selects %v, want Missing", m.currentTab)
	}

	press(m, "9")
	if m.currentTab != MissingTab {
		t.Errorf("key 9 changed tab to %v", m.currentTab)
	}
}

func TestEmptyTabs(t *testing.T) {
	m := sized(t)

	press(m, "5")
	if !strings.Contains(m.View(), "No duplicate DLLs") {
		t.Error("duplicates tab does not report emptiness")
	}
}

func TestSummaryTab(t *testing.T) {
	m := sized(t)
	press(m, "6")

	view := m.View()
	for _, want := range []string{"Missing DLLs:   1", "Failed to load: 1", "Duplicate DLLs: 0"} {
		if !strings.Contains(view, want) {
			t.Errorf("summary view lacks %q", want)
		}
	}
}

func TestQuit(t *testing.T) {
	m := sized(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestTabString(t *testing.T) {
	if got := DuplicatesTab.String(); got != "Duplicates" {
		t.Errorf("String() = %q", got)
	}
	if got := TabType(42).String(); got != "Unknown" {
		t.Errorf("String() = %q, want Unknown", got)
	}
}
