package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mabhi256/dllcheck/internal/report"
	"github.com/mabhi256/dllcheck/utils"
)

// NewModel returns a browser over r. title is shown in the header line.
func NewModel(r *report.Report, title string) *Model {
	return &Model{
		report:     r,
		title:      title,
		currentTab: HierarchyTab,
		help:       help.New(),
		keys:       DefaultKeyMap(),
	}
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resize()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.resize()
			return m, nil
		case key.Matches(msg, m.keys.Left):
			m.switchTab(m.currentTab - 1)
			return m, nil
		case key.Matches(msg, m.keys.Right):
			m.switchTab(m.currentTab + 1)
			return m, nil
		case key.Matches(msg, m.keys.Top):
			m.viewport.GotoTop()
			return m, nil
		case key.Matches(msg, m.keys.Bottom):
			m.viewport.GotoBottom()
			return m, nil
		}

		// Number keys jump straight to a tab
		if s := msg.String(); len(s) == 1 && s[0] >= '1' && int(s[0]-'1') < len(tabNames) {
			m.switchTab(TabType(s[0] - '1'))
			return m, nil
		}
	}

	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// switchTab wraps around at both ends
func (m *Model) switchTab(tab TabType) {
	n := TabType(len(tabNames))
	m.currentTab = (tab%n + n) % n
	if m.ready {
		m.viewport.SetContent(m.renderTab())
		m.viewport.GotoTop()
	}
}

func (m *Model) resize() {
	contentHeight := max(m.height-lipgloss.Height(m.renderHeader())-lipgloss.Height(m.renderFooter()), 1)
	if !m.ready {
		m.viewport = viewport.New(m.width, contentHeight)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = contentHeight
	}
	m.viewport.SetContent(m.renderTab())
}

func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderFooter(),
	)
}

func (m *Model) renderFooter() string {
	status := utils.StatusBarStyle.Render(fmt.Sprintf("%s %d%%", m.currentTab, int(m.viewport.ScrollPercent()*100)))
	return lipgloss.JoinHorizontal(lipgloss.Top, status, utils.HelpBarStyle.Render(m.help.View(m.keys)))
}

func (m *Model) renderHeader() string {
	var tabs []string
	for i, name := range tabNames {
		style := utils.TabInactiveStyle
		if TabType(i) == m.currentTab {
			style = utils.TabActiveStyle
		}
		label := fmt.Sprintf("%s [%d]", name, i+1)
		if n := m.count(TabType(i)); n > 0 {
			label = fmt.Sprintf("%s %d [%d]", name, n, i+1)
		}
		tabs = append(tabs, style.Render(label))
	}

	verdict := utils.GoodStyle.Render("Passed")
	if !m.report.Summary.Passed {
		verdict = utils.CriticalStyle.Render("Failed")
	}
	titleLine := utils.TitleStyle.Render("dllcheck") + " " + utils.MutedStyle.Render(m.title) + "  " + verdict

	return lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...),
		utils.MutedStyle.Render(strings.Repeat("─", max(m.width, 1))),
	)
}

func (m *Model) count(tab TabType) int {
	switch tab {
	case SystemTab:
		return len(m.report.System)
	case MissingTab:
		return len(m.report.Missing)
	case FailedTab:
		return len(m.report.Failed)
	case DuplicatesTab:
		return len(m.report.Duplicates)
	default:
		return 0
	}
}

// StartTUI browses r until the user quits
func StartTUI(r *report.Report, title string) error {
	program := tea.NewProgram(
		NewModel(r, title),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
