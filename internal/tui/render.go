package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/mabhi256/dllcheck/internal/report"
	"github.com/mabhi256/dllcheck/utils"
)

const chartHeight = 10

func (m *Model) renderTab() string {
	switch m.currentTab {
	case HierarchyTab:
		return renderHierarchy(m.report.Hierarchy)
	case SystemTab:
		return renderSystem(m.report.System, m.width)
	case MissingTab:
		return renderModules(m.report.Missing, "No missing DLLs")
	case FailedTab:
		return renderModules(m.report.Failed, "Every DLL loaded")
	case DuplicatesTab:
		return renderDuplicates(m.report.Duplicates, m.width)
	case SummaryTab:
		return renderSummary(m.report, m.width)
	default:
		return utils.CriticalStyle.Render("Unknown tab")
	}
}

func renderHierarchy(lines []report.HierarchyLine) string {
	if len(lines) == 0 {
		return utils.MutedStyle.Render("No root modules")
	}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(strings.Repeat("  ", l.Depth))
		text := fmt.Sprintf("%s (%s)", l.Name, l.Version)
		switch l.Status {
		case report.StatusMissing:
			text += " missing!"
		case report.StatusFailed:
			text += " failed to load!"
		}
		b.WriteString(utils.GetStatusStyle(string(l.Status)).Render(text))
		if !l.Expanded {
			b.WriteString(utils.MutedStyle.Render(" ↩"))
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderModules(modules []report.Module, empty string) string {
	if len(modules) == 0 {
		return utils.GoodStyle.Render(empty)
	}

	lines := make([]string, 0, len(modules))
	for _, mod := range modules {
		lines = append(lines, fmt.Sprintf("%s (%s)", mod.Name, mod.Version))
	}
	return strings.Join(lines, "\n")
}

func renderSystem(modules []report.SystemModule, width int) string {
	if len(modules) == 0 {
		return utils.MutedStyle.Render("No references resolved from system directories")
	}

	lines := make([]string, 0, len(modules))
	for _, mod := range modules {
		name := fmt.Sprintf("%s (%s)", mod.Name, mod.Version)
		path := utils.TruncateString(mod.Path, max(width-len(name)-4, 8))
		lines = append(lines, utils.SystemStyle.Render(name)+"  "+utils.MutedStyle.Render(path))
	}
	return strings.Join(lines, "\n")
}

func renderDuplicates(dups []report.Duplicate, width int) string {
	if len(dups) == 0 {
		return utils.GoodStyle.Render("No duplicate DLLs")
	}

	var sections []string
	for _, d := range dups {
		lines := []string{utils.WarningStyle.Render(fmt.Sprintf("%s (%s)", d.Name, d.Version))}
		for _, loc := range d.Locations {
			lines = append(lines, "  "+utils.TruncateString(loc, max(width-2, 8)))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	return strings.Join(sections, "\n\n")
}

func renderSummary(r *report.Report, width int) string {
	s := r.Summary
	verdict := utils.GoodStyle.Render("Passed")
	if !s.Passed {
		verdict = utils.CriticalStyle.Render("Failed")
	}

	counts := lipgloss.JoinVertical(lipgloss.Left,
		fmt.Sprintf("Missing DLLs:   %d", s.Missing),
		fmt.Sprintf("Failed to load: %d", s.Failed),
		fmt.Sprintf("Duplicate DLLs: %d", s.Duplicates),
		"",
		verdict,
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		utils.BoxStyle.Render(counts),
		"",
		summaryChart(s, len(r.System), min(max(width-4, 24), 60)),
	)
}

func summaryChart(s report.Summary, system int, width int) string {
	bar := func(label string, value int, style lipgloss.Style) barchart.BarData {
		return barchart.BarData{
			Label:  label,
			Values: []barchart.BarValue{{Name: label, Value: float64(value), Style: style}},
		}
	}

	chart := barchart.New(width, chartHeight)
	chart.PushAll([]barchart.BarData{
		bar("Missing", s.Missing, utils.CriticalStyle),
		bar("Failed", s.Failed, utils.WarningStyle),
		bar("Dups", s.Duplicates, utils.InfoStyle),
		bar("System", system, utils.SystemStyle),
	})
	chart.Draw()
	return chart.View()
}
