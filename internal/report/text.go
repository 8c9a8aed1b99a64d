package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mabhi256/dllcheck/utils"
)

const (
	HeaderHierarchy  = "=== Assembly Dependencies ==="
	HeaderSystem     = "=== System DLLs ==="
	HeaderMissing    = "=== Missing DLLs ==="
	HeaderFailed     = "=== Failed to load ==="
	HeaderDuplicates = "=== Duplicate DLLs ==="
	HeaderSummary    = "=== Summary ==="
)

// TextOptions controls the console rendering
type TextOptions struct {
	// Styled colours headers and markers. Off, the output is plain text that
	// log scrapers can rely on byte for byte.
	Styled bool
}

type textWriter struct {
	w      *bufio.Writer
	styled bool
}

func (tw *textWriter) style(s lipgloss.Style, text string) string {
	if !tw.styled {
		return text
	}
	return s.Render(text)
}

func (tw *textWriter) line(format string, args ...any) {
	fmt.Fprintf(tw.w, format+"\n", args...)
}

func (tw *textWriter) header(title string) {
	tw.line("%s", tw.style(utils.SectionStyle, title))
}

// WriteText renders the report as the line-oriented console format
func WriteText(w io.Writer, r *Report, opts TextOptions) error {
	tw := &textWriter{w: bufio.NewWriter(w), styled: opts.Styled}

	tw.header(HeaderHierarchy)
	for _, l := range r.Hierarchy {
		suffix := ""
		switch l.Status {
		case StatusMissing:
			suffix = " " + tw.style(utils.CriticalStyle, "missing!")
		case StatusFailed:
			suffix = " " + tw.style(utils.CriticalStyle, "failed to load!")
		}
		tw.line("%s%s (%s)%s", strings.Repeat("  ", l.Depth), l.Name, l.Version, suffix)
	}
	tw.line("")

	tw.header(HeaderSystem)
	for _, m := range r.System {
		tw.line("%s (%s) => %s", m.Name, m.Version, tw.style(utils.MutedStyle, m.Path))
	}
	tw.line("")

	tw.header(HeaderMissing)
	for _, m := range r.Missing {
		tw.line("%s (%s)", m.Name, m.Version)
	}
	tw.line("")

	tw.header(HeaderFailed)
	for _, m := range r.Failed {
		tw.line("%s (%s)", m.Name, m.Version)
	}
	tw.line("")

	tw.header(HeaderDuplicates)
	for _, d := range r.Duplicates {
		tw.line("%s (%s) found %d times:", d.Name, d.Version, len(d.Locations))
		for _, loc := range d.Locations {
			tw.line("  %s", tw.style(utils.MutedStyle, loc))
		}
	}
	tw.line("")

	tw.header(HeaderSummary)
	tw.line("Missing DLLs: %d", r.Summary.Missing)
	tw.line("Failed to load: %d", r.Summary.Failed)
	tw.line("Duplicate DLLs: %d", r.Summary.Duplicates)
	if r.Summary.Passed {
		tw.line("%s", tw.style(utils.GoodStyle, "Passed"))
	} else {
		tw.line("%s", tw.style(utils.CriticalStyle, "Failed"))
	}

	return tw.w.Flush()
}
