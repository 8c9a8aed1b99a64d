package html

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mabhi256/dllcheck/internal/report"
)

// Embed template files at compile time
//
//go:embed templates/report.html.tmpl
var htmlTemplate string

//go:embed templates/styles.css
var cssContent string

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"indent": func(depth int) string { return strings.Repeat("  ", depth) },
}).Parse(htmlTemplate))

// Meta describes where a report came from
type Meta struct {
	ConfigFile  string
	GeneratedAt time.Time
	Elapsed     time.Duration
}

type pageData struct {
	Report *report.Report
	Meta   Meta
	CSS    template.CSS
	// JSON is the same report as the json output format, for scripts
	JSON template.JS
}

// WriteHTML renders r as a self-contained HTML page
func WriteHTML(w io.Writer, r *report.Report, meta Meta) error {
	if r == nil {
		return fmt.Errorf("report cannot be nil")
	}
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now()
	}

	var buf strings.Builder
	if err := report.WriteJSON(&buf, r); err != nil {
		return err
	}
	// WriteJSON output is valid JS, but "</script>" must not appear inside the tag
	data, err := json.Marshal(json.RawMessage(buf.String()))
	if err != nil {
		return fmt.Errorf("failed to marshal report data: %w", err)
	}

	page := pageData{
		Report: r,
		Meta:   meta,
		CSS:    template.CSS(cssContent),
		JSON:   template.JS(data),
	}
	if err := reportTemplate.Execute(w, page); err != nil {
		return fmt.Errorf("failed to render HTML report: %w", err)
	}
	return nil
}

// GetOutputPath returns a safe output path, creating directories if needed
func GetOutputPath(path string) (string, error) {
	outputPath := path
	if outputPath == "" {
		outputPath = GetDefaultOutputPath()
	}

	// Ensure .html extension
	if !strings.HasSuffix(strings.ToLower(outputPath), ".html") {
		outputPath += ".html"
	}

	absPath, err := filepath.Abs(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for %s: %w", outputPath, err)
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	return absPath, nil
}

// GetDefaultOutputPath returns a default HTML output path
func GetDefaultOutputPath() string {
	timestamp := time.Now().Format("20060102_150405")
	return fmt.Sprintf("dllcheck-report-%s.html", timestamp)
}
