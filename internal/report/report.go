package report

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mabhi256/dllcheck/internal/assembly/analyzer"
	"github.com/mabhi256/dllcheck/internal/assembly/model"
	"github.com/mabhi256/dllcheck/internal/observability"
)

// Status marks a hierarchy line
type Status string

const (
	StatusOK Status = "ok"
	// StatusMissing is an unresolved reference that is reported as missing
	StatusMissing Status = "missing"
	// StatusSystem is an unresolved reference satisfied by a system directory
	StatusSystem Status = "system"
	// StatusExcluded is an unresolved reference matching an exclusion pattern
	StatusExcluded Status = "excluded"
	StatusFailed   Status = "failed"
)

// HierarchyLine is one printed node of the dependency tree
type HierarchyLine struct {
	Depth   int    `json:"depth"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  Status `json:"status"`
	// Expanded is false when the node's children were already shown elsewhere
	Expanded bool `json:"expanded"`
}

type Module struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// SystemModule is a reference resolved from a system directory
type SystemModule struct {
	Module
	Path string `json:"path"`
}

type Duplicate struct {
	Module
	Locations []string `json:"locations"`
}

type Summary struct {
	Missing    int  `json:"missing"`
	Failed     int  `json:"failed"`
	Duplicates int  `json:"duplicates"`
	Passed     bool `json:"passed"`
}

// Report holds every section of one validation run. All output formats are
// rendered from it.
type Report struct {
	Hierarchy  []HierarchyLine `json:"hierarchy"`
	System     []SystemModule  `json:"system"`
	Missing    []Module        `json:"missing"`
	Failed     []Module        `json:"failed"`
	Duplicates []Duplicate     `json:"duplicates"`
	Summary    Summary         `json:"summary"`
}

// Build walks the graph and classifies its nodes
func Build(ctx context.Context, graph *analyzer.Graph, classifier analyzer.Classifier) *Report {
	_, span := observability.StartSpan(ctx, "report.build")
	defer span.End()

	b := &builder{classifier: classifier}
	r := &Report{
		Hierarchy:  b.hierarchy(graph.Roots),
		System:     b.system(graph.Roots),
		Missing:    b.missing(graph.Roots),
		Failed:     b.failed(graph),
		Duplicates: b.duplicates(graph),
	}

	r.Summary = Summary{
		Missing:    len(r.Missing),
		Failed:     len(r.Failed),
		Duplicates: len(r.Duplicates),
	}
	r.Summary.Passed = r.Summary.Missing+r.Summary.Failed+r.Summary.Duplicates == 0

	observability.RecordCounts(span, graph.Index.Len(), r.Summary.Missing, r.Summary.Failed, r.Summary.Duplicates)
	span.SetAttributes(attribute.Bool("dllcheck.passed", r.Summary.Passed))
	return r
}

type builder struct {
	classifier analyzer.Classifier
}

// seen tracks names already visited by one traversal. Different versions of
// the same name count as the same module.
type seen map[string]bool

func (s seen) visit(r *model.Record) bool {
	key := strings.ToLower(r.Name)
	if s[key] {
		return false
	}
	s[key] = true
	return true
}

func (b *builder) hierarchy(roots []*model.Record) []HierarchyLine {
	var lines []HierarchyLine
	visited := seen{}

	var walk func(r *model.Record, depth int)
	walk = func(r *model.Record, depth int) {
		first := visited.visit(r)
		lines = append(lines, HierarchyLine{
			Depth:    depth,
			Name:     r.Name,
			Version:  r.Version.String(),
			Status:   b.status(r),
			Expanded: first,
		})
		if !first {
			return
		}
		for _, child := range r.SortedChildren() {
			walk(child, depth+1)
		}
	}

	for _, root := range roots {
		walk(root, 0)
	}
	return lines
}

func (b *builder) status(r *model.Record) Status {
	switch {
	case r.ParseFailed:
		return StatusFailed
	case !r.Missing:
		return StatusOK
	case b.classifier.IsExcluded(r.Name):
		return StatusExcluded
	}
	if _, ok := b.classifier.Locate(r); ok {
		return StatusSystem
	}
	return StatusMissing
}

// walkMissing visits the closure of roots depth-first. The by-name visited set
// only stops descent. Every missing record reached is offered to emit, and a
// name counts as reported once emit accepts it, so another version of an
// already visited name is still reported when it is missing.
func walkMissing(roots []*model.Record, emit func(r *model.Record) bool) {
	visited := seen{}
	reported := seen{}

	var walk func(r *model.Record)
	walk = func(r *model.Record) {
		if r.Missing && !reported[strings.ToLower(r.Name)] && emit(r) {
			reported.visit(r)
		}
		if !visited.visit(r) {
			return
		}
		for _, child := range r.SortedChildren() {
			walk(child)
		}
	}

	for _, root := range roots {
		walk(root)
	}
}

func (b *builder) system(roots []*model.Record) []SystemModule {
	var records []*model.Record
	paths := make(map[*model.Record]string)

	walkMissing(roots, func(r *model.Record) bool {
		path, ok := b.classifier.Locate(r)
		if ok {
			records = append(records, r)
			paths[r] = path
		}
		return ok
	})

	model.Sort(records)
	out := make([]SystemModule, 0, len(records))
	for _, r := range records {
		out = append(out, SystemModule{Module: moduleOf(r), Path: paths[r]})
	}
	return out
}

func (b *builder) missing(roots []*model.Record) []Module {
	var records []*model.Record
	walkMissing(roots, func(r *model.Record) bool {
		if _, ok := b.classifier.Locate(r); ok {
			return false
		}
		if b.classifier.IsExcluded(r.Name) {
			return false
		}
		records = append(records, r)
		return true
	})
	return modules(records)
}

func (b *builder) failed(graph *analyzer.Graph) []Module {
	var records []*model.Record
	for _, r := range graph.Index.Records() {
		if r.ParseFailed && !b.classifier.IsExcluded(r.Name) {
			records = append(records, r)
		}
	}
	return modules(records)
}

func (b *builder) duplicates(graph *analyzer.Graph) []Duplicate {
	var records []*model.Record
	for _, r := range graph.Index.Records() {
		if r.IsDuplicate() {
			records = append(records, r)
		}
	}

	model.Sort(records)
	out := make([]Duplicate, 0, len(records))
	for _, r := range records {
		locations := make([]string, len(r.Locations))
		copy(locations, r.Locations)
		out = append(out, Duplicate{Module: moduleOf(r), Locations: locations})
	}
	return out
}

func modules(records []*model.Record) []Module {
	model.Sort(records)
	out := make([]Module, 0, len(records))
	for _, r := range records {
		out = append(out, moduleOf(r))
	}
	return out
}

func moduleOf(r *model.Record) Module {
	return Module{Name: r.Name, Version: r.Version.String()}
}
