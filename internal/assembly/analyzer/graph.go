package analyzer

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mabhi256/dllcheck/internal/assembly/model"
	"github.com/mabhi256/dllcheck/internal/assembly/registry"
	"github.com/mabhi256/dllcheck/internal/observability"
)

// Graph is the linked dependency graph of one scan
type Graph struct {
	Index *registry.Index

	// Roots are the records no scanned module references, in report order
	Roots []*model.Record

	// Placeholders holds the synthesized missing records by key. Every parent
	// referencing the same key shares the one record stored here.
	Placeholders map[string]*model.Record

	// Statistics
	LinkCount int
}

// GraphBuilder links the declared references of indexed modules
type GraphBuilder struct {
	logger *log.Logger
}

func NewGraphBuilder(logger *log.Logger) *GraphBuilder {
	return &GraphBuilder{logger: observability.OrDiscard(logger)}
}

// Link resolves every reference of every parsed record against the index and
// computes the roots. Records that are referenced by anyone, resolvable or
// not, are never roots.
func (gb *GraphBuilder) Link(ctx context.Context, idx *registry.Index) (*Graph, error) {
	if idx == nil {
		return nil, fmt.Errorf("module index is required")
	}

	_, span := observability.StartSpan(ctx, "analyzer.link")
	defer span.End()

	graph := &Graph{
		Index:        idx,
		Placeholders: make(map[string]*model.Record),
	}

	candidates := make(map[string]*model.Record, idx.Len())
	for _, record := range idx.Records() {
		candidates[record.Key] = record
	}

	for _, record := range idx.Records() {
		if record.ParseFailed {
			continue
		}

		for _, ref := range record.References {
			key := ref.Key()
			delete(candidates, key)
			graph.LinkCount++

			if target, ok := idx.Get(key); ok {
				record.AddChild(target)
				continue
			}

			placeholder, ok := graph.Placeholders[key]
			if !ok {
				placeholder = model.NewMissingRecord(ref)
				graph.Placeholders[key] = placeholder
				gb.logger.Debug("unresolved reference", "from", record, "to", ref)
			}
			record.AddChild(placeholder)
		}
	}

	graph.Roots = make([]*model.Record, 0, len(candidates))
	for _, record := range candidates {
		graph.Roots = append(graph.Roots, record)
	}
	model.Sort(graph.Roots)

	span.SetAttributes(
		attribute.Int("dllcheck.roots", len(graph.Roots)),
		attribute.Int("dllcheck.placeholders", len(graph.Placeholders)),
		attribute.Int("dllcheck.links", graph.LinkCount),
	)
	gb.logger.Debug("graph linked", "roots", len(graph.Roots),
		"links", graph.LinkCount, "unresolved", len(graph.Placeholders))

	return graph, nil
}
