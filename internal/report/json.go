package report

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteJSON renders the report as an indented JSON document. Empty sections
// are written as [] rather than null.
func WriteJSON(w io.Writer, r *Report) error {
	out := *r
	if out.Hierarchy == nil {
		out.Hierarchy = []HierarchyLine{}
	}
	if out.System == nil {
		out.System = []SystemModule{}
	}
	if out.Missing == nil {
		out.Missing = []Module{}
	}
	if out.Failed == nil {
		out.Failed = []Module{}
	}
	if out.Duplicates == nil {
		out.Duplicates = []Duplicate{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
