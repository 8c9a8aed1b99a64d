package model

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Extension is the file extension of scanned modules. Matching is case-insensitive.
const Extension = ".dll"

// HasModuleExtension reports whether a file name looks like a module file
func HasModuleExtension(fileName string) bool {
	return strings.EqualFold(filepath.Ext(fileName), Extension)
}

// FileName turns an assembly name ("Lib") into the file-level module name ("Lib.dll")
func FileName(assemblyName string) string {
	return assemblyName + Extension
}

// Identity is a module name paired with its version
type Identity struct {
	Name    string
	Version Version
}

// Key is the case-insensitive composite used to deduplicate and cross-reference modules
func (id Identity) Key() string {
	return strings.ToLower(id.Name + ", " + id.Version.String())
}

func (id Identity) String() string {
	return fmt.Sprintf("%s (%s)", id.Name, id.Version)
}

// State says where a record came from. The three states are mutually exclusive.
type State int

const (
	// StateScanned is a module file that was found and parsed
	StateScanned State = iota
	// StateParseFailed is a module file that was found but could not be parsed
	StateParseFailed
	// StateMissing is a placeholder for a reference nothing in the scan satisfied
	StateMissing
)

func (s State) String() string {
	switch s {
	case StateScanned:
		return "scanned"
	case StateParseFailed:
		return "failed"
	case StateMissing:
		return "missing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Record is one node of the dependency graph.
//
// Identity fields never change after construction. Locations grows when the
// same identity is found again, Children grows while references are linked.
type Record struct {
	Key     string
	Name    string
	Version Version

	// Locations holds every path this identity was found at, in discovery order
	Locations []string

	// References are the identities the module declares it depends on, as
	// read from its first location
	References []Identity

	// Children maps a referenced key to the record it resolved to. Placeholders
	// for unresolved references are shared between all parents.
	Children map[string]*Record

	Missing     bool
	ParseFailed bool

	// Err is the parse failure cause for ParseFailed records
	Err error
}

// NewRecord creates a scanned record found at location
func NewRecord(id Identity, location string, refs []Identity) *Record {
	return &Record{
		Key:        id.Key(),
		Name:       id.Name,
		Version:    id.Version,
		Locations:  []string{location},
		References: refs,
		Children:   make(map[string]*Record),
	}
}

// NewFailedRecord creates a record for a file whose metadata could not be read.
// It is keyed by file name only, so it can never satisfy a reference.
func NewFailedRecord(location string, err error) *Record {
	name := filepath.Base(location)
	return &Record{
		Key:         strings.ToLower(name),
		Name:        name,
		Locations:   []string{location},
		Children:    make(map[string]*Record),
		ParseFailed: true,
		Err:         err,
	}
}

// NewMissingRecord creates a placeholder for an unresolved reference
func NewMissingRecord(id Identity) *Record {
	return &Record{
		Key:      id.Key(),
		Name:     id.Name,
		Version:  id.Version,
		Children: make(map[string]*Record),
		Missing:  true,
	}
}

func (r *Record) Identity() Identity {
	return Identity{Name: r.Name, Version: r.Version}
}

func (r *Record) State() State {
	switch {
	case r.Missing:
		return StateMissing
	case r.ParseFailed:
		return StateParseFailed
	default:
		return StateScanned
	}
}

// NameKey is the case-folded name used for "already seen" bookkeeping
func (r *Record) NameKey() string {
	return strings.ToLower(r.Name)
}

// AddLocation records another place the same identity was found
func (r *Record) AddLocation(path string) {
	r.Locations = append(r.Locations, path)
}

func (r *Record) AddChild(child *Record) {
	r.Children[child.Key] = child
}

// IsDuplicate is true when the identity was found at more than one path
func (r *Record) IsDuplicate() bool {
	return len(r.Locations) > 1
}

// SortedChildren returns the children in report order
func (r *Record) SortedChildren() []*Record {
	children := make([]*Record, 0, len(r.Children))
	for _, c := range r.Children {
		children = append(children, c)
	}
	Sort(children)
	return children
}

func (r *Record) String() string {
	return r.Identity().String()
}

// Sort orders records by name (case-insensitive), then version, then key
func Sort(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if an, bn := a.NameKey(), b.NameKey(); an != bn {
			return an < bn
		}
		if c := a.Version.Compare(b.Version); c != 0 {
			return c < 0
		}
		return a.Key < b.Key
	})
}
