package registry

import (
	"github.com/mabhi256/dllcheck/internal/assembly/model"
)

// Index is the keyed collection of every module found in the scanned directories
type Index struct {
	// Maps record key to record
	byKey map[string]*model.Record

	// Records in the order their key was first seen
	order []*model.Record

	// Statistics
	fileCount   int
	failedCount int
}

func NewIndex() *Index {
	return &Index{
		byKey: make(map[string]*model.Record),
	}
}

// Add merges a record into the index. A record whose key is already present
// only contributes its location to the existing record.
func (idx *Index) Add(record *model.Record) *model.Record {
	idx.fileCount++
	if record.ParseFailed {
		idx.failedCount++
	}

	if existing, ok := idx.byKey[record.Key]; ok {
		for _, loc := range record.Locations {
			existing.AddLocation(loc)
		}
		return existing
	}

	idx.byKey[record.Key] = record
	idx.order = append(idx.order, record)
	return record
}

func (idx *Index) Get(key string) (*model.Record, bool) {
	record, ok := idx.byKey[key]
	return record, ok
}

// Records returns all records in discovery order
func (idx *Index) Records() []*model.Record {
	out := make([]*model.Record, len(idx.order))
	copy(out, idx.order)
	return out
}

// Sorted returns all records in report order
func (idx *Index) Sorted() []*model.Record {
	out := idx.Records()
	model.Sort(out)
	return out
}

// Len is the number of distinct records
func (idx *Index) Len() int {
	return len(idx.order)
}

// FileCount is the number of files merged into the index
func (idx *Index) FileCount() int {
	return idx.fileCount
}

// FailedCount is the number of files that could not be parsed
func (idx *Index) FailedCount() int {
	return idx.failedCount
}
