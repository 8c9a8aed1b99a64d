package parser

import (
	"fmt"
	"io"
	"os"

	"github.com/mabhi256/dllcheck/internal/assembly/model"
)

/*
*	Managed module layout, ECMA-335 partition II
*	https://www.ecma-international.org/publications-and-standards/standards/ecma-335/
*
*	PE image -> data directory 14 (CLI header) -> metadata root "BSJB"
*	-> "#~" table stream -> Assembly (0x20) and AssemblyRef (0x23) rows
*	-> names in "#Strings"
 */

// Metadata is the identity of a module and the identities it references
type Metadata struct {
	Identity   model.Identity
	References []model.Identity
	// RuntimeVersion is the metadata root version string, e.g. "v4.0.30319"
	RuntimeVersion string
}

// Reader extracts module metadata from a file
type Reader interface {
	Read(path string) (*Metadata, error)
}

// FileReader reads metadata straight from module files on disk
type FileReader struct{}

func NewFileReader() *FileReader {
	return &FileReader{}
}

// Read opens path, parses its metadata and closes it again. Every failure is
// returned as a *ParseError.
func (fr *FileReader) Read(path string) (*Metadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("unable to open file: %w", err)}
	}
	defer file.Close()

	md, err := Parse(file)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return md, nil
}

// Parse reads module metadata from an image held by r
func Parse(r io.ReaderAt) (*Metadata, error) {
	blob, err := readMetadataBlob(r)
	if err != nil {
		return nil, err
	}

	root, err := parseMetadataRoot(blob)
	if err != nil {
		return nil, err
	}

	tables, ok := root.Streams[streamTables]
	if !ok {
		tables, ok = root.Streams[streamTablesUnoptimized]
	}
	if !ok {
		return nil, badMetadata("no table stream")
	}
	heap, ok := root.Streams[streamStrings]
	if !ok {
		return nil, badMetadata("no #Strings stream")
	}

	ts, err := parseTableStream(tables)
	if err != nil {
		return nil, err
	}

	identity, err := readAssembly(ts, heap)
	if err != nil {
		return nil, err
	}

	refs := make([]model.Identity, 0, ts.RowCount(tableAssemblyRef))
	for i := 0; i < ts.RowCount(tableAssemblyRef); i++ {
		ref, err := readAssemblyRef(ts, heap, i)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	return &Metadata{
		Identity:       identity,
		References:     refs,
		RuntimeVersion: root.Version,
	}, nil
}

/*
*	Assembly row
*
*	u4		HashAlgId
*	u2 x4	MajorVersion, MinorVersion, BuildNumber, RevisionNumber
*	u4		Flags
*	blob	PublicKey
*	str		Name
*	str		Culture
 */
func readAssembly(ts *tableStream, heap []byte) (model.Identity, error) {
	if ts.RowCount(tableAssembly) == 0 {
		return model.Identity{}, ErrNoAssembly
	}

	row, err := ts.readRow(tableAssembly, 0)
	if err != nil {
		return model.Identity{}, err
	}

	name, err := heapString(heap, row[7])
	if err != nil {
		return model.Identity{}, fmt.Errorf("failed to read assembly name: %w", err)
	}
	if name == "" {
		return model.Identity{}, badMetadata("empty assembly name")
	}

	return model.Identity{
		Name:    model.FileName(name),
		Version: rowVersion(row[1:5]),
	}, nil
}

/*
*	AssemblyRef row
*
*	u2 x4	MajorVersion, MinorVersion, BuildNumber, RevisionNumber
*	u4		Flags
*	blob	PublicKeyOrToken
*	str		Name
*	str		Culture
*	blob	HashValue
 */
func readAssemblyRef(ts *tableStream, heap []byte, i int) (model.Identity, error) {
	row, err := ts.readRow(tableAssemblyRef, i)
	if err != nil {
		return model.Identity{}, err
	}

	name, err := heapString(heap, row[6])
	if err != nil {
		return model.Identity{}, fmt.Errorf("failed to read reference %d name: %w", i, err)
	}
	if name == "" {
		return model.Identity{}, badMetadata("reference %d has an empty name", i)
	}

	return model.Identity{
		Name:    model.FileName(name),
		Version: rowVersion(row[0:4]),
	}, nil
}

func rowVersion(v []uint32) model.Version {
	return model.Version{
		Major:    uint16(v[0]),
		Minor:    uint16(v[1]),
		Build:    uint16(v[2]),
		Revision: uint16(v[3]),
	}
}
