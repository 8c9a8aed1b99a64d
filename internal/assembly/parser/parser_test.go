package parser

import (
	"bytes"
	"debug/pe"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mabhi256/dllcheck/internal/assembly/model"
	"github.com/mabhi256/dllcheck/internal/testutil"
)

func TestReadAssembly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		asm  testutil.Assembly
	}{
		{
			name: "no references",
			asm:  testutil.Assembly{Name: "App", Version: "1.0.0.0"},
		},
		{
			name: "references",
			asm: testutil.Assembly{
				Name:    "App",
				Version: "1.2.3.4",
				Refs: []testutil.Reference{
					testutil.Ref("Lib", "2.0.0.0"),
					testutil.Ref("mscorlib", "4.0.0.0"),
				},
			},
		},
		{
			name: "wide string heap",
			asm: testutil.Assembly{
				Name:        "Wide",
				Version:     "65535.0.1.2",
				Refs:        []testutil.Reference{testutil.Ref("Lib", "2.0.0.0")},
				WideStrings: true,
			},
		},
		{
			name: "unoptimized table stream",
			asm: testutil.Assembly{
				Name:        "Edit",
				Version:     "3.0.0.0",
				Refs:        []testutil.Reference{testutil.Ref("Lib", "1.5.0.0")},
				Unoptimized: true,
			},
		},
		{
			name: "ReadyToRun linux machine",
			asm: testutil.Assembly{
				Name:        "Linux",
				Version:     "8.0.0.0",
				Refs:        []testutil.Reference{testutil.Ref("System.Runtime", "8.0.0.0")},
				MachineMask: 0x7B79,
			},
		},
		{
			name: "ReadyToRun apple machine",
			asm: testutil.Assembly{
				Name:        "Apple",
				Version:     "8.0.0.0",
				MachineMask: 0x4644,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := testutil.WriteAssembly(t, t.TempDir(), tt.asm.Name+".dll", tt.asm)
			md, err := NewFileReader().Read(path)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}

			want := model.Identity{Name: tt.asm.Name + ".dll", Version: model.MustParseVersion(tt.asm.Version)}
			if diff := cmp.Diff(want, md.Identity); diff != "" {
				t.Errorf("identity mismatch (-want +got):\n%s", diff)
			}

			wantRefs := make([]model.Identity, 0, len(tt.asm.Refs))
			for _, r := range tt.asm.Refs {
				wantRefs = append(wantRefs, model.Identity{Name: r.Name + ".dll", Version: model.MustParseVersion(r.Version)})
			}
			if diff := cmp.Diff(wantRefs, md.References); diff != "" {
				t.Errorf("references mismatch (-want +got):\n%s", diff)
			}

			if md.RuntimeVersion != "v4.0.30319" {
				t.Errorf("RuntimeVersion = %q, want v4.0.30319", md.RuntimeVersion)
			}
		})
	}
}

func TestReadFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	valid := testutil.Build(testutil.Assembly{Name: "App", Version: "1.0.0.0"})

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "empty file", data: nil, want: ErrNotPE},
		{name: "text file", data: []byte("this is not a module, just some text that is long enough to be read as a header block"), want: ErrNotPE},
		{name: "native image", data: testutil.NativeImage(), want: ErrNotManaged},
		{name: "unknown machine", data: testutil.Build(testutil.Assembly{Name: "Odd", Version: "1.0.0.0", MachineMask: 0x1234}), want: ErrNotPE},
		{name: "netmodule", data: testutil.Build(testutil.Assembly{Name: "Part", NoManifest: true}), want: ErrNoAssembly},
		{name: "bad signature", data: bytes.Replace(valid, []byte("BSJB"), []byte("XXXX"), 1), want: ErrBadMetadata},
		{name: "missing tables", data: bytes.Replace(valid, []byte("#~\x00"), []byte("#X\x00"), 1), want: ErrBadMetadata},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := testutil.WriteFile(t, dir, tt.name+".dll", tt.data)
			_, err := NewFileReader().Read(path)
			if err == nil {
				t.Fatal("Read() error = nil, want failure")
			}

			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("error %T is not a *ParseError", err)
			}
			if perr.Path != path {
				t.Errorf("ParseError.Path = %q, want %q", perr.Path, path)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Read() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadRVAHighSection(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{0xAB}, 0x2000)
	copy(data[0x800:], "BSJB")
	f := &pe.File{Sections: []*pe.Section{{
		SectionHeader: pe.SectionHeader{Name: ".text", VirtualAddress: 0xFFFFF000, VirtualSize: 0x2000, Size: 0x2000},
		ReaderAt:      bytes.NewReader(data),
	}}}

	got, err := readRVA(f, 0xFFFFF800, 4)
	if err != nil {
		t.Fatalf("readRVA() error = %v", err)
	}
	if string(got) != "BSJB" {
		t.Errorf("readRVA() = %q, want BSJB", got)
	}

	if _, err := readRVA(f, 0x800, 4); !errors.Is(err, ErrBadMetadata) {
		t.Errorf("readRVA() below the section error = %v, want %v", err, ErrBadMetadata)
	}
}

func TestReadMissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nope.dll")
	_, err := NewFileReader().Read(path)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read() error = %v, want os.ErrNotExist", err)
	}
}

func TestReadReleasesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := testutil.WriteAssembly(t, dir, "App.dll", testutil.Assembly{Name: "App", Version: "1.0.0.0"})
	if _, err := NewFileReader().Read(path); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("file still held after Read: %v", err)
	}
}

func TestTruncatedMetadata(t *testing.T) {
	t.Parallel()

	data := testutil.Build(testutil.Assembly{
		Name:    "App",
		Version: "1.0.0.0",
		Refs:    []testutil.Reference{testutil.Ref("Lib", "2.0.0.0")},
	})

	// Cut the image inside the section data. debug/pe still opens the headers,
	// so the failure has to come from the metadata reader.
	_, err := Parse(bytes.NewReader(data[:0x220]))
	if err == nil {
		t.Fatal("Parse() error = nil on truncated image")
	}
}

func TestColumnSizes(t *testing.T) {
	t.Parallel()

	ts := &tableStream{}
	if got := ts.columnSize(str); got != 2 {
		t.Errorf("narrow string index = %d, want 2", got)
	}
	if got := ts.columnSize(coded(ciResolutionScope)); got != 2 {
		t.Errorf("empty coded index = %d, want 2", got)
	}

	ts.heapSizes = heapBigStrings | heapBigBlob
	if got := ts.columnSize(str); got != 4 {
		t.Errorf("wide string index = %d, want 4", got)
	}
	if got := ts.columnSize(guid); got != 2 {
		t.Errorf("guid index = %d, want 2", got)
	}

	// ResolutionScope has 2 tag bits, so 2^14 rows in any target forces 4 bytes
	ts.rows[tableTypeRef] = 1<<14 - 1
	if got := ts.columnSize(coded(ciResolutionScope)); got != 2 {
		t.Errorf("coded index below limit = %d, want 2", got)
	}
	ts.rows[tableTypeRef] = 1 << 14
	if got := ts.columnSize(coded(ciResolutionScope)); got != 4 {
		t.Errorf("coded index at limit = %d, want 4", got)
	}

	ts.rows[tableField] = 0x10000
	if got := ts.columnSize(index(tableField)); got != 4 {
		t.Errorf("table index over 0xFFFF rows = %d, want 4", got)
	}

	// AssemblyRef: 4 x u2, u4, blob, str, str, blob
	if got := ts.rowSize(schema[tableAssemblyRef]); got != 8+4+4+4+4+4 {
		t.Errorf("AssemblyRef row size = %d, want 28", got)
	}
}
