package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mabhi256/dllcheck/internal/assembly/model"
	"github.com/mabhi256/dllcheck/internal/assembly/parser"
	"github.com/mabhi256/dllcheck/internal/testutil"
)

func TestBuildIndexesModules(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteAssembly(t, dir, "App.dll", testutil.Assembly{
		Name:    "App",
		Version: "1.0.0.0",
		Refs:    []testutil.Reference{testutil.Ref("Lib", "2.0.0.0")},
	})
	testutil.WriteAssembly(t, dir, "Lib.DLL", testutil.Assembly{Name: "Lib", Version: "2.0.0.0"})
	testutil.WriteFile(t, dir, "readme.txt", []byte("not a module"))
	if err := os.Mkdir(filepath.Join(dir, "nested.dll"), 0o755); err != nil {
		t.Fatal(err)
	}

	idx, err := Build(context.Background(), []string{dir}, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if idx.Len() != 2 || idx.FileCount() != 2 {
		t.Fatalf("Len() = %d, FileCount() = %d, want 2 and 2", idx.Len(), idx.FileCount())
	}

	lib, ok := idx.Get("lib.dll, 2.0.0.0")
	if !ok {
		t.Fatal("Lib.dll not indexed under its lowercase key")
	}
	if lib.Name != "Lib.dll" || lib.State() != model.StateScanned {
		t.Errorf("lib = %s (%s), want Lib.dll scanned", lib, lib.State())
	}
}

func TestBuildMergesDuplicates(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	a := filepath.Join(root, "a")
	b := filepath.Join(root, "b")
	c := filepath.Join(root, "c")

	dup := testutil.Assembly{Name: "Dup", Version: "1.0.0.0"}
	pathB := testutil.WriteAssembly(t, b, "Dup.dll", dup)
	pathA := testutil.WriteAssembly(t, a, "Dup.dll", dup)
	pathC := testutil.WriteAssembly(t, c, "dup.dll", dup)
	testutil.WriteAssembly(t, c, "Dup2.dll", testutil.Assembly{Name: "Dup", Version: "1.0.0.1"})

	for _, jobs := range []int{1, 8} {
		idx, err := Build(context.Background(), []string{b, a, c}, Options{Jobs: jobs})
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}

		if idx.Len() != 2 {
			t.Fatalf("jobs=%d: Len() = %d, want 2", jobs, idx.Len())
		}

		record, ok := idx.Get("dup.dll, 1.0.0.0")
		if !ok {
			t.Fatalf("jobs=%d: duplicate record missing", jobs)
		}
		want := []string{pathB, pathA, pathC}
		if diff := cmp.Diff(want, record.Locations); diff != "" {
			t.Errorf("jobs=%d: locations mismatch (-want +got):\n%s", jobs, diff)
		}

		other, _ := idx.Get("dup.dll, 1.0.0.1")
		if other == nil || other.IsDuplicate() {
			t.Errorf("jobs=%d: different version must be its own single-location record", jobs)
		}
	}
}

func TestBuildRecordsParseFailures(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	one := testutil.WriteFile(t, filepath.Join(root, "one"), "Broken.dll", []byte("garbage"))
	two := testutil.WriteFile(t, filepath.Join(root, "two"), "broken.dll", testutil.NativeImage())

	idx, err := Build(context.Background(), []string{filepath.Dir(one), filepath.Dir(two)}, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if idx.Len() != 1 || idx.FailedCount() != 2 {
		t.Fatalf("Len() = %d, FailedCount() = %d, want 1 and 2", idx.Len(), idx.FailedCount())
	}

	record, ok := idx.Get("broken.dll")
	if !ok {
		t.Fatal("failed record not keyed by lowercase file name")
	}
	if record.State() != model.StateParseFailed {
		t.Errorf("state = %s, want failed", record.State())
	}
	if diff := cmp.Diff([]string{one, two}, record.Locations); diff != "" {
		t.Errorf("locations mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(record.Err, parser.ErrNotPE) {
		t.Errorf("Err = %v, want ErrNotPE", record.Err)
	}
}

func TestBuildMissingDirectory(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "nope")
	_, err := Build(context.Background(), []string{missing}, Options{})

	var de *DirectoryError
	if !errors.As(err, &de) {
		t.Fatalf("Build() error = %v, want *DirectoryError", err)
	}
	if de.Path != missing || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("DirectoryError = %+v", de)
	}
	if !IsDirectoryError(err) {
		t.Error("IsDirectoryError() = false")
	}
}

type fakeReader map[string]*parser.Metadata

func (f fakeReader) Read(path string) (*parser.Metadata, error) {
	md, ok := f[filepath.Base(path)]
	if !ok {
		return nil, &parser.ParseError{Path: path, Err: parser.ErrBadMetadata}
	}
	return md, nil
}

func TestBuildUsesReader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.dll", nil)
	testutil.WriteFile(t, dir, "b.dll", nil)

	reader := fakeReader{
		"a.dll": {Identity: model.Identity{Name: "A.dll", Version: model.MustParseVersion("1.0")}},
	}
	idx, err := Build(context.Background(), []string{dir}, Options{Reader: reader, Jobs: 2})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var got []string
	for _, r := range idx.Sorted() {
		got = append(got, r.Key)
	}
	if diff := cmp.Diff([]string{"a.dll, 1.0.0.0", "b.dll"}, got); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteAssembly(t, dir, "App.dll", testutil.Assembly{Name: "App", Version: "1.0.0.0"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	if _, err := Build(ctx, []string{dir}, Options{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Build() error = %v, want deadline exceeded", err)
	}
}
