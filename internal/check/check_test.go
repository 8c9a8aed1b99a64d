package check

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mabhi256/dllcheck/internal/assembly/registry"
	"github.com/mabhi256/dllcheck/internal/config"
	"github.com/mabhi256/dllcheck/internal/testutil"
)

func TestRunPasses(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteAssembly(t, dir, "App.dll", testutil.Assembly{
		Name:    "App",
		Version: "1.0.0.0",
		Refs:    []testutil.Reference{testutil.Ref("Lib", "2.0.0.0")},
	})
	testutil.WriteAssembly(t, dir, "Lib.dll", testutil.Assembly{Name: "Lib", Version: "2.0.0.0"})

	cfg := &config.Config{Paths: []string{dir}}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	res, err := Run(context.Background(), cfg, Options{Jobs: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Passed() {
		t.Errorf("Run() failed: %+v", res.Report.Summary)
	}
	if len(res.Graph.Roots) != 1 || res.Graph.Roots[0].Name != "App.dll" {
		t.Errorf("roots = %v, want App.dll", res.Graph.Roots)
	}
}

func TestRunMissingDirectory(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Paths: []string{filepath.Join(t.TempDir(), "gone")}}
	_, err := Run(context.Background(), cfg, Options{})

	var de *registry.DirectoryError
	if !errors.As(err, &de) {
		t.Fatalf("Run() error = %v, want DirectoryError", err)
	}
}

func TestRunNilConfig(t *testing.T) {
	t.Parallel()

	if _, err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("Run(nil) error = nil")
	}
}
