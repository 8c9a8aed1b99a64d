package model

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0.0", "1.0.0.0", 0},
		{"2.0.0.0", "1.5.0.0", 1},
		{"1.4.9.9", "1.5.0.0", -1},
		{"1.5.0.1", "1.5.0.0", 1},
		{"0.0.0.0", "0.0.0.1", -1},
		{"10.0.0.0", "9.99.99.99", 1},
	}

	for _, tt := range tests {
		got := MustParseVersion(tt.a).Compare(MustParseVersion(tt.b))
		if got != tt.want {
			t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestVersionAtLeast(t *testing.T) {
	required := MustParseVersion("1.5.0.0")

	if !MustParseVersion("2.0.0.0").AtLeast(required) {
		t.Error("2.0.0.0 should satisfy 1.5.0.0")
	}
	if !MustParseVersion("1.5.0.0").AtLeast(required) {
		t.Error("equal versions should satisfy each other")
	}
	if MustParseVersion("1.4.9.9").AtLeast(required) {
		t.Error("1.4.9.9 should not satisfy 1.5.0.0")
	}
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("2.1")
	if err != nil {
		t.Fatalf("ParseVersion: %v", err)
	}
	if v.String() != "2.1.0.0" {
		t.Errorf("got %s, want 2.1.0.0", v)
	}

	for _, bad := range []string{"", "1.2.3.4.5", "a.b", "70000.0.0.0"} {
		if _, err := ParseVersion(bad); err == nil {
			t.Errorf("ParseVersion(%q) succeeded, want error", bad)
		}
	}
}

func TestIdentityKeyIsCaseInsensitive(t *testing.T) {
	a := Identity{Name: "Lib.dll", Version: MustParseVersion("2.0.0.0")}
	b := Identity{Name: "LIB.DLL", Version: MustParseVersion("2.0.0.0")}
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
	if a.Key() != "lib.dll, 2.0.0.0" {
		t.Errorf("unexpected key %q", a.Key())
	}
	if a.String() != "Lib.dll (2.0.0.0)" {
		t.Errorf("unexpected label %q", a.String())
	}
}

func TestRecordStates(t *testing.T) {
	id := Identity{Name: "Lib.dll", Version: MustParseVersion("1.0.0.0")}

	scanned := NewRecord(id, "/a/Lib.dll", nil)
	failed := NewFailedRecord("/a/Broken.dll", errors.New("bad image"))
	missing := NewMissingRecord(id)

	if scanned.State() != StateScanned || failed.State() != StateParseFailed || missing.State() != StateMissing {
		t.Errorf("states = %v, %v, %v", scanned.State(), failed.State(), missing.State())
	}
	if failed.Key != "broken.dll" || failed.Name != "Broken.dll" {
		t.Errorf("failed record keyed as %q name %q", failed.Key, failed.Name)
	}
	if len(missing.Locations) != 0 {
		t.Errorf("placeholder should have no locations, got %v", missing.Locations)
	}
}

func TestRecordDuplicate(t *testing.T) {
	r := NewRecord(Identity{Name: "Dup.dll"}, "/a/Dup.dll", nil)
	if r.IsDuplicate() {
		t.Fatal("single location reported as duplicate")
	}
	r.AddLocation("/b/Dup.dll")
	if !r.IsDuplicate() {
		t.Fatal("two locations not reported as duplicate")
	}
	if diff := cmp.Diff([]string{"/a/Dup.dll", "/b/Dup.dll"}, r.Locations); diff != "" {
		t.Errorf("locations mismatch (-want +got):\n%s", diff)
	}
}

func TestSortedChildren(t *testing.T) {
	parent := NewRecord(Identity{Name: "App.dll"}, "/a/App.dll", nil)
	for _, c := range []Identity{
		{Name: "zeta.dll", Version: MustParseVersion("1.0")},
		{Name: "Alpha.dll", Version: MustParseVersion("2.0")},
		{Name: "alpha.dll", Version: MustParseVersion("1.0")},
		{Name: "Beta.dll", Version: MustParseVersion("1.0")},
	} {
		parent.AddChild(NewMissingRecord(c))
	}

	var got []string
	for _, c := range parent.SortedChildren() {
		got = append(got, c.String())
	}
	want := []string{
		"alpha.dll (1.0.0.0)",
		"Alpha.dll (2.0.0.0)",
		"Beta.dll (1.0.0.0)",
		"zeta.dll (1.0.0.0)",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}
