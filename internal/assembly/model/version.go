package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the four-part assembly version (major.minor.build.revision)
type Version struct {
	Major    uint16
	Minor    uint16
	Build    uint16
	Revision uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// Compare orders versions component-wise, most significant first.
// It returns -1, 0 or +1.
func (v Version) Compare(other Version) int {
	a := [4]uint16{v.Major, v.Minor, v.Build, v.Revision}
	b := [4]uint16{other.Major, other.Minor, other.Build, other.Revision}
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// AtLeast reports whether v satisfies a reference that requires the given version
func (v Version) AtLeast(required Version) bool {
	return v.Compare(required) >= 0
}

// ParseVersion parses "1.2.3.4". Missing trailing components default to zero,
// so "2.0" is 2.0.0.0.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("empty version string")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return Version{}, fmt.Errorf("invalid version %q: more than 4 components", s)
	}

	var comps [4]uint16
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		comps[i] = uint16(n)
	}

	return Version{Major: comps[0], Minor: comps[1], Build: comps[2], Revision: comps[3]}, nil
}

// MustParseVersion is like ParseVersion but panics on error
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}
