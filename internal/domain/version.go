package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

// Version is an httpd release number (major.minor.patch).
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion extracts the first X.Y.Z triple from s.
// Example: "Apache/2.4.29 (Ubuntu)" -> 2.4.29
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("no version number in %q", s)
	}
	// The pattern guarantees digits; Atoi can only fail on overflow.
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, fmt.Errorf("invalid major version in %q: %w", s, err)
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return Version{}, fmt.Errorf("invalid minor version in %q: %w", s, err)
	}
	patch, err := strconv.Atoi(m[3])
	if err != nil {
		return Version{}, fmt.Errorf("invalid patch version in %q: %w", s, err)
	}
	return Version{Major: major, Minor: minor, Patch: patch}, nil
}

// MustParseVersion is ParseVersion for literals; it panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return sign(v.Major - o.Major)
	case v.Minor != o.Minor:
		return sign(v.Minor - o.Minor)
	default:
		return sign(v.Patch - o.Patch)
	}
}

func (v Version) Less(o Version) bool    { return v.Compare(o) < 0 }
func (v Version) AtLeast(o Version) bool { return v.Compare(o) >= 0 }

// IsZero reports whether v was never set.
func (v Version) IsZero() bool { return v == Version{} }

// Legacy reports whether v belongs to the 2.2.x family, which only
// supports the GET based enable/disable protocol.
func (v Version) Legacy() bool { return v.Major == 2 && v.Minor == 2 }

// SupportedVersion rejects httpd families the page parser does not know.
func SupportedVersion(v Version) error {
	if v.Major == 2 && (v.Minor == 2 || v.Minor == 4) {
		return nil
	}
	return &UnsupportedVersionError{Version: v}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
