package event

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a log format version such as "7.06", compared as (major, minor).
type Version struct {
	Major int
	Minor int
}

var (
	V60  = Version{6, 0}
	V61  = Version{6, 1}
	V62  = Version{6, 2}
	V70  = Version{7, 0}
	V702 = Version{7, 2}
	V704 = Version{7, 4}
	V706 = Version{7, 6}
)

// KnownVersions lists the layouts this codec understands, oldest first.
var KnownVersions = []Version{V60, V61, V62, V70, V702, V704, V706}

// CurrentVersion is the version written by default.
const CurrentVersion = "7.06"

// ParseVersion parses "major.minor". The minor part is read as an integer,
// so "7.06" is (7, 6) and "7.1" is (7, 1).
func ParseVersion(s string) (Version, error) {
	major, minor, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || major == "" || minor == "" {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	maj, err := strconv.Atoi(major)
	if err != nil || maj < 0 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	min, err := strconv.Atoi(minor)
	if err != nil || min < 0 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	return Version{Major: maj, Minor: min}, nil
}

// Compare returns -1, 0, or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		if v.Major < o.Major {
			return -1
		}
		return 1
	case v.Minor != o.Minor:
		if v.Minor < o.Minor {
			return -1
		}
		return 1
	}
	return 0
}

// AtLeast reports whether v >= o.
func (v Version) AtLeast(o Version) bool {
	return v.Compare(o) >= 0
}

func (v Version) String() string {
	if v.Minor < 10 && v.Major >= 7 && v.Minor > 0 {
		return fmt.Sprintf("%d.0%d", v.Major, v.Minor)
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// supported reports whether the codec has a layout for v. Newer minors of the
// newest major decode with the newest layout.
func supported(v Version) bool {
	oldest := KnownVersions[0]
	newest := KnownVersions[len(KnownVersions)-1]
	if v.Compare(oldest) < 0 {
		return false
	}
	return v.Major <= newest.Major
}
