package update

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PlaceholderRevision marks a development install that must never be
// replaced by a release build.
const PlaceholderRevision = "dev"

var versionRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)(?:\.(\d+))?(?:-([a-zA-Z0-9.-]+))?$`)

// Version is a revision that reads as a semantic version.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
}

// ParseVersion parses "1.2.3", "v1.2", "1.0.0-rc.1" and similar.
func ParseVersion(s string) (*Version, error) {
	matches := versionRegex.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return nil, fmt.Errorf("invalid version format: %s", s)
	}

	major, _ := strconv.Atoi(matches[1])
	minor, _ := strconv.Atoi(matches[2])
	patch, _ := strconv.Atoi(matches[3])

	return &Version{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		Prerelease: matches[4],
	}, nil
}

func (v *Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// Compare returns 1, 0 or -1. A release sorts above its prereleases.
func (v *Version) Compare(other *Version) int {
	switch {
	case v.Major != other.Major:
		return sign(v.Major - other.Major)
	case v.Minor != other.Minor:
		return sign(v.Minor - other.Minor)
	case v.Patch != other.Patch:
		return sign(v.Patch - other.Patch)
	}

	switch {
	case v.Prerelease == other.Prerelease:
		return 0
	case v.Prerelease == "":
		return 1
	case other.Prerelease == "":
		return -1
	default:
		return strings.Compare(v.Prerelease, other.Prerelease)
	}
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

// IsPlaceholder reports whether rev is the development placeholder.
func IsPlaceholder(rev string) bool {
	return strings.EqualFold(strings.TrimSpace(rev), PlaceholderRevision)
}

// SameRevision compares two revision identifiers ignoring ASCII case.
func SameRevision(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Direction describes moving from current to latest: "upgrade",
// "downgrade", "reinstall" when both parse as the same version, or
// "change" when either is not a version.
func Direction(current, latest string) string {
	cv, err := ParseVersion(current)
	if err != nil {
		return "change"
	}
	lv, err := ParseVersion(latest)
	if err != nil {
		return "change"
	}
	switch lv.Compare(cv) {
	case 1:
		return "upgrade"
	case -1:
		return "downgrade"
	default:
		return "reinstall"
	}
}
