package release

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrInvalidVersion indicates a string that is not a well-formed semantic version.
var ErrInvalidVersion = errors.New("invalid semantic version")

// Version is a semantic version with standard precedence ordering.
// The zero value is not a valid version; use Parse.
type Version struct {
	// sv is the parsed semantic version.
	sv *semver.Version
}

// Parse validates s as MAJOR.MINOR.PATCH with optional pre-release and build
// metadata. A leading "v" and partial versions are rejected, which keeps the
// textual form safe to use as a single path segment.
func Parse(s string) (Version, error) {
	sv, err := semver.StrictNewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: %w", ErrInvalidVersion, s, err)
	}

	return Version{sv: sv}, nil
}

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool {
	return v.sv == nil
}

// String returns the canonical textual form, or an empty string for the zero value.
func (v Version) String() string {
	if v.sv == nil {
		return ""
	}

	return v.sv.String()
}

// Compare returns -1, 0 or 1 by semantic version precedence.
// The zero value sorts below every parsed version.
func (v Version) Compare(other Version) int {
	switch {
	case v.sv == nil && other.sv == nil:
		return 0
	case v.sv == nil:
		return -1
	case other.sv == nil:
		return 1
	default:
		return v.sv.Compare(other.sv)
	}
}

// Equal reports whether both versions have the same precedence.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// Max returns the highest version in the list and false when the list is empty.
func Max(versions []Version) (Version, bool) {
	if len(versions) == 0 {
		return Version{}, false
	}

	return slices.MaxFunc(versions, Version.Compare), true
}

// Sort orders versions ascending in place.
func Sort(versions []Version) {
	slices.SortFunc(versions, Version.Compare)
}

// Join renders versions as a comma separated list for log output.
func Join(versions []Version) string {
	parts := make([]string, 0, len(versions))
	for _, v := range versions {
		parts = append(parts, v.String())
	}

	return strings.Join(parts, ", ")
}
