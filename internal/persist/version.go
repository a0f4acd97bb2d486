package persist

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"
)

// Version is the major.minor.revision a component was saved with
type Version struct {
	Major    int
	Minor    int
	Revision int
}

// CurrentVersion is written by components created by this build
var CurrentVersion = Version{Major: 1, Minor: 0, Revision: 0}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Revision)
}

// IsZero reports whether the version was never set
func (v Version) IsZero() bool {
	return v == Version{}
}

// Compare returns -1, 0 or +1 as v is older than, equal to or newer than other
func (v Version) Compare(other Version) int {
	return semver.Compare(v.String(), other.String())
}

// ParseVersion parses "1.2.3" or "v1.2.3"
func ParseVersion(s string) (Version, error) {
	canonical := s
	if len(canonical) == 0 || canonical[0] != 'v' {
		canonical = "v" + canonical
	}
	if !semver.IsValid(canonical) {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}

	var v Version
	if _, err := fmt.Sscanf(semver.Canonical(canonical), "v%d.%d.%d", &v.Major, &v.Minor, &v.Revision); err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

// CheckCompatible logs a warning when a record was written by a newer major
// version than the running one. Records are never migrated.
func CheckCompatible(saved, running Version) bool {
	if saved.IsZero() {
		return true
	}
	if semver.Major(saved.String()) == semver.Major(running.String()) || saved.Compare(running) < 0 {
		return true
	}

	zap.L().Warn("Component was saved by a newer version",
		zap.String("saved", saved.String()),
		zap.String("running", running.String()))
	return false
}
