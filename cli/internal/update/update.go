// Package update compares the running binary with the versions recorded
// in the migration history.
package update

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// NewestRecorded returns the newest tool version in recorded that is
// newer than current, or nil when current is at least as new as all of
// them. Empty and unparsable entries are ignored; rows written by
// development builds carry no usable version.
func NewestRecorded(current string, recorded []string) (*version.Version, error) {
	cur, err := version.NewVersion(current)
	if err != nil {
		return nil, fmt.Errorf("invalid version format: %w", err)
	}
	var newest *version.Version
	for _, r := range recorded {
		if r == "" {
			continue
		}
		v, err := version.NewVersion(r)
		if err != nil {
			continue
		}
		if v.GreaterThan(cur) && (newest == nil || v.GreaterThan(newest)) {
			newest = v
		}
	}
	return newest, nil
}

// InstallHint is printed when history was written by a newer binary.
func InstallHint(v *version.Version) string {
	return fmt.Sprintf("go install github.com/satishbabariya/schemadelta/cli@v%s", v.String())
}
