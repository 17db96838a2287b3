package eventstorage

import (
	"github.com/Masterminds/semver/v3"
)

type Version string

// VERSION is the current version of the eventstorage library.
const VERSION Version = "v0.2.0"

// Semver parses and returns semver
func (v Version) Semver() *semver.Version {
	return semver.MustParse(string(v))
}
