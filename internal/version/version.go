// Package version holds build-time metadata injected via ldflags.
package version

import "golang.org/x/mod/semver"

// These variables are set at build time using -ldflags:
//
//	-X 'github.com/janekbaraniewski/usagewatch/internal/version.Version=...'
//	-X 'github.com/janekbaraniewski/usagewatch/internal/version.CommitHash=...'
//	-X 'github.com/janekbaraniewski/usagewatch/internal/version.BuildDate=...'
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// String returns a formatted version string.
func String() string {
	return Canonical() + " (" + CommitHash + ") built " + BuildDate
}

// Canonical returns the release version in canonical semver form, or the raw
// value for dev builds and other non-semver strings.
func Canonical() string {
	v := Version
	if v == "" {
		return "dev"
	}
	withPrefix := v
	if withPrefix[0] != 'v' {
		withPrefix = "v" + withPrefix
	}
	if semver.IsValid(withPrefix) {
		return semver.Canonical(withPrefix)
	}
	return v
}
