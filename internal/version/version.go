// Package version provides the build version of the PDP binaries.
package version

import "strings"

// Version is the current release version.
// This is a var (not const) so ldflags -X can override it at build time.
var Version = "dev"

// Commit is the source revision, set with ldflags -X like Version.
var Commit = ""

// String returns the version with a single 'v' prefix for display.
// Handles cases where Version already has 'v' prefix (from git tags)
// or has no prefix (dev builds, snapshots).
func String() string {
	v := strings.TrimPrefix(Version, "v")
	return "v" + v
}

// Full returns String with the short commit appended when known.
func Full() string {
	if Commit == "" {
		return String()
	}
	c := Commit
	if len(c) > 7 {
		c = c[:7]
	}
	return String() + " (" + c + ")"
}
