package api

import "golang.org/x/mod/semver"

// SupportedAPIVersion is the newest backend API version this client
// was built against.
const SupportedAPIVersion = "2.1.0"

// CompatibleVersion reports whether the announced backend version is
// one this client can talk to: same major version, not newer than
// what we support.
func CompatibleVersion(got string) bool {
	g := "v" + got
	s := "v" + SupportedAPIVersion
	if !semver.IsValid(g) {
		return false
	}
	if semver.Major(g) != semver.Major(s) {
		return false
	}
	return semver.Compare(g, s) <= 0
}
