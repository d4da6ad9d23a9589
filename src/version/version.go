package version

import "fmt"

var buildName string
var buildVersion string

// BuildName gets the current build name. This is usually injected if built
// from git, or returns "unknown" otherwise.
func BuildName() string {
	if buildName == "" {
		return "unknown"
	}
	return buildName
}

// BuildVersion gets the current build version. This is usually injected if
// built from git, or returns "unknown" otherwise.
func BuildVersion() string {
	if buildVersion == "" {
		return "unknown"
	}
	return buildVersion
}

// UserAgent is sent with every HTTP request the launcher makes, so that IP
// echo services and bootstrap hosts can tell launcher traffic apart.
func UserAgent() string {
	return fmt.Sprintf("lokinet-launcher/%s (%s)", BuildVersion(), BuildName())
}
