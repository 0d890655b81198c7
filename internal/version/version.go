package version

import "fmt"

var (
	// Version is the installer release. Release builds override it via ldflags.
	Version = "0.0.0-dev"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// product names the installer in HTTP requests and receipts.
const product = "mediamtx-installer"

// Short returns only the installer version.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	return fmt.Sprintf("%s version: %s, commit: %s, built at: %s", product, Version, Commit, BuildTime)
}

// UserAgent identifies the installer to release mirrors.
func UserAgent() string {
	return product + "/" + Version
}
