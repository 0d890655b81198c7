// Package version carries the installer build metadata injected via ldflags.
// It feeds the version subcommand, the HTTP user agent and the install receipt.
package version
