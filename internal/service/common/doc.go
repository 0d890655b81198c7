// Package common holds helpers shared by several services.
//
// It provides file checksums, durable and atomic file writes, directory
// creation that reports what it created, operator confirmation prompts and
// detection of the current system actor (hostname/username) for receipts.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
