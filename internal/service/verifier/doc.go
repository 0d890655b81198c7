// Package verifier checks a downloaded artifact against its SHA-256 checksum manifest.
package verifier
