// Package packager prepares the checksum manifest for a local artifact mirror.
//
// It computes SHA-256 digests for release archives and writes them in the
// sha256sum layout the installer verifies against, so air-gapped hosts can
// install from a mirror with the same integrity guarantees as upstream.
package packager
