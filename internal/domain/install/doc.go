// Package install contains the core domain types of an installation run.
//
// It defines the immutable Target every component reads, the downloaded
// Artifact, BackupRecord for files overwritten by a transaction, the State
// machine the transaction engine walks through, and the error taxonomy that
// maps failures to process exit codes.
package install
