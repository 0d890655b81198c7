package install

import (
	"os"
	"time"
)

// Artifact is a downloaded release file living in a scoped temporary directory.
type Artifact struct {
	// URL is where the file was downloaded from.
	URL string
	// Name is the file name used for manifest lookups.
	Name string
	// Path is the local temporary location.
	Path string
	// Size is the downloaded size in bytes.
	Size int64
	// ExpectedDigest is the hex digest listed in the checksum manifest, if any.
	ExpectedDigest string
	// ObservedDigest is the hex digest computed from the downloaded bytes.
	ObservedDigest string
	// Downloader names the tool that produced the file.
	Downloader string
}

// BackupRecord describes a durable copy of a file a transaction is about to overwrite.
type BackupRecord struct {
	// Original is the path that gets overwritten.
	Original string `yaml:"original"`
	// Backup is the copy kept under the backup directory.
	Backup string `yaml:"backup"`
	// Timestamp is when the copy was taken.
	Timestamp time.Time `yaml:"timestamp"`
	// Mode is the permission set of the original file.
	Mode os.FileMode `yaml:"mode"`
	// Digest is the hex SHA-256 of the copied bytes.
	Digest string `yaml:"digest"`
}
