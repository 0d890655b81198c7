//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	// Register the SHA-256 implementation behind crypto.Hash.
	_ "crypto/sha256"
)

// DefaultChecksumFunction is used for artifact digests, backups and manifests.
const DefaultChecksumFunction crypto.Hash = crypto.SHA256

var errHashUnavailable = errors.New("hash function unavailable")

// FileChecksum streams the file at path through hash and returns the raw digest.
func FileChecksum(path string, hash crypto.Hash) ([]byte, error) {
	if !hash.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := hash.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// FileChecksumHex returns the lowercase hex digest of the file at path.
func FileChecksumHex(path string, hash crypto.Hash) (string, error) {
	sum, err := FileChecksum(path, hash)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(sum), nil
}
