package verifier

import (
	"context"
	"errors"
	"strings"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/logger"
)

// Status is the outcome of a verification.
type Status string

// Verification outcomes.
const (
	// StatusVerified means the observed digest matches the manifest entry.
	StatusVerified Status = "verified"
	// StatusUnverified means no manifest or no matching entry was available.
	StatusUnverified Status = "unverified"
	// StatusMismatch means the digests differ.
	StatusMismatch Status = "mismatch"
)

// sha256HexLen is the length of a hex-encoded SHA-256 digest.
const sha256HexLen = 64

var (
	errNoManifest   = errors.New("no checksum manifest")
	errNoEntry      = errors.New("no manifest entry for artifact")
	errDigestDiffer = errors.New("digest mismatch")
)

// Result describes a verification.
type Result struct {
	// Status is the outcome.
	Status Status
	// Expected is the manifest digest, empty when none was found.
	Expected string
	// Observed is the digest of the downloaded file.
	Observed string
	// Reason explains an unverified outcome.
	Reason string
}

// Verified reports whether the artifact was positively confirmed.
func (r *Result) Verified() bool {
	return r != nil && r.Status == StatusVerified
}

// Verify compares the artifact's observed digest with its manifest entry and
// stores the expected digest on the artifact. A nil manifest means none was obtained.
// A mismatch is a ChecksumMismatch error. A missing entry is an unverified result,
// which becomes an UnverifiedArtifact error when requireChecksum is set.
func Verify(ctx context.Context, artifact *install.Artifact, manifest []byte, requireChecksum bool) (*Result, error) {
	result := &Result{Observed: strings.ToLower(artifact.ObservedDigest)}

	expected, err := Lookup(manifest, artifact.Name)
	if err != nil {
		result.Status = StatusUnverified
		result.Reason = err.Error()

		if requireChecksum {
			return result, install.Wrap(install.KindUnverified, "verify "+artifact.Name, err)
		}

		logger.WarnKV(ctx, "Artifact could not be verified, continuing with reduced assurance",
			"artifact", artifact.Name, "reason", result.Reason)

		return result, nil
	}

	artifact.ExpectedDigest = expected
	result.Expected = expected

	if !strings.EqualFold(expected, result.Observed) {
		result.Status = StatusMismatch

		logger.ErrorKV(ctx, "Checksum mismatch",
			"artifact", artifact.Name, "expected", expected, "observed", result.Observed)

		return result, install.Wrap(install.KindChecksum, "verify "+artifact.Name, errDigestDiffer)
	}

	result.Status = StatusVerified

	logger.InfoKV(ctx, "Artifact verified", "artifact", artifact.Name, "sha256", expected)

	return result, nil
}

// Lookup returns the lowercase digest listed for name. Lines follow the
// sha256sum format "<hex>  <name>" or "<hex> *<name>"; blank lines and
// comments are skipped. A manifest holding only a digest applies to any name.
func Lookup(manifest []byte, name string) (string, error) {
	text := strings.TrimSpace(string(manifest))
	if text == "" {
		return "", errNoManifest
	}

	if isHexDigest(text) {
		return strings.ToLower(text), nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sep := strings.IndexAny(line, " \t")
		if sep < 0 || !isHexDigest(line[:sep]) {
			continue
		}

		digest, rest := line[:sep], line[sep:]

		// The name is the rest of the line, after the separator and the optional binary marker.
		candidate := strings.TrimPrefix(strings.TrimLeft(rest, " \t"), "*")
		if candidate == name {
			return strings.ToLower(digest), nil
		}
	}

	return "", errNoEntry
}

func isHexDigest(value string) bool {
	if len(value) != sha256HexLen {
		return false
	}

	for _, ch := range value {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') && (ch < 'A' || ch > 'F') {
			return false
		}
	}

	return true
}
