package fetcher

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/service/common"
)

const (
	// MaxArchiveEntries bounds the number of entries scanned in an archive.
	MaxArchiveEntries = 4096
	// MaxBinarySize bounds the size of the extracted binary.
	MaxBinarySize = 512 << 20
)

var (
	errBinaryNotFound = errors.New("binary not found in archive")
	errTooManyEntries = errors.New("archive has too many entries")
	errBinaryTooLarge = errors.New("binary exceeds size limit")
	errUnsafePath     = errors.New("archive entry escapes destination")
)

// Extract pulls binaryName out of the archive at archivePath into destDir and
// returns the extracted path. Files that are neither tar.gz nor zip are treated
// as the binary itself. Any failure is an ExtractionError.
func Extract(archivePath, binaryName, destDir string) (string, error) {
	dst := filepath.Join(destDir, filepath.Base(binaryName))

	var err error

	switch lower := strings.ToLower(archivePath); {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		err = extractTarGz(archivePath, binaryName, destDir, dst)
	case strings.HasSuffix(lower, ".zip"):
		err = extractZip(archivePath, binaryName, destDir, dst)
	default:
		err = common.CopyFileDurable(archivePath, dst, common.DefaultBinaryMode)
	}

	if err != nil {
		_ = os.Remove(dst)
		return "", install.Wrap(install.KindExtraction, "extract "+filepath.Base(archivePath), err)
	}

	return dst, nil
}

func extractTarGz(src, binaryName, destDir, dst string) error {
	file, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}

	defer func() {
		_ = gz.Close()
	}()

	reader := tar.NewReader(gz)

	for entries := 0; ; entries++ {
		if entries >= MaxArchiveEntries {
			return errTooManyEntries
		}

		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: %w", binaryName, errBinaryNotFound)
		}

		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		if _, err = safeJoin(destDir, header.Name); err != nil {
			return err
		}

		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != binaryName {
			continue
		}

		if header.Size > MaxBinarySize {
			return errBinaryTooLarge
		}

		return writeBinary(reader, header.Size, dst)
	}
}

func extractZip(src, binaryName, destDir, dst string) error {
	archive, err := zip.OpenReader(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("open zip archive: %w", err)
	}

	defer func() {
		_ = archive.Close()
	}()

	if len(archive.File) > MaxArchiveEntries {
		return errTooManyEntries
	}

	for _, entry := range archive.File {
		if _, err = safeJoin(destDir, entry.Name); err != nil {
			return err
		}

		if !entry.Mode().IsRegular() || filepath.Base(entry.Name) != binaryName {
			continue
		}

		if entry.UncompressedSize64 > MaxBinarySize {
			return errBinaryTooLarge
		}

		rc, err := entry.Open()
		if err != nil {
			return fmt.Errorf("open zip entry: %w", err)
		}

		//nolint:gosec // Size is checked against MaxBinarySize above.
		err = writeBinary(rc, int64(entry.UncompressedSize64), dst)

		_ = rc.Close()

		return err
	}

	return fmt.Errorf("%s: %w", binaryName, errBinaryNotFound)
}

func writeBinary(r io.Reader, size int64, dst string) error {
	out, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, common.DefaultBinaryMode)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err = io.CopyN(out, r, size); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}

	if err = out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("sync %s: %w", dst, err)
	}

	return out.Close()
}

// safeJoin resolves name below root and rejects absolute or escaping entries.
func safeJoin(root, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." {
		return root, nil
	}

	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%q: %w", name, errUnsafePath)
	}

	joined := filepath.Join(root, clean)

	rel, err := filepath.Rel(root, joined)
	if err != nil {
		return "", fmt.Errorf("%q: %w", name, err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", name, errUnsafePath)
	}

	return joined, nil
}
