//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	// DefaultDirMode is used for directories the installer creates.
	DefaultDirMode os.FileMode = 0o755
	// DefaultBinaryMode is the installed executable mode.
	DefaultBinaryMode os.FileMode = 0o755
)

// WriteFileAtomic writes data to a temporary file next to path, syncs it and
// renames it over path, so readers never observe a partial file.
func WriteFileAtomic(ctx context.Context, path string, data []byte, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	dir, name := filepath.Split(filepath.Clean(path))

	tempFile, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}

	tempFileName := tempFile.Name()

	defer func() {
		if _, statErr := os.Stat(tempFileName); statErr == nil {
			_ = os.Remove(tempFileName)
		}
	}()

	if _, err = tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write: %w", err)
	}

	if err = tempFile.Chmod(mode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod: %w", err)
	}

	if err = tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync: %w", err)
	}

	if err = tempFile.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tempFileName, err)
	}

	if err = os.Rename(tempFileName, path); err != nil {
		return fmt.Errorf("move %s to %s: %w", tempFileName, path, err)
	}

	return SyncDir(dir)
}

// CopyFileDurable copies src to dst with the given mode and fsyncs the result
// and its directory before returning.
func CopyFileDurable(src, dst string, mode os.FileMode) (err error) {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}

	if err = out.Chmod(mode); err != nil {
		return err
	}

	if err = out.Sync(); err != nil {
		return err
	}

	return SyncDir(filepath.Dir(dst))
}

// SyncDir flushes directory metadata so renames and creations survive a crash.
func SyncDir(dir string) error {
	d, err := os.Open(filepath.Clean(dir))
	if err != nil {
		return err
	}

	defer func() {
		_ = d.Close()
	}()

	// Some filesystems do not support fsync on directories.
	_ = d.Sync()

	return nil
}

// MissingDirs returns the directories EnsureDir would create for path,
// outermost first.
func MissingDirs(path string) ([]string, error) {
	var missing []string

	for dir := filepath.Clean(path); ; dir = filepath.Dir(dir) {
		_, err := os.Stat(dir)
		if err == nil {
			break
		}

		if !os.IsNotExist(err) {
			return nil, err
		}

		missing = append([]string{dir}, missing...)

		if parent := filepath.Dir(dir); parent == dir {
			break
		}
	}

	return missing, nil
}

// EnsureDir creates path and its missing parents and returns the directories
// it created, outermost first.
func EnsureDir(path string, mode os.FileMode) ([]string, error) {
	missing, err := MissingDirs(path)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}

	created := make([]string, 0, len(missing))

	for _, dir := range missing {
		err = os.Mkdir(dir, mode)
		if os.IsExist(err) {
			continue
		}

		if err != nil {
			return created, fmt.Errorf("create %s: %w", dir, err)
		}

		created = append(created, dir)
	}

	return created, nil
}
