//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestWriteFileAtomic replaces contents and mode without leaving temp files behind.
func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "mediamtx.yml")

	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))
	require.NoError(t, WriteFileAtomic(context.Background(), path, []byte("new"), 0o640))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "new", string(contents))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// TestEnsureDirReportsCreated returns only the directories that did not exist.
func TestEnsureDirReportsCreated(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	target := filepath.Join(root, "etc", "mediamtx")

	created, err := EnsureDir(target, DefaultDirMode)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(root, "etc"), target}, created)

	created, err = EnsureDir(target, DefaultDirMode)
	require.NoError(t, err)
	require.Empty(t, created)
}

// TestFileChecksumHex matches the well-known SHA-256 of "abc".
func TestFileChecksumHex(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "abc.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	sum, err := FileChecksumHex(path, DefaultChecksumFunction)
	require.NoError(t, err)
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
}

// TestAskYesNo accepts only explicit consent.
func TestAskYesNo(t *testing.T) {
	t.Parallel()

	for answer, want := range map[string]bool{"y\n": true, "YES\n": true, "\n": false, "nope\n": false, "": false} {
		var out strings.Builder

		got, err := askYesNo(context.Background(), strings.NewReader(answer), &out, "Proceed?")
		require.NoError(t, err)
		require.Equal(t, want, got, answer)
		require.Contains(t, out.String(), "Proceed? [y/N]")
	}
}
