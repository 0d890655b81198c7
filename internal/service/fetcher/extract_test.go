package fetcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/service/fetcher/fetchertest"
)

func writeArchive(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

// TestExtractTarGz finds the binary among other entries.
func TestExtractTarGz(t *testing.T) {
	t.Parallel()

	data, err := fetchertest.TarGz(
		fetchertest.Entry{Name: "LICENSE", Body: []byte("MIT")},
		fetchertest.Entry{Name: "mediamtx.yml", Body: []byte("logLevel: info")},
		fetchertest.Entry{Name: "mediamtx", Body: []byte("#!/bin/sh\n")},
	)
	require.NoError(t, err)

	dest := t.TempDir()

	path, err := Extract(writeArchive(t, "release.tar.gz", data), "mediamtx", dest)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dest, "mediamtx"), path)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "#!/bin/sh\n", string(contents))
}

// TestExtractZip handles zip releases.
func TestExtractZip(t *testing.T) {
	t.Parallel()

	data, err := fetchertest.Zip(map[string][]byte{"dir/mediamtx": []byte("bin")})
	require.NoError(t, err)

	path, err := Extract(writeArchive(t, "release.zip", data), "mediamtx", t.TempDir())
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "bin", string(contents))
}

// TestExtractRawBinary copies files that are not archives.
func TestExtractRawBinary(t *testing.T) {
	t.Parallel()

	path, err := Extract(writeArchive(t, "mediamtx_linux_amd64", []byte("raw")), "mediamtx", t.TempDir())
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(3), info.Size())
}

// TestExtractFailures covers the ExtractionError cases.
func TestExtractFailures(t *testing.T) {
	t.Parallel()

	missing, err := fetchertest.TarGz(fetchertest.Entry{Name: "README.md", Body: []byte("x")})
	require.NoError(t, err)

	traversal, err := fetchertest.TarGz(fetchertest.Entry{Name: "../../etc/mediamtx", Body: []byte("x")})
	require.NoError(t, err)

	tests := []struct {
		name    string
		archive string
		data    []byte
		want    error
	}{
		{name: "binary missing", archive: "a.tar.gz", data: missing, want: errBinaryNotFound},
		{name: "path traversal", archive: "b.tar.gz", data: traversal, want: errUnsafePath},
		{name: "corrupt gzip", archive: "c.tgz", data: []byte("not gzip")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dest := t.TempDir()

			_, err := Extract(writeArchive(t, tt.archive, tt.data), "mediamtx", dest)
			require.ErrorIs(t, err, &install.Error{Kind: install.KindExtraction})

			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
			}

			require.NoFileExists(t, filepath.Join(dest, "mediamtx"))
		})
	}
}

// TestSafeJoin rejects absolute and escaping names.
func TestSafeJoin(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	joined, err := safeJoin(root, "a/b")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "a", "b"), joined)

	_, err = safeJoin(root, "/etc/passwd")
	require.ErrorIs(t, err, errUnsafePath)

	_, err = safeJoin(root, "a/../../x")
	require.ErrorIs(t, err, errUnsafePath)
}
