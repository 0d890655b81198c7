// Package fetchertest builds release archives for tests.
package fetchertest

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"sort"
)

// Entry is an archive member.
type Entry struct {
	Name string
	Body []byte
	Mode int64
}

// TarGz returns a gzip-compressed tar archive holding entries in order.
func TarGz(entries ...Entry) ([]byte, error) {
	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		mode := e.Mode
		if mode == 0 {
			mode = 0o755
		}

		header := &tar.Header{
			Name:     e.Name,
			Mode:     mode,
			Size:     int64(len(e.Body)),
			Typeflag: tar.TypeReg,
		}

		if err := tw.WriteHeader(header); err != nil {
			return nil, err
		}

		if _, err := tw.Write(e.Body); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}

	if err := gz.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Zip returns a zip archive holding files sorted by name.
func Zip(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}

	sort.Strings(names)

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			return nil, err
		}

		if _, err = w.Write(files[name]); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
