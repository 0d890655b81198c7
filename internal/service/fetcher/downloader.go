package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/oshokin/mediamtx-installer/internal/system"
	"github.com/oshokin/mediamtx-installer/internal/version"
)

var (
	// ErrNotFound marks an artifact the server reports as missing.
	ErrNotFound = errors.New("artifact not found")

	errBadHTTPStatus = errors.New("unexpected http status")
)

// Downloader retrieves a URL into a local file.
type Downloader interface {
	// Name identifies the downloader in logs.
	Name() string
	// Available reports whether the downloader can be used on this host.
	Available() bool
	// Download writes the body of rawURL to dst, replacing previous content.
	Download(ctx context.Context, rawURL, dst string) error
}

// HTTPDownloader is the in-process primary downloader.
type HTTPDownloader struct {
	client *http.Client
}

// NewHTTPDownloader creates the primary downloader. A nil client means http.DefaultClient.
func NewHTTPDownloader(client *http.Client) *HTTPDownloader {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPDownloader{client: client}
}

// Name implements Downloader.
func (d *HTTPDownloader) Name() string {
	return "http"
}

// Available implements Downloader.
func (d *HTTPDownloader) Available() bool {
	return d.client != nil
}

// Download implements Downloader.
func (d *HTTPDownloader) Download(ctx context.Context, rawURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", version.UserAgent())

	response, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	switch {
	case response.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s, %s: %w", rawURL, response.Status, ErrNotFound)
	case response.StatusCode != http.StatusOK:
		return fmt.Errorf("%s, %s: %w", rawURL, response.Status, errBadHTTPStatus)
	}

	out, err := os.Create(filepath.Clean(dst))
	if err != nil {
		return fmt.Errorf("create destination file %q: %w", dst, err)
	}

	if _, err = io.Copy(out, response.Body); err != nil {
		_ = out.Close()
		return fmt.Errorf("write response body to file: %w", err)
	}

	return out.Close()
}

// CommandDownloader delegates to an external download tool.
type CommandDownloader struct {
	runner system.Runner
	tool   string
	args   func(rawURL, dst string) []string
}

// NewCurlDownloader creates a downloader backed by curl.
func NewCurlDownloader(runner system.Runner) *CommandDownloader {
	return &CommandDownloader{
		runner: runner,
		tool:   "curl",
		args: func(rawURL, dst string) []string {
			return []string{"--fail", "--location", "--silent", "--show-error", "--user-agent", version.UserAgent(), "--output", dst, rawURL}
		},
	}
}

// NewWgetDownloader creates a downloader backed by wget.
func NewWgetDownloader(runner system.Runner) *CommandDownloader {
	return &CommandDownloader{
		runner: runner,
		tool:   "wget",
		args: func(rawURL, dst string) []string {
			return []string{"--quiet", "--user-agent=" + version.UserAgent(), "--output-document=" + dst, rawURL}
		},
	}
}

// Name implements Downloader.
func (d *CommandDownloader) Name() string {
	return d.tool
}

// Available implements Downloader.
func (d *CommandDownloader) Available() bool {
	_, err := d.runner.LookPath(d.tool)
	return err == nil
}

// Download implements Downloader.
func (d *CommandDownloader) Download(ctx context.Context, rawURL, dst string) error {
	if _, err := d.runner.Run(ctx, d.tool, d.args(rawURL, dst)...); err != nil {
		return fmt.Errorf("%s download: %w", d.tool, err)
	}

	return nil
}
