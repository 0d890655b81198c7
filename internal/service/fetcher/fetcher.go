package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"

	"github.com/oshokin/mediamtx-installer/internal/config"
	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/logger"
	"github.com/oshokin/mediamtx-installer/internal/service/common"
)

// MaxManifestSize caps the checksum manifest read into memory.
const MaxManifestSize = 1 << 20

var (
	errNoDownloader  = errors.New("no downloader available")
	errEmptyDownload = errors.New("downloaded file is empty")
	errManifestSize  = errors.New("checksum manifest exceeds size limit")
	errNoFileName    = errors.New("missing file name")
)

// Fetcher downloads release files into a workspace, trying each available
// downloader in order with a bounded constant-delay retry policy.
type Fetcher struct {
	workspace   *Workspace
	policy      config.Download
	downloaders []Downloader
}

// New creates a Fetcher. Downloaders are tried in the given order.
func New(workspace *Workspace, policy config.Download, downloaders ...Downloader) *Fetcher {
	if policy.Attempts <= 0 {
		policy.Attempts = config.DefaultDownloadAttempts
	}

	if policy.Timeout <= 0 {
		policy.Timeout = config.DefaultDownloadTimeout
	}

	return &Fetcher{
		workspace:   workspace,
		policy:      policy,
		downloaders: downloaders,
	}
}

// Fetch downloads rawURL into the workspace and returns the artifact with its digest computed.
// Exhausting every downloader yields a DownloadError; cancellation yields Interrupted.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*install.Artifact, error) {
	name, err := fileName(rawURL)
	if err != nil {
		return nil, install.Wrap(install.KindDownload, "parse artifact url", err)
	}

	dst := f.workspace.Path(name)

	used, err := f.download(ctx, rawURL, dst)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(dst)
	if err != nil {
		return nil, install.Wrap(install.KindDownload, "stat artifact", err)
	}

	digest, err := common.FileChecksumHex(dst, common.DefaultChecksumFunction)
	if err != nil {
		return nil, install.Wrap(install.KindDownload, "checksum artifact", err)
	}

	logger.InfoKV(ctx, "Artifact downloaded",
		"url", rawURL, "size", info.Size(), "downloader", used, "sha256", digest)

	return &install.Artifact{
		URL:            rawURL,
		Name:           name,
		Path:           dst,
		Size:           info.Size(),
		ObservedDigest: digest,
		Downloader:     used,
	}, nil
}

// FetchManifest downloads the checksum manifest and returns its content.
// Callers treat any error as a missing manifest.
func (f *Fetcher) FetchManifest(ctx context.Context, rawURL string) ([]byte, error) {
	name, err := fileName(rawURL)
	if err != nil {
		return nil, install.Wrap(install.KindDownload, "parse manifest url", err)
	}

	dst := f.workspace.Path("manifest-" + name)

	if _, err = f.download(ctx, rawURL, dst); err != nil {
		return nil, err
	}

	file, err := os.Open(dst)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(file, MaxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	if len(data) > MaxManifestSize {
		return nil, errManifestSize
	}

	return data, nil
}

// download runs the downloader chain and returns the name of the one that succeeded.
func (f *Fetcher) download(ctx context.Context, rawURL, dst string) (string, error) {
	var result *multierror.Error

	for _, d := range f.downloaders {
		if !d.Available() {
			logger.DebugKV(ctx, "Downloader is not available", "downloader", d.Name())
			continue
		}

		err := f.retry(ctx, d, rawURL, dst)
		if err == nil {
			return d.Name(), nil
		}

		_ = os.Remove(dst)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", install.Wrap(install.KindInterrupted, "download "+rawURL, ctxErr)
		}

		logger.WarnKV(ctx, "Downloader failed", "downloader", d.Name(), "url", rawURL, "error", err)
		result = multierror.Append(result, fmt.Errorf("%s: %w", d.Name(), err))
	}

	if result == nil {
		return "", install.Wrap(install.KindDownload, "download "+rawURL, errNoDownloader)
	}

	return "", install.Wrap(install.KindDownload, "download "+rawURL, result.ErrorOrNil())
}

func (f *Fetcher) retry(ctx context.Context, d Downloader, rawURL, dst string) error {
	attempt := 0

	operation := func() error {
		attempt++

		attemptCtx, cancel := context.WithTimeout(ctx, f.policy.Timeout)
		defer cancel()

		err := d.Download(attemptCtx, rawURL, dst)
		if errors.Is(err, ErrNotFound) {
			return backoff.Permanent(err)
		}

		if err != nil {
			return err
		}

		info, err := os.Stat(dst)
		if err != nil {
			return fmt.Errorf("stat download: %w", err)
		}

		if info.Size() == 0 {
			return errEmptyDownload
		}

		return nil
	}

	//nolint:gosec // Attempts is validated to be positive.
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(f.policy.Delay), uint64(f.policy.Attempts-1))

	notify := func(err error, next time.Duration) {
		logger.WarnKV(ctx, "Download attempt failed, retrying",
			"downloader", d.Name(), "attempt", attempt, "of", f.policy.Attempts, "retry_in", next, "error", err)
	}

	return backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
}

func fileName(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("url %q has no file name: %w", rawURL, errNoFileName)
	}

	return name, nil
}
