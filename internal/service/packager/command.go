package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oshokin/mediamtx-installer/internal/logger"
	"github.com/oshokin/mediamtx-installer/internal/service/common"
)

// DefaultManifestFilename matches the name of the upstream checksum manifest.
const DefaultManifestFilename = "checksums.sha256"

// manifestFileMode is the permission set of the written manifest.
const manifestFileMode os.FileMode = 0o644

// Options contains inputs for the packager entry point.
type Options struct {
	// Files are the release artifacts to list in the manifest.
	Files []string
	// Output is the manifest path (defaults to checksums.sha256 next to the first file).
	Output string
	// MirrorURL is where the artifacts will be published, used only for the printed guidance.
	MirrorURL string
}

// packager builds a checksum manifest for a local artifact mirror.
// Callers go through Run, which validates the options first.
type packager struct {
	// opts holds the validated options.
	opts *Options
	// digests maps artifact base names to hex SHA-256 digests.
	digests map[string]string
}

var (
	errNoFiles       = errors.New("no artifacts given")
	errDuplicateName = errors.New("two artifacts share a file name")
	errNotRegular    = errors.New("not a regular file")
)

// Run executes the packaging workflow.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "checksum")

	if len(opts.Files) == 0 {
		return errNoFiles
	}

	if opts.Output == "" {
		opts.Output = filepath.Join(filepath.Dir(opts.Files[0]), DefaultManifestFilename)
	}

	pkg := &packager{
		opts:    opts,
		digests: make(map[string]string, len(opts.Files)),
	}

	if err := pkg.Run(ctx); err != nil {
		return fmt.Errorf("packager failed: %w", err)
	}

	logger.Info(ctx, "Checksum manifest created successfully")

	return nil
}

// Run computes the digests and writes the manifest to disk.
func (p *packager) Run(ctx context.Context) error {
	logger.Info(ctx, "Computing artifact checksums")

	if err := p.fillDigests(); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Saving checksum manifest", "path", p.opts.Output)

	if err := common.WriteFileAtomic(ctx, p.opts.Output, p.manifest(), manifestFileMode); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	p.printNextSteps(ctx)

	return nil
}

// fillDigests hashes every artifact.
func (p *packager) fillDigests() error {
	for _, fileName := range p.opts.Files {
		info, err := os.Stat(fileName)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", fileName, os.ErrNotExist)
		} else if err != nil {
			return fmt.Errorf("stat %s: %w", fileName, err)
		}

		if !info.Mode().IsRegular() {
			return fmt.Errorf("%s: %w", fileName, errNotRegular)
		}

		name := filepath.Base(fileName)
		if _, ok := p.digests[name]; ok {
			return fmt.Errorf("%s: %w", name, errDuplicateName)
		}

		digest, err := common.FileChecksumHex(fileName, common.DefaultChecksumFunction)
		if err != nil {
			return err
		}

		p.digests[name] = digest
	}

	return nil
}

// manifest renders the digests in sha256sum format sorted by name.
func (p *packager) manifest() []byte {
	var builder strings.Builder

	for _, name := range p.names() {
		builder.WriteString(p.digests[name])
		builder.WriteString("  ")
		builder.WriteString(name)
		builder.WriteString("\n")
	}

	return []byte(builder.String())
}

func (p *packager) names() []string {
	names := make([]string, 0, len(p.digests))
	for name := range p.digests {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// printNextSteps logs human-readable guidance for publishing the mirror.
func (p *packager) printNextSteps(ctx context.Context) {
	files := append(p.names(), filepath.Base(p.opts.Output))

	var builder strings.Builder

	builder.WriteString("You should upload the following files to the mirror")

	if p.opts.MirrorURL != "" {
		builder.WriteString(" ")
		builder.WriteString(p.opts.MirrorURL)
	}

	builder.WriteString(":\n")
	builder.WriteString(strings.Join(files, ",\n"))
	builder.WriteString("\n\nThen point artifact_url and checksum_url in the installer settings at the mirror.")

	logger.Info(ctx, builder.String())
}
