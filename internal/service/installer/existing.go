package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/logger"
	"github.com/oshokin/mediamtx-installer/internal/repository/receipt"
	"github.com/oshokin/mediamtx-installer/internal/system"
)

// versionCommandTimeout bounds the "--version" call of an installed binary.
const versionCommandTimeout = 10 * time.Second

var (
	errInvalidVersionOutput = errors.New("invalid version output format")
	errNotRegular           = errors.New("not a regular file")
)

// findExisting returns what is known about a previous installation, or nil when
// neither a receipt nor a binary is present. A binary installed by other means
// yields a receipt holding only the detected version and paths.
func findExisting(
	ctx context.Context,
	runner system.Runner,
	receipts receipt.Repository,
	target *install.Target,
) (*install.Receipt, error) {
	rec, err := receipts.Load(ctx)

	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, receipt.ErrNotFound):
	default:
		logger.WarnKV(ctx, "Installation receipt is unreadable, inspecting the binary instead",
			"path", receipts.Path(), "error", err)
	}

	binaryPath := target.BinaryPath()

	info, err := os.Stat(binaryPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil //nolint:nilnil // No installation is not an error.
	}

	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", binaryPath, err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", binaryPath, errNotRegular)
	}

	return &install.Receipt{
		Version:    detectVersion(ctx, runner, binaryPath),
		BinaryPath: binaryPath,
		ConfigFile: target.ConfigFile,
		UnitName:   target.UnitName(),
		UnitPath:   target.UnitPath(),
	}, nil
}

// detectVersion asks the binary for its version. An empty result means unknown.
func detectVersion(ctx context.Context, runner system.Runner, binaryPath string) string {
	cmdCtx, cancel := context.WithTimeout(ctx, versionCommandTimeout)
	defer cancel()

	result, err := runner.Run(cmdCtx, binaryPath, "--version")
	if err != nil {
		logger.WarnKV(ctx, "Could not get installed version", "binary", binaryPath, "error", err)
		return ""
	}

	v, err := parseVersionFromOutput(result.Stdout)
	if err != nil {
		logger.WarnKV(ctx, "Could not parse installed version", "binary", binaryPath, "output", result.Stdout)
		return ""
	}

	return v
}

// parseVersionFromOutput extracts the first semantic version from "--version" output,
// e.g. "v1.12.2" or "mediamtx v1.12.2".
func parseVersionFromOutput(output string) (string, error) {
	for _, field := range strings.Fields(output) {
		field = strings.Trim(field, ",;()")
		if !strings.ContainsAny(field, "0123456789") {
			continue
		}

		if _, err := goversion.NewVersion(field); err == nil {
			return field, nil
		}
	}

	return "", errInvalidVersionOutput
}
