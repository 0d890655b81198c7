package installer_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/repository/receipt"
	"github.com/oshokin/mediamtx-installer/internal/service/emitter"
	"github.com/oshokin/mediamtx-installer/internal/service/installer"
	"github.com/oshokin/mediamtx-installer/internal/service/installer/installertest"
)

// TestRunFreshHost installs the binary, configuration, unit and receipt and starts the service.
func TestRunFreshHost(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := installertest.NewHost(t)

	var out bytes.Buffer

	require.NoError(t, installer.Run(ctx, h.Options(&out)))

	binary, err := os.ReadFile(h.BinaryPath())
	require.NoError(t, err)
	require.Equal(t, installertest.Binary, binary)

	info, err := os.Stat(h.BinaryPath())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	config, err := os.ReadFile(h.ConfigFile())
	require.NoError(t, err)

	settings, err := emitter.Parse(config)
	require.NoError(t, err)
	require.Equal(t, ":8554", settings.RTSPAddress)
	require.Equal(t, ":1935", settings.RTMPAddress)
	require.Equal(t, ":8888", settings.HLSAddress)

	unit, err := os.ReadFile(h.UnitPath())
	require.NoError(t, err)
	require.Contains(t, string(unit), "User="+installertest.Account)
	require.Contains(t, string(unit), "ExecStart="+h.BinaryPath())

	require.True(t, h.Systemctl.Enabled(installertest.Unit))
	require.True(t, h.Systemctl.Active(installertest.Unit))

	rec, err := receipt.NewFileRepository(h.ReceiptPath()).Load(ctx)
	require.NoError(t, err)
	require.Equal(t, installertest.Version, rec.Version)
	require.Equal(t, "amd64", rec.Arch)
	require.True(t, rec.Verified)
	require.True(t, rec.AccountCreated)
	require.NotEmpty(t, rec.TransactionID)

	logs, err := filepath.Glob(filepath.Join(h.LogDir(), "install-*.log"))
	require.NoError(t, err)
	require.Len(t, logs, 1)

	completions := 0

	for _, line := range strings.Split(string(mustRead(t, logs[0])), "\n") {
		if strings.Contains(line, "Transaction state changed") && strings.Contains(line, `"to": "Complete"`) {
			completions++
		}
	}

	require.Equal(t, 1, completions)

	require.NoFileExists(t, filepath.Join(h.StateDir(), "install.lock"))
	require.Contains(t, out.String(), "SUCCESS")
	require.Contains(t, out.String(), "verified (sha256 ")
}

// TestRunRequiresRoot refuses an unprivileged real run before touching the host.
func TestRunRequiresRoot(t *testing.T) {
	t.Parallel()

	h := installertest.NewHost(t)
	h.Euid = 1000

	err := installer.Run(context.Background(), h.Options(nil))
	require.Error(t, err)
	require.Equal(t, install.KindPermission, install.KindOf(err))
	require.Equal(t, install.ExitPermission, install.ExitCode(err))
	require.NoDirExists(t, h.LogDir())
	require.Zero(t, h.Requests())
}

// TestRunUnsupportedArchitecture stops with exit code 2 before any download.
func TestRunUnsupportedArchitecture(t *testing.T) {
	t.Parallel()

	h := installertest.NewHost(t)
	opts := h.Options(nil)
	opts.Overrides.Arch = "mips"

	err := installer.Run(context.Background(), opts)
	require.Equal(t, install.ExitUnsupportedArch, install.ExitCode(err))
	require.NoDirExists(t, h.LogDir())
	require.Zero(t, h.Requests())
}

// TestRunInvalidSettings reports a configuration error.
func TestRunInvalidSettings(t *testing.T) {
	t.Parallel()

	h := installertest.NewHost(t)
	require.NoError(t, os.WriteFile(h.SettingsPath, []byte("install_dir: relative/bin\n"), 0o600))

	err := installer.Run(context.Background(), h.Options(nil))
	require.Equal(t, install.ExitConfig, install.ExitCode(err))
}

// TestRunDryRunChangesNothing plans every mutating step without downloading or writing.
func TestRunDryRunChangesNothing(t *testing.T) {
	t.Parallel()

	h := installertest.NewHost(t)
	h.Euid = 1000

	var out bytes.Buffer

	opts := h.Options(&out)
	opts.Overrides.DryRun = true

	require.NoError(t, installer.Run(context.Background(), opts))

	require.Zero(t, h.Requests())
	require.NoDirExists(t, filepath.Dir(h.BinaryPath()))
	require.NoDirExists(t, filepath.Dir(h.ConfigFile()))
	require.NoDirExists(t, h.LogDir())
	require.NoDirExists(t, h.StateDir())
	require.NoFileExists(t, h.UnitPath())
	require.False(t, h.Systemctl.Enabled(installertest.Unit))

	summary := out.String()
	require.Contains(t, summary, "DRY RUN")
	require.Contains(t, summary, "fetch-artifact [would] download ")
	require.Contains(t, summary, "write-config [would] ")
	require.NotContains(t, summary, "Log file:")
}

// TestRunUnverifiedArtifact installs with reduced assurance when no manifest is published.
func TestRunUnverifiedArtifact(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := installertest.NewHost(t)
	h.SetManifest(nil)

	var out bytes.Buffer

	require.NoError(t, installer.Run(ctx, h.Options(&out)))
	require.FileExists(t, h.BinaryPath())
	require.Contains(t, out.String(), "REDUCED ASSURANCE")

	rec, err := receipt.NewFileRepository(h.ReceiptPath()).Load(ctx)
	require.NoError(t, err)
	require.False(t, rec.Verified)
}

// TestRunRequireChecksum fails with exit code 4 when the artifact cannot be verified.
func TestRunRequireChecksum(t *testing.T) {
	t.Parallel()

	h := installertest.NewHost(t)
	h.SetManifest(nil)

	opts := h.Options(nil)
	opts.Overrides.RequireChecksum = true

	err := installer.Run(context.Background(), opts)
	require.Equal(t, install.KindUnverified, install.KindOf(err))
	require.Equal(t, install.ExitVerification, install.ExitCode(err))
	require.NoFileExists(t, h.BinaryPath())
}

// TestRunInsufficientSpace fails before downloading.
func TestRunInsufficientSpace(t *testing.T) {
	t.Parallel()

	h := installertest.NewHost(t)
	require.NoError(t, os.WriteFile(h.SettingsPath, append(mustRead(t, h.SettingsPath), []byte("min_free_space: 1099511627777\n")...), 0o600))

	err := installer.Run(context.Background(), h.Options(nil))
	require.Equal(t, install.KindInstall, install.KindOf(err))
	require.Zero(t, h.Requests())
}

// TestRunWritesMetrics exports the run outcome in the Prometheus text format.
func TestRunWritesMetrics(t *testing.T) {
	t.Parallel()

	h := installertest.NewHost(t)
	opts := h.Options(nil)
	opts.MetricsFile = filepath.Join(t.TempDir(), "mediamtx_installer.prom")

	require.NoError(t, installer.Run(context.Background(), opts))

	metrics := string(mustRead(t, opts.MetricsFile))
	require.Contains(t, metrics, "mediamtx_installer_last_run_success 1")
	require.Contains(t, metrics, "mediamtx_installer_last_run_exit_code 0")
	require.Contains(t, metrics, "mediamtx_installer_artifact_verified 1")
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return data
}
