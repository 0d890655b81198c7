package installer_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/service/common"
	"github.com/oshokin/mediamtx-installer/internal/service/installer"
	"github.com/oshokin/mediamtx-installer/internal/service/installer/installertest"
)

func installed(t *testing.T) *installertest.Host {
	t.Helper()

	h := installertest.NewHost(t)
	require.NoError(t, installer.Run(context.Background(), h.Options(nil)))

	return h
}

// TestUninstallRemovesEverything deletes what the receipt lists and keeps a configuration copy.
func TestUninstallRemovesEverything(t *testing.T) {
	t.Parallel()

	h := installed(t)
	h.Prompter = nil

	opts := h.Options(nil)
	opts.AssumeYes = true

	require.NoError(t, installer.Uninstall(context.Background(), opts))

	require.NoFileExists(t, h.BinaryPath())
	require.NoFileExists(t, h.ConfigFile())
	require.NoFileExists(t, h.UnitPath())
	require.NoFileExists(t, h.ReceiptPath())
	require.False(t, h.Systemctl.Enabled(installertest.Unit))
	require.False(t, h.Systemctl.Active(installertest.Unit))

	exists, err := h.Accounts.Exists(installertest.Account)
	require.NoError(t, err)
	require.False(t, exists)

	saved, err := filepath.Glob(filepath.Join(h.BackupDir(), "uninstall-*", "mediamtx.yml"))
	require.NoError(t, err)
	require.Len(t, saved, 1)
}

// TestUninstallDeclined keeps the installation when the operator says no.
func TestUninstallDeclined(t *testing.T) {
	t.Parallel()

	h := installed(t)
	h.Prompter = common.StaticPrompter(false)

	err := installer.Uninstall(context.Background(), h.Options(nil))
	require.Equal(t, install.KindDeclined, install.KindOf(err))
	require.FileExists(t, h.BinaryPath())
	require.FileExists(t, h.ReceiptPath())
	require.True(t, h.Systemctl.Active(installertest.Unit))
}

// TestUninstallDryRun only lists the removals.
func TestUninstallDryRun(t *testing.T) {
	t.Parallel()

	h := installed(t)

	opts := h.Options(nil)
	opts.Overrides.DryRun = true

	require.NoError(t, installer.Uninstall(context.Background(), opts))
	require.FileExists(t, h.BinaryPath())
	require.FileExists(t, h.UnitPath())
	require.NoDirExists(t, h.BackupDir())
}

// TestUninstallWithoutReceipt has nothing to do.
func TestUninstallWithoutReceipt(t *testing.T) {
	t.Parallel()

	h := installertest.NewHost(t)

	require.NoError(t, installer.Uninstall(context.Background(), h.Options(nil)))
	require.NoDirExists(t, h.StateDir())
}
