package installer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/repository/receipt"
	"github.com/oshokin/mediamtx-installer/internal/service/transaction"
	"github.com/oshokin/mediamtx-installer/internal/system"
	"github.com/oshokin/mediamtx-installer/internal/system/systemtest"
)

// TestParseVersionFromOutput accepts the common "--version" output shapes.
func TestParseVersionFromOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		want   string
	}{
		{name: "bare", output: "v1.12.2\n", want: "v1.12.2"},
		{name: "prefixed", output: "mediamtx v1.9.0", want: "v1.9.0"},
		{name: "without v", output: "version: 1.5.1, commit: abc", want: "1.5.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseVersionFromOutput(tt.output)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := parseVersionFromOutput("unknown flag --version")
	require.ErrorIs(t, err, errInvalidVersionOutput)
}

func existingTarget(t *testing.T) *install.Target {
	t.Helper()

	root := t.TempDir()

	return &install.Target{
		BinaryName:  "mediamtx",
		InstallDir:  filepath.Join(root, "bin"),
		ConfigFile:  filepath.Join(root, "etc", "mediamtx.yml"),
		UnitDir:     filepath.Join(root, "systemd"),
		StateDir:    filepath.Join(root, "state"),
		ServiceName: "mediamtx",
	}
}

// TestFindExistingNothingInstalled returns nil on a clean host.
func TestFindExistingNothingInstalled(t *testing.T) {
	t.Parallel()

	target := existingTarget(t)

	rec, err := findExisting(context.Background(), systemtest.NewRunner(),
		receipt.NewFileRepository(target.ReceiptPath()), target)
	require.NoError(t, err)
	require.Nil(t, rec)
}

// TestFindExistingPrefersReceipt returns the stored receipt without running the binary.
func TestFindExistingPrefersReceipt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	target := existingTarget(t)
	runner := systemtest.NewRunner()
	receipts := receipt.NewFileRepository(target.ReceiptPath())

	require.NoError(t, os.MkdirAll(target.StateDir, 0o755))
	require.NoError(t, receipts.Save(ctx, &install.Receipt{Version: "v1.11.0", Account: "mediamtx", AccountCreated: true}))

	rec, err := findExisting(ctx, runner, receipts, target)
	require.NoError(t, err)
	require.Equal(t, "v1.11.0", rec.Version)
	require.True(t, rec.AccountCreated)
	require.Empty(t, runner.Calls())
}

// TestFindExistingAsksTheBinary detects an installation made without this tool.
func TestFindExistingAsksTheBinary(t *testing.T) {
	t.Parallel()

	target := existingTarget(t)
	runner := systemtest.NewRunner()
	runner.Handle(target.BinaryPath()+" --version", func([]string) (*system.Result, error) {
		return &system.Result{Stdout: "v1.10.0\n"}, nil
	})

	require.NoError(t, os.MkdirAll(target.InstallDir, 0o755))
	require.NoError(t, os.WriteFile(target.BinaryPath(), []byte("old"), 0o755))

	rec, err := findExisting(context.Background(), runner, receipt.NewFileRepository(target.ReceiptPath()), target)
	require.NoError(t, err)
	require.Equal(t, "v1.10.0", rec.Version)
	require.Equal(t, target.BinaryPath(), rec.BinaryPath)
	require.False(t, rec.AccountCreated)
}

// TestRemovalActionsOrder stops the service before deleting files and the account last.
func TestRemovalActionsOrder(t *testing.T) {
	t.Parallel()

	actions := removalActions(&install.Receipt{
		BinaryPath:     "/usr/local/bin/mediamtx",
		ConfigFile:     "/etc/mediamtx/mediamtx.yml",
		UnitName:       "mediamtx.service",
		UnitPath:       "/etc/systemd/system/mediamtx.service",
		Account:        "mediamtx",
		AccountCreated: true,
	})

	require.Equal(t, []transaction.Action{
		transaction.StopService{Unit: "mediamtx.service"},
		transaction.DisableService{Unit: "mediamtx.service"},
		transaction.RemoveServiceUnit{Unit: "mediamtx.service", Path: "/etc/systemd/system/mediamtx.service"},
		transaction.RemovePath{Path: "/etc/mediamtx/mediamtx.yml"},
		transaction.RemovePath{Path: "/usr/local/bin/mediamtx"},
		transaction.DeleteServiceAccount{Name: "mediamtx"},
	}, actions)
}

// TestRemovalActionsKeepsForeignAccount never deletes an account this tool did not create.
func TestRemovalActionsKeepsForeignAccount(t *testing.T) {
	t.Parallel()

	actions := removalActions(&install.Receipt{BinaryPath: "/usr/local/bin/mediamtx", Account: "root"})

	require.Equal(t, []transaction.Action{transaction.RemovePath{Path: "/usr/local/bin/mediamtx"}}, actions)
}
