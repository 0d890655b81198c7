package reporter

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/service/transaction"
	"github.com/oshokin/mediamtx-installer/internal/service/verifier"
)

var errBroken = errors.New("broken")

func outcome() *Outcome {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	return &Outcome{
		Target: &install.Target{
			Version:     "v1.12.2",
			Arch:        "amd64",
			OS:          "linux",
			BinaryName:  "mediamtx",
			InstallDir:  "/usr/local/bin",
			ConfigFile:  "/etc/mediamtx/mediamtx.yml",
			ServiceName: "mediamtx",
			LogFile:     "/var/log/mediamtx/install-20260301-100000.log",
		},
		Journal: transaction.Journal{
			ID:       "tx-1",
			Started:  started,
			Finished: started.Add(3 * time.Second),
			Steps: []transaction.StepEntry{
				{Name: "install-binary", Actions: []string{"remove /usr/local/bin/mediamtx"}},
				{Name: "write-config"},
			},
		},
		Verification: &verifier.Result{Status: verifier.StatusVerified, Expected: "abc"},
	}
}

// TestSummarySuccess lists the steps, integrity and log file.
func TestSummarySuccess(t *testing.T) {
	t.Parallel()

	s := Summary(outcome())

	require.Contains(t, s, "SUCCESS")
	require.Contains(t, s, "verified (sha256 abc)")
	require.Contains(t, s, "install-binary [changed, undo: remove /usr/local/bin/mediamtx]")
	require.Contains(t, s, "/var/log/mediamtx/install-20260301-100000.log")
	require.NotContains(t, s, "Rollback")
}

// TestSummaryReducedAssurance never presents an unverified install as a plain success.
func TestSummaryReducedAssurance(t *testing.T) {
	t.Parallel()

	o := outcome()
	o.Verification = &verifier.Result{Status: verifier.StatusUnverified, Reason: "no checksum manifest"}

	require.Contains(t, Summary(o), "REDUCED ASSURANCE: unverified (no checksum manifest)")
}

// TestSummaryFailure reports the kind, exit code and rollback grade.
func TestSummaryFailure(t *testing.T) {
	t.Parallel()

	o := outcome()
	o.Err = install.Wrap(install.KindChecksum, "verify", errBroken)
	o.Journal.Rollback = []transaction.RollbackEntry{
		{Action: "remove /tmp/x"},
		{Action: "delete service account mediamtx", Err: "userdel failed"},
	}

	s := Summary(o)
	require.Contains(t, s, "FAILED (ChecksumMismatch, exit code 4)")
	require.Contains(t, s, "Rollback:     PARTIAL")
	require.Contains(t, s, "! delete service account mediamtx: userdel failed")
}

// TestMetricsWriteFile exports the run in the text format.
func TestMetricsWriteFile(t *testing.T) {
	t.Parallel()

	o := outcome()
	o.Err = install.Wrap(install.KindDownload, "fetch", errBroken)
	o.Journal.Rollback = []transaction.RollbackEntry{{Action: "remove /tmp/x"}}

	m := NewMetrics()
	m.Observe(o, time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "installer.prom")
	require.NoError(t, m.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	text := string(data)
	require.Contains(t, text, "mediamtx_installer_last_run_success 0")
	require.Contains(t, text, "mediamtx_installer_last_run_exit_code 3")
	require.Contains(t, text, `mediamtx_installer_last_run_rollback_actions{result="ok"} 1`)
	require.Contains(t, text, `mediamtx_installer_last_run_steps{status="ok"} 2`)
	require.Contains(t, text, `mediamtx_installer_installed_info{arch="amd64",version="v1.12.2"} 1`)
	require.Contains(t, text, "mediamtx_installer_last_run_duration_seconds 3")
}
