// Package installertest simulates a host for end-to-end installer runs: a
// release server, a fake systemd and account database, and a temp filesystem root.
package installertest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"sync"
	"testing"
	"time"

	ps "github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/mediamtx-installer/internal/config"
	"github.com/oshokin/mediamtx-installer/internal/service/common"
	"github.com/oshokin/mediamtx-installer/internal/service/fetcher/fetchertest"
	"github.com/oshokin/mediamtx-installer/internal/service/installer"
	"github.com/oshokin/mediamtx-installer/internal/service/probe"
	"github.com/oshokin/mediamtx-installer/internal/service/registrar"
	"github.com/oshokin/mediamtx-installer/internal/system"
	"github.com/oshokin/mediamtx-installer/internal/system/systemtest"
)

const (
	// Version is the release the simulated server publishes.
	Version = "v1.12.2"
	// ArtifactName is the archive file name for amd64.
	ArtifactName = "mediamtx_" + Version + "_linux_amd64.tar.gz"
	// ManifestName is the checksum manifest file name.
	ManifestName = "checksums.sha256"
	// Unit is the service unit name.
	Unit = "mediamtx.service"
	// Account is the dedicated service account.
	Account = "mediamtx"
)

// Binary is the executable packed into the default artifact.
//
//nolint:gochecknoglobals // Shared fixture bytes.
var Binary = []byte("#!/bin/sh\necho " + Version + "\n")

const settingsTemplate = `version: %[1]s
artifact_url: "%[2]s/{{.Version}}/mediamtx_{{.Version}}_linux_{{.Arch}}.tar.gz"
checksum_url: "%[2]s/{{.Version}}/checksums.sha256"
install_dir: %[3]s/usr/local/bin
config_file: %[3]s/etc/mediamtx/mediamtx.yml
log_dir: %[3]s/var/log/mediamtx
backup_dir: %[3]s/var/backups/mediamtx-installer
unit_dir: %[3]s/etc/systemd/system
state_dir: %[3]s/var/lib/mediamtx-installer
download:
  attempts: 2
  delay: 1ms
  timeout: 5s
dependencies:
  - command: tar
    package: tar
`

// Reachable is a connectivity checker with a fixed answer.
type Reachable struct {
	Err error
}

// Check implements installer.ConnectivityChecker.
func (r Reachable) Check(context.Context, string) error {
	return r.Err
}

// Host is one simulated machine.
type Host struct {
	// Root is the filesystem root every configured path lives under.
	Root string
	// SettingsPath is the installer settings file.
	SettingsPath string
	// Server publishes the release files.
	Server *httptest.Server
	// Runner records host commands.
	Runner *systemtest.Runner
	// Systemctl keeps unit state.
	Systemctl *systemtest.Systemctl
	// Accounts is the account database.
	Accounts *systemtest.Accounts
	// Prompter answers confirmations. Nil defers to Options.AssumeYes.
	Prompter common.Prompter
	// Euid is the effective user of the run.
	Euid int

	mu       sync.Mutex
	files    map[string][]byte
	requests int
}

// NewHost creates a host with an empty filesystem and a server publishing a
// valid artifact and manifest.
func NewHost(t *testing.T) *Host {
	t.Helper()

	h := &Host{
		Root:     t.TempDir(),
		Runner:   systemtest.NewRunner("tar"),
		Accounts: systemtest.NewAccounts("root"),
		Prompter: common.StaticPrompter(false),
		files:    make(map[string][]byte),
	}

	h.Systemctl = systemtest.NewSystemctl(h.Runner)
	h.Runner.Handle(h.BinaryPath()+" --version", func([]string) (*system.Result, error) {
		return &system.Result{Stdout: Version + "\n"}, nil
	})

	h.Server = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.Server.Close)

	h.SettingsPath = filepath.Join(h.Root, "settings.yaml")
	settings := fmt.Sprintf(settingsTemplate, Version, h.Server.URL, h.Root)
	require.NoError(t, os.WriteFile(h.SettingsPath, []byte(settings), 0o600))

	// The unit directory belongs to the init system and always exists.
	require.NoError(t, os.MkdirAll(h.UnitDir(), 0o755))

	artifact, err := fetchertest.TarGz(
		fetchertest.Entry{Name: "LICENSE", Body: []byte("MIT"), Mode: 0o644},
		fetchertest.Entry{Name: "mediamtx", Body: Binary},
		fetchertest.Entry{Name: "mediamtx.yml", Body: []byte("logLevel: info\n"), Mode: 0o644},
	)
	require.NoError(t, err)

	h.SetArtifact(artifact)
	h.SetManifest([]byte(ManifestLine(artifact, ArtifactName)))

	return h
}

// ManifestLine formats one sha256sum line for data.
func ManifestLine(data []byte, name string) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + "  " + name + "\n"
}

func (h *Host) serve(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.requests++
	data, ok := h.files[path.Base(r.URL.Path)]
	h.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	_, _ = w.Write(data)
}

// SetArtifact replaces the published archive.
func (h *Host) SetArtifact(data []byte) {
	h.publish(ArtifactName, data)
}

// SetManifest replaces the published manifest. Nil unpublishes it.
func (h *Host) SetManifest(data []byte) {
	h.publish(ManifestName, data)
}

func (h *Host) publish(name string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if data == nil {
		delete(h.files, name)
		return
	}

	h.files[name] = data
}

// Requests returns how many requests reached the release server.
func (h *Host) Requests() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.requests
}

// Options returns installer options wired to this host. The summary goes to out when it is not nil.
func (h *Host) Options(out *bytes.Buffer) *installer.Options {
	opts := &installer.Options{
		SettingsPath: h.SettingsPath,
		Overrides:    config.Overrides{Arch: "amd64"},
		Collaborators: &installer.Collaborators{
			Runner:       h.Runner,
			Accounts:     h.Accounts,
			Services:     registrar.NewSystemd(h.Runner),
			Prompter:     h.Prompter,
			HTTPClient:   h.Server.Client(),
			Connectivity: Reachable{},
			Prober: probe.New(h.Runner,
				probe.WithInitSystem(func() string { return "linux-systemd" }),
				probe.WithFreeSpace(func(string) (uint64, error) { return 1 << 40, nil }),
				probe.WithProcesses(func() ([]ps.Process, error) { return nil, nil }),
			),
			KernelArch: func() (string, error) { return "x86_64", nil },
			Euid:       func() int { return h.Euid },
			Now:        time.Now,
		},
	}

	if out != nil {
		opts.Output = out
	} else {
		opts.Output = new(bytes.Buffer)
	}

	return opts
}

// BinaryPath is the installed executable.
func (h *Host) BinaryPath() string {
	return filepath.Join(h.Root, "usr", "local", "bin", "mediamtx")
}

// ConfigFile is the media server configuration.
func (h *Host) ConfigFile() string {
	return filepath.Join(h.Root, "etc", "mediamtx", "mediamtx.yml")
}

// UnitDir is the systemd unit directory.
func (h *Host) UnitDir() string {
	return filepath.Join(h.Root, "etc", "systemd", "system")
}

// UnitPath is the service unit file.
func (h *Host) UnitPath() string {
	return filepath.Join(h.UnitDir(), Unit)
}

// LogDir is the log directory.
func (h *Host) LogDir() string {
	return filepath.Join(h.Root, "var", "log", "mediamtx")
}

// BackupDir is the backup directory.
func (h *Host) BackupDir() string {
	return filepath.Join(h.Root, "var", "backups", "mediamtx-installer")
}

// StateDir holds the receipt and the lock.
func (h *Host) StateDir() string {
	return filepath.Join(h.Root, "var", "lib", "mediamtx-installer")
}

// ReceiptPath is the installation receipt.
func (h *Host) ReceiptPath() string {
	return filepath.Join(h.StateDir(), "receipt.yaml")
}
