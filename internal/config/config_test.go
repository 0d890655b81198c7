package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
)

// TestValidate checks defaults and format validations for Config.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Empty settings get defaults.
	settings := new(Config)
	require.NoError(t, Validate(settings))
	require.Equal(t, DefaultVersion, settings.Version)
	require.Equal(t, "root", settings.FallbackAccount)
	require.Equal(t, install.Ports{RTSP: 8554, RTMP: 1935, HLS: 8888}, settings.Ports)

	// Bad version.
	settings = &Config{Version: "not a version"}
	require.Error(t, Validate(settings))

	// Relative directory.
	settings = &Config{InstallDir: "bin"}
	require.ErrorIs(t, Validate(settings), errRelativePath)

	// Shared port.
	settings = &Config{Ports: install.Ports{RTSP: 8554, RTMP: 8554, HLS: 8888}}
	require.ErrorIs(t, Validate(settings), errDuplicatePort)

	// Missing mandatory listener.
	settings = &Config{Ports: install.Ports{RTSP: 8554, HLS: 8888}}
	require.ErrorIs(t, Validate(settings), errInvalidPort)

	// Broken template.
	settings = &Config{ArtifactURL: "https://example.com/{{.Version"}
	require.Error(t, Validate(settings))
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	settings := &Config{
		Version:    "v1.11.0",
		InstallDir: "/opt/mediamtx/bin",
		Ports:      install.Ports{RTSP: 554, RTMP: 1935, HLS: 8888, API: 9997},
		Download:   Download{Attempts: 5, Delay: time.Second},
	}

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings.Version, loaded.Version)
	require.Equal(t, settings.InstallDir, loaded.InstallDir)
	require.Equal(t, settings.Ports, loaded.Ports)
	require.Equal(t, 5, loaded.Download.Attempts)
	require.Equal(t, time.Second, loaded.Download.Delay)

	// File exists.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoadOrDefault falls back to defaults only for a missing file.
func TestLoadOrDefault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := LoadOrDefault(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultVersion, cfg.Version)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("ports: ["), 0o600))

	_, err = LoadOrDefault(broken)
	require.Error(t, err)
}

// TestTargetAppliesOverrides verifies precedence and URL rendering.
func TestTargetAppliesOverrides(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cfg := Default()

	target, err := cfg.Target("arm64", &Overrides{
		Version:    "v1.12.2",
		ConfigFile: "/srv/mediamtx/mediamtx.yml",
		DryRun:     true,
	}, now)
	require.NoError(t, err)

	require.Equal(t, "v1.12.2", target.Version)
	require.Equal(t, "/srv/mediamtx/mediamtx.yml", target.ConfigFile)
	require.True(t, target.DryRun)
	require.Equal(t, "/var/log/mediamtx/install-20260102-030405.log", target.LogFile)
	require.Equal(t,
		"https://github.com/bluenviron/mediamtx/releases/download/v1.12.2/mediamtx_v1.12.2_"+target.OS+"_arm64.tar.gz",
		target.ArtifactURL)
	require.Equal(t, "https://github.com/bluenviron/mediamtx/releases/download/v1.12.2/checksums.sha256", target.ChecksumURL)

	_, err = cfg.Target("amd64", &Overrides{Version: "latest-ish"}, now)
	require.Error(t, err)

	_, err = cfg.Target("amd64", &Overrides{ConfigFile: "relative.yml"}, now)
	require.ErrorIs(t, err, errRelativePath)
}
