package install

import (
	"path/filepath"
	"slices"
)

// privilegedPortLimit is the first port an unprivileged process may bind.
const privilegedPortLimit = 1024

// Ports holds the network listeners written into the media server configuration.
type Ports struct {
	// RTSP is the RTSP listener port.
	RTSP int `yaml:"rtsp"`
	// RTMP is the RTMP listener port.
	RTMP int `yaml:"rtmp"`
	// HLS is the HLS HTTP listener port.
	HLS int `yaml:"hls"`
	// WebRTC is the WebRTC HTTP listener port. Zero disables the listener.
	WebRTC int `yaml:"webrtc,omitempty"`
	// API is the control API port. Zero disables the API.
	API int `yaml:"api,omitempty"`
}

// List returns every configured non-zero port.
func (p Ports) List() []int {
	ports := make([]int, 0, 5) //nolint:mnd // Five listeners at most.
	for _, port := range []int{p.RTSP, p.RTMP, p.HLS, p.WebRTC, p.API} {
		if port > 0 {
			ports = append(ports, port)
		}
	}

	return ports
}

// Privileged reports whether any listener needs CAP_NET_BIND_SERVICE.
func (p Ports) Privileged() bool {
	return slices.ContainsFunc(p.List(), func(port int) bool {
		return port < privilegedPortLimit
	})
}

// Target is the immutable description of one installation run.
// It is built once at startup and only read afterwards.
type Target struct {
	// Version is the desired release, e.g. "v1.12.2".
	Version string
	// Arch is the resolved release architecture tag, e.g. "amd64".
	Arch string
	// OS is the release operating system tag.
	OS string
	// BinaryName is the executable name inside the release archive.
	BinaryName string
	// ArtifactURL is the rendered archive download URL.
	ArtifactURL string
	// ChecksumURL is the rendered checksum manifest URL.
	ChecksumURL string

	// InstallDir receives the binary.
	InstallDir string
	// ConfigFile is the rendered configuration path.
	ConfigFile string
	// LogDir receives the media server log and the installer run logs.
	LogDir string
	// LogFile is the installer run log for this invocation.
	LogFile string
	// BackupDir keeps copies of every file a transaction overwrote.
	BackupDir string
	// UnitDir is the service manager unit directory.
	UnitDir string
	// StateDir holds the installation receipt and the run lock.
	StateDir string

	// ServiceName is the unit name without suffix.
	ServiceName string
	// ServiceAccount is the dedicated low-privilege account.
	ServiceAccount string
	// FallbackAccount is used when ServiceAccount cannot be created.
	FallbackAccount string

	// Ports are the configured listeners.
	Ports Ports

	// DryRun reports intended changes without applying them.
	DryRun bool
	// Force treats an existing installation as an upgrade without asking.
	Force bool
	// RequireChecksum turns an unverifiable artifact into a failure.
	RequireChecksum bool
}

// BinaryPath is where the executable is installed.
func (t *Target) BinaryPath() string {
	return filepath.Join(t.InstallDir, t.BinaryName)
}

// ConfigDir is the directory holding ConfigFile.
func (t *Target) ConfigDir() string {
	return filepath.Dir(t.ConfigFile)
}

// UnitName is the service unit name including the suffix.
func (t *Target) UnitName() string {
	return t.ServiceName + ".service"
}

// UnitPath is where the service unit file is written.
func (t *Target) UnitPath() string {
	return filepath.Join(t.UnitDir, t.UnitName())
}

// ServerLogFile is the log destination configured for the media server itself.
func (t *Target) ServerLogFile() string {
	return filepath.Join(t.LogDir, t.BinaryName+".log")
}

// ReceiptPath is the installation receipt location.
func (t *Target) ReceiptPath() string {
	return filepath.Join(t.StateDir, "receipt.yaml")
}

// LockPath is the run lock location.
func (t *Target) LockPath() string {
	return filepath.Join(t.StateDir, "install.lock")
}
