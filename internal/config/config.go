package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"
	"time"

	goversion "github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
)

// Config holds the installer settings. Every field has a default, so an
// absent settings file is equivalent to an empty one.
type Config struct {
	// Version is the release to install when no flag or environment override is given.
	Version string `yaml:"version"`
	// BinaryName is the executable name inside the release archive.
	BinaryName string `yaml:"binary_name"`
	// ArtifactURL is a text/template rendering the archive URL from Version, Arch and OS.
	ArtifactURL string `yaml:"artifact_url"`
	// ChecksumURL is a text/template rendering the checksum manifest URL.
	ChecksumURL string `yaml:"checksum_url"`

	// InstallDir receives the binary.
	InstallDir string `yaml:"install_dir"`
	// ConfigFile is the media server configuration path.
	ConfigFile string `yaml:"config_file"`
	// LogDir receives the media server log and the installer run logs.
	LogDir string `yaml:"log_dir"`
	// BackupDir keeps copies of overwritten files.
	BackupDir string `yaml:"backup_dir"`
	// UnitDir is the systemd unit directory.
	UnitDir string `yaml:"unit_dir"`
	// StateDir holds the installation receipt and run lock.
	StateDir string `yaml:"state_dir"`

	// ServiceName is the unit name without suffix.
	ServiceName string `yaml:"service_name"`
	// ServiceAccount is the dedicated account the service runs as.
	ServiceAccount string `yaml:"service_account"`
	// FallbackAccount is used when ServiceAccount cannot be created.
	FallbackAccount string `yaml:"fallback_account"`

	// Ports are the media server listeners.
	Ports install.Ports `yaml:"ports"`

	// Download controls artifact retrieval.
	Download Download `yaml:"download"`
	// ProbeTimeout bounds every connectivity probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	// MinFreeSpace is the free space in bytes required under InstallDir.
	MinFreeSpace uint64 `yaml:"min_free_space"`
	// Dependencies lists executables the installation relies on.
	Dependencies []Dependency `yaml:"dependencies"`
}

// Download is the retry policy shared by the artifact and manifest downloads.
type Download struct {
	// Attempts is the number of tries per downloader.
	Attempts int `yaml:"attempts"`
	// Delay is the fixed pause between attempts.
	Delay time.Duration `yaml:"delay"`
	// Timeout bounds a single attempt.
	Timeout time.Duration `yaml:"timeout"`
}

// Dependency is an executable the installation needs on the host.
type Dependency struct {
	// Command is the executable looked up on PATH.
	Command string `yaml:"command"`
	// Package is the distribution package providing Command.
	Package string `yaml:"package"`
	// Optional dependencies only produce a warning when missing.
	Optional bool `yaml:"optional"`
}

// Overrides are values supplied on the command line or through the environment.
// Empty fields keep the settings value.
type Overrides struct {
	// Version replaces Config.Version.
	Version string
	// Arch replaces the detected architecture. Resolved later by the prober.
	Arch string
	// ConfigFile replaces Config.ConfigFile.
	ConfigFile string
	// LogFile is the installer run log. Empty means a timestamped file under LogDir.
	LogFile string
	// DryRun, Force and RequireChecksum are copied into the target.
	DryRun, Force, RequireChecksum bool
}

const (
	// DefaultConfigFilename is the default installer settings path.
	DefaultConfigFilename = "/etc/mediamtx-installer/settings.yaml"

	// DefaultVersion is the release installed when nothing else is requested.
	DefaultVersion = "v1.12.2"

	// DefaultArtifactURL renders the upstream release archive URL.
	DefaultArtifactURL = "https://github.com/bluenviron/mediamtx/releases/download/" +
		"{{.Version}}/mediamtx_{{.Version}}_{{.OS}}_{{.Arch}}.tar.gz"

	// DefaultChecksumURL renders the upstream checksum manifest URL.
	DefaultChecksumURL = "https://github.com/bluenviron/mediamtx/releases/download/{{.Version}}/checksums.sha256"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultDownloadTimeout bounds a single artifact download attempt.
	DefaultDownloadTimeout = 2 * time.Minute

	// DefaultDownloadAttempts is the number of tries per downloader.
	DefaultDownloadAttempts = 3

	// DefaultDownloadDelay is the pause between download attempts.
	DefaultDownloadDelay = 3 * time.Second

	// DefaultMinFreeSpace is the free space required for the binary and backups.
	DefaultMinFreeSpace = 200 << 20

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// runLogLayout timestamps the per-run installer log.
	runLogLayout = "20060102-150405"

	maxPort = 65535
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidPort is returned for ports outside 1-65535.
	errInvalidPort = errors.New("port out of range")
	// errDuplicatePort is returned when two listeners share a port.
	errDuplicatePort = errors.New("port assigned twice")
	// errRelativePath is returned for non-absolute directories.
	errRelativePath = errors.New("path must be absolute")
	// errEmptyValue is returned when a required name is empty after defaults.
	errEmptyValue = errors.New("value must not be empty")
)

// Default returns settings populated with defaults only.
func Default() *Config {
	cfg := new(Config)

	// Defaults never fail validation.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOrDefault behaves like Load but returns defaults when the file is absent.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	return cfg, err
}

// Save writes Settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults and checks the provided settings.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	applyDefaults(settings)

	if _, err := goversion.NewVersion(settings.Version); err != nil {
		return fmt.Errorf("invalid version %q: %w", settings.Version, err)
	}

	for name, tmpl := range map[string]string{
		"artifact_url": settings.ArtifactURL,
		"checksum_url": settings.ChecksumURL,
	} {
		if _, err := template.New(name).Option("missingkey=error").Parse(tmpl); err != nil {
			return fmt.Errorf("invalid %s template: %w", name, err)
		}
	}

	for name, dir := range map[string]string{
		"install_dir": settings.InstallDir,
		"config_file": settings.ConfigFile,
		"log_dir":     settings.LogDir,
		"backup_dir":  settings.BackupDir,
		"unit_dir":    settings.UnitDir,
		"state_dir":   settings.StateDir,
	} {
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("%s %q: %w", name, dir, errRelativePath)
		}
	}

	for name, value := range map[string]string{
		"binary_name":      settings.BinaryName,
		"service_name":     settings.ServiceName,
		"service_account":  settings.ServiceAccount,
		"fallback_account": settings.FallbackAccount,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s: %w", name, errEmptyValue)
		}
	}

	return validatePorts(settings.Ports)
}

// applyDefaults fills every empty field with its default.
//
//nolint:cyclop // A flat list of defaults reads better than a table here.
func applyDefaults(settings *Config) {
	setDefault(&settings.Version, DefaultVersion)
	setDefault(&settings.BinaryName, "mediamtx")
	setDefault(&settings.ArtifactURL, DefaultArtifactURL)
	setDefault(&settings.ChecksumURL, DefaultChecksumURL)
	setDefault(&settings.InstallDir, "/usr/local/bin")
	setDefault(&settings.ConfigFile, "/etc/mediamtx/mediamtx.yml")
	setDefault(&settings.LogDir, "/var/log/mediamtx")
	setDefault(&settings.BackupDir, "/var/backups/mediamtx-installer")
	setDefault(&settings.UnitDir, "/etc/systemd/system")
	setDefault(&settings.StateDir, "/var/lib/mediamtx-installer")
	setDefault(&settings.ServiceName, "mediamtx")
	setDefault(&settings.ServiceAccount, "mediamtx")
	setDefault(&settings.FallbackAccount, "root")

	if settings.Ports == (install.Ports{}) {
		settings.Ports = install.Ports{RTSP: 8554, RTMP: 1935, HLS: 8888}
	}

	if settings.Download.Attempts <= 0 {
		settings.Download.Attempts = DefaultDownloadAttempts
	}

	if settings.Download.Delay <= 0 {
		settings.Download.Delay = DefaultDownloadDelay
	}

	if settings.Download.Timeout <= 0 {
		settings.Download.Timeout = DefaultDownloadTimeout
	}

	// Set default timeout if not specified
	if settings.ProbeTimeout <= 0 {
		settings.ProbeTimeout = DefaultTimeout
	}

	if settings.MinFreeSpace == 0 {
		settings.MinFreeSpace = DefaultMinFreeSpace
	}

	if settings.Dependencies == nil {
		settings.Dependencies = []Dependency{
			{Command: "tar", Package: "tar"},
			{Command: "systemctl", Package: "systemd"},
			{Command: "ffmpeg", Package: "ffmpeg", Optional: true},
		}
	}
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

func validatePorts(ports install.Ports) error {
	seen := make(map[int]struct{}, len(ports.List()))

	for _, port := range []int{ports.RTSP, ports.RTMP, ports.HLS} {
		if port < 1 {
			return fmt.Errorf("port %d: %w", port, errInvalidPort)
		}
	}

	for _, port := range ports.List() {
		if port > maxPort {
			return fmt.Errorf("port %d: %w", port, errInvalidPort)
		}

		if _, dup := seen[port]; dup {
			return fmt.Errorf("port %d: %w", port, errDuplicatePort)
		}

		seen[port] = struct{}{}
	}

	return nil
}

// Target freezes the settings and overrides into the immutable run description.
// The architecture must already be resolved.
func (c *Config) Target(arch string, overrides *Overrides, now time.Time) (*install.Target, error) {
	if overrides == nil {
		overrides = new(Overrides)
	}

	t := &install.Target{
		Version:         c.Version,
		Arch:            arch,
		OS:              runtime.GOOS,
		BinaryName:      c.BinaryName,
		InstallDir:      filepath.Clean(c.InstallDir),
		ConfigFile:      filepath.Clean(c.ConfigFile),
		LogDir:          filepath.Clean(c.LogDir),
		BackupDir:       filepath.Clean(c.BackupDir),
		UnitDir:         filepath.Clean(c.UnitDir),
		StateDir:        filepath.Clean(c.StateDir),
		ServiceName:     c.ServiceName,
		ServiceAccount:  c.ServiceAccount,
		FallbackAccount: c.FallbackAccount,
		Ports:           c.Ports,
		DryRun:          overrides.DryRun,
		Force:           overrides.Force,
		RequireChecksum: overrides.RequireChecksum,
	}

	if v := strings.TrimSpace(overrides.Version); v != "" {
		if _, err := goversion.NewVersion(v); err != nil {
			return nil, fmt.Errorf("invalid version %q: %w", v, err)
		}

		t.Version = v
	}

	if f := strings.TrimSpace(overrides.ConfigFile); f != "" {
		if !filepath.IsAbs(f) {
			return nil, fmt.Errorf("config file %q: %w", f, errRelativePath)
		}

		t.ConfigFile = filepath.Clean(f)
	}

	t.LogFile = filepath.Join(t.LogDir, "install-"+now.Format(runLogLayout)+".log")
	if f := strings.TrimSpace(overrides.LogFile); f != "" {
		t.LogFile = filepath.Clean(f)
	}

	var err error

	if t.ArtifactURL, err = renderURL(c.ArtifactURL, t); err != nil {
		return nil, fmt.Errorf("render artifact url: %w", err)
	}

	if t.ChecksumURL, err = renderURL(c.ChecksumURL, t); err != nil {
		return nil, fmt.Errorf("render checksum url: %w", err)
	}

	return t, nil
}

// renderURL fills a URL template with the release coordinates.
func renderURL(tmpl string, t *install.Target) (string, error) {
	parsed, err := template.New("url").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer

	err = parsed.Execute(&buf, map[string]string{
		"Version":       t.Version,
		"VersionNumber": strings.TrimPrefix(t.Version, "v"),
		"Arch":          t.Arch,
		"OS":            t.OS,
		"BinaryName":    t.BinaryName,
	})
	if err != nil {
		return "", err
	}

	rendered := buf.String()
	if _, err = url.ParseRequestURI(rendered); err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rendered, err)
	}

	return rendered, nil
}
