package install

import "time"

// Receipt records a completed installation. It is what a re-run inspects to
// detect an existing installation and what uninstall reverses.
type Receipt struct {
	// Version is the installed release.
	Version string `yaml:"version"`
	// Arch is the installed release architecture.
	Arch string `yaml:"arch"`
	// Digest is the SHA-256 of the downloaded artifact.
	Digest string `yaml:"digest"`
	// Verified reports whether the digest was confirmed against a manifest.
	Verified bool `yaml:"verified"`
	// BinaryPath is the installed executable.
	BinaryPath string `yaml:"binary_path"`
	// ConfigFile is the written configuration.
	ConfigFile string `yaml:"config_file"`
	// UnitName is the registered service.
	UnitName string `yaml:"unit_name"`
	// UnitPath is the unit file, if the service manager uses one.
	UnitPath string `yaml:"unit_path"`
	// Account runs the service.
	Account string `yaml:"account"`
	// AccountCreated reports whether the installer created Account.
	AccountCreated bool `yaml:"account_created"`
	// TransactionID identifies the run that produced the receipt.
	TransactionID string `yaml:"transaction_id"`
	// InstalledAt is when the run committed.
	InstalledAt time.Time `yaml:"installed_at"`
	// InstallerVersion is the build of the installer that wrote the receipt.
	InstallerVersion string `yaml:"installer_version,omitempty"`
	// InstalledBy is who ran the installer.
	InstalledBy *Actor `yaml:"installed_by,omitempty"`
}
