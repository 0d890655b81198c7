package dependency

import (
	"context"
	"fmt"

	"github.com/oshokin/mediamtx-installer/internal/system"
)

// PackageManager installs distribution packages.
type PackageManager interface {
	// Name is the package manager executable.
	Name() string
	// Install installs the packages non-interactively.
	Install(ctx context.Context, packages ...string) error
}

// commandManager is a package manager driven by a single command line.
type commandManager struct {
	runner  system.Runner
	name    string
	refresh []string
	install []string
}

// Name implements PackageManager.
func (m *commandManager) Name() string {
	return m.name
}

// Install implements PackageManager.
func (m *commandManager) Install(ctx context.Context, packages ...string) error {
	if len(m.refresh) > 0 {
		if _, err := m.runner.Run(ctx, m.name, m.refresh...); err != nil {
			return fmt.Errorf("refresh package index: %w", err)
		}
	}

	args := append(append([]string(nil), m.install...), packages...)
	if _, err := m.runner.Run(ctx, m.name, args...); err != nil {
		return fmt.Errorf("install %v: %w", packages, err)
	}

	return nil
}

// ForName returns the implementation for a detected package manager executable,
// or nil when the name is unknown.
//
//nolint:ireturn // Callers select among several implementations.
func ForName(runner system.Runner, name string) PackageManager {
	switch name {
	case "apt-get":
		return &commandManager{runner: runner, name: name, refresh: []string{"update", "-qq"}, install: []string{"install", "-y", "-qq"}}
	case "dnf", "yum":
		return &commandManager{runner: runner, name: name, install: []string{"install", "-y", "-q"}}
	case "apk":
		return &commandManager{runner: runner, name: name, install: []string{"add", "--no-cache"}}
	case "pacman":
		return &commandManager{runner: runner, name: name, install: []string{"-S", "--noconfirm", "--needed"}}
	case "zypper":
		return &commandManager{runner: runner, name: name, install: []string{"--non-interactive", "install"}}
	default:
		return nil
	}
}
