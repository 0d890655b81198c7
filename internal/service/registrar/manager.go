package registrar

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oshokin/mediamtx-installer/internal/service/common"
	"github.com/oshokin/mediamtx-installer/internal/system"
)

// UnitFileMode is the permission set of written unit files.
const UnitFileMode os.FileMode = 0o644

// Manager registers and controls the media server service.
type Manager interface {
	// Name identifies the init system.
	Name() string
	// Register writes or updates the service definition and makes the manager aware of it.
	Register(ctx context.Context, def *Definition) error
	// RemoveUnit unregisters unit and deletes its definition at path.
	RemoveUnit(ctx context.Context, unit, path string) error
	// Enable makes unit start at boot.
	Enable(ctx context.Context, unit string) error
	// Disable reverts Enable.
	Disable(ctx context.Context, unit string) error
	// Start starts unit.
	Start(ctx context.Context, unit string) error
	// Stop stops unit.
	Stop(ctx context.Context, unit string) error
	// IsEnabled reports whether unit starts at boot.
	IsEnabled(ctx context.Context, unit string) (bool, error)
	// IsActive reports whether unit is running.
	IsActive(ctx context.Context, unit string) (bool, error)
	// Reload makes the manager reread unit definitions.
	Reload(ctx context.Context) error
}

// Systemd drives systemctl through the command runner.
type Systemd struct {
	runner system.Runner
}

// NewSystemd creates a systemd manager.
func NewSystemd(runner system.Runner) *Systemd {
	return &Systemd{runner: runner}
}

// Name implements Manager.
func (m *Systemd) Name() string {
	return "systemd"
}

// Register implements Manager.
func (m *Systemd) Register(ctx context.Context, def *Definition) error {
	if err := common.WriteFileAtomic(ctx, def.Path, []byte(BuildUnit(def)), UnitFileMode); err != nil {
		return fmt.Errorf("write unit: %w", err)
	}

	return m.Reload(ctx)
}

// RemoveUnit implements Manager.
func (m *Systemd) RemoveUnit(ctx context.Context, _, path string) error {
	if path != "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove unit file: %w", err)
		}
	}

	return m.Reload(ctx)
}

// Enable implements Manager.
func (m *Systemd) Enable(ctx context.Context, unit string) error {
	return m.systemctl(ctx, "enable", unit)
}

// Disable implements Manager.
func (m *Systemd) Disable(ctx context.Context, unit string) error {
	return m.systemctl(ctx, "disable", unit)
}

// Start implements Manager.
func (m *Systemd) Start(ctx context.Context, unit string) error {
	return m.systemctl(ctx, "start", unit)
}

// Stop implements Manager.
func (m *Systemd) Stop(ctx context.Context, unit string) error {
	return m.systemctl(ctx, "stop", unit)
}

// IsEnabled implements Manager.
func (m *Systemd) IsEnabled(ctx context.Context, unit string) (bool, error) {
	return m.query(ctx, "is-enabled", unit)
}

// IsActive implements Manager.
func (m *Systemd) IsActive(ctx context.Context, unit string) (bool, error) {
	return m.query(ctx, "is-active", unit)
}

// Reload implements Manager.
func (m *Systemd) Reload(ctx context.Context) error {
	if _, err := m.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("reload systemd: %w", err)
	}

	return nil
}

func (m *Systemd) systemctl(ctx context.Context, verb, unit string) error {
	if _, err := m.runner.Run(ctx, "systemctl", verb, unit); err != nil {
		return fmt.Errorf("%s %s: %w", verb, unit, err)
	}

	return nil
}

// query maps a non-zero exit status of a systemctl predicate to false.
func (m *Systemd) query(ctx context.Context, verb, unit string) (bool, error) {
	result, err := m.runner.Run(ctx, "systemctl", verb, "--quiet", unit)
	if err == nil {
		return true, nil
	}

	if result != nil && result.ExitCode > 0 {
		return false, nil
	}

	return false, fmt.Errorf("%s %s: %w", verb, unit, err)
}
