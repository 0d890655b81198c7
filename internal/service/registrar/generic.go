package registrar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kardianos/service"
)

// program satisfies service.Interface. The installer never runs the service itself.
type program struct{}

func (program) Start(service.Service) error { return nil }
func (program) Stop(service.Service) error  { return nil }

// Generic drives non-systemd init systems through kardianos/service.
// Registration enables the service at boot, so Enable and Disable are no-ops.
type Generic struct {
	mu       sync.Mutex
	services map[string]service.Service
	open     func(cfg *service.Config) (service.Service, error)
}

// NewGeneric creates a manager for the init system kardianos/service detects.
func NewGeneric() *Generic {
	return &Generic{
		services: make(map[string]service.Service),
		open: func(cfg *service.Config) (service.Service, error) {
			return service.New(program{}, cfg)
		},
	}
}

// Name implements Manager.
func (m *Generic) Name() string {
	return service.Platform()
}

// Register implements Manager.
func (m *Generic) Register(_ context.Context, def *Definition) error {
	svc, err := m.open(&service.Config{
		Name:        def.Name,
		DisplayName: def.Name,
		Description: def.Description,
		UserName:    def.Account,
		Executable:  def.Executable,
		Arguments:   def.Arguments,
		Option:      service.KeyValue{"Restart": "on-failure"},
	})
	if err != nil {
		return fmt.Errorf("describe service: %w", err)
	}

	m.mu.Lock()
	m.services[def.Name] = svc
	m.mu.Unlock()

	// An existing registration is kept as is.
	if _, err = svc.Status(); err == nil {
		return nil
	}

	if err = svc.Install(); err != nil {
		return fmt.Errorf("install service: %w", err)
	}

	return nil
}

// RemoveUnit implements Manager.
func (m *Generic) RemoveUnit(_ context.Context, unit, _ string) error {
	svc, err := m.lookup(unit)
	if err != nil {
		return err
	}

	if err = svc.Uninstall(); err != nil {
		return fmt.Errorf("uninstall service: %w", err)
	}

	return nil
}

// Enable implements Manager.
func (m *Generic) Enable(context.Context, string) error {
	return nil
}

// Disable implements Manager.
func (m *Generic) Disable(context.Context, string) error {
	return nil
}

// Reload implements Manager. kardianos/service reads definitions on every call.
func (m *Generic) Reload(context.Context) error {
	return nil
}

// Start implements Manager.
func (m *Generic) Start(_ context.Context, unit string) error {
	svc, err := m.lookup(unit)
	if err != nil {
		return err
	}

	return svc.Start()
}

// Stop implements Manager.
func (m *Generic) Stop(_ context.Context, unit string) error {
	svc, err := m.lookup(unit)
	if err != nil {
		return err
	}

	return svc.Stop()
}

// IsEnabled implements Manager.
func (m *Generic) IsEnabled(_ context.Context, unit string) (bool, error) {
	svc, err := m.lookup(unit)
	if err != nil {
		return false, err
	}

	_, err = svc.Status()
	if errors.Is(err, service.ErrNotInstalled) {
		return false, nil
	}

	return err == nil, err
}

// IsActive implements Manager.
func (m *Generic) IsActive(_ context.Context, unit string) (bool, error) {
	svc, err := m.lookup(unit)
	if err != nil {
		return false, err
	}

	status, err := svc.Status()
	if errors.Is(err, service.ErrNotInstalled) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return status == service.StatusRunning, nil
}

// lookup returns the registered service, or a handle built from the name alone
// for services installed by an earlier run.
func (m *Generic) lookup(unit string) (service.Service, error) {
	name := strings.TrimSuffix(unit, ".service")

	m.mu.Lock()
	defer m.mu.Unlock()

	if svc, ok := m.services[name]; ok {
		return svc, nil
	}

	svc, err := m.open(&service.Config{Name: name})
	if err != nil {
		return nil, fmt.Errorf("open service %s: %w", name, err)
	}

	m.services[name] = svc

	return svc, nil
}
