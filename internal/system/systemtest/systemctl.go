package systemtest

import (
	"fmt"
	"sync"

	"github.com/oshokin/mediamtx-installer/internal/system"
)

// Systemctl scripts systemctl on a fake Runner with in-memory unit state.
type Systemctl struct {
	mu      sync.Mutex
	enabled map[string]bool
	active  map[string]bool
}

// NewSystemctl installs systemctl handlers on r.
func NewSystemctl(r *Runner) *Systemctl {
	s := &Systemctl{
		enabled: make(map[string]bool),
		active:  make(map[string]bool),
	}

	r.AddPath("systemctl")
	r.Handle("systemctl enable", s.set(s.enabled, true))
	r.Handle("systemctl disable", s.set(s.enabled, false))
	r.Handle("systemctl start", s.set(s.active, true))
	r.Handle("systemctl stop", s.set(s.active, false))
	r.Handle("systemctl is-enabled", s.query(s.enabled))
	r.Handle("systemctl is-active", s.query(s.active))

	return s
}

// SetEnabled marks unit as enabled before a run.
func (s *Systemctl) SetEnabled(unit string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled[unit] = enabled
}

// SetActive marks unit as running before a run.
func (s *Systemctl) SetActive(unit string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active[unit] = active
}

// Enabled reports the enabled state of unit.
func (s *Systemctl) Enabled(unit string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.enabled[unit]
}

// Active reports the running state of unit.
func (s *Systemctl) Active(unit string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active[unit]
}

func (s *Systemctl) set(states map[string]bool, value bool) Handler {
	return func(args []string) (*system.Result, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		states[args[len(args)-1]] = value

		return &system.Result{}, nil
	}
}

func (s *Systemctl) query(states map[string]bool) Handler {
	return func(args []string) (*system.Result, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if states[args[len(args)-1]] {
			return &system.Result{}, nil
		}

		return &system.Result{ExitCode: 1}, fmt.Errorf("systemctl %s: %w", args[0], ErrFailed)
	}
}
