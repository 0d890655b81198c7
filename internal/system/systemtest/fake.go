package systemtest

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/oshokin/mediamtx-installer/internal/system"
)

// ErrFailed is returned by scripted command failures.
var ErrFailed = errors.New("scripted failure")

// Handler scripts the outcome of a command.
type Handler func(args []string) (*system.Result, error)

// Runner records every command and answers from scripted handlers.
// Unscripted commands succeed with empty output.
type Runner struct {
	mu       sync.Mutex
	calls    []string
	handlers map[string]Handler
	paths    map[string]string
}

// NewRunner creates a fake runner where the listed executables are on PATH.
func NewRunner(onPath ...string) *Runner {
	r := &Runner{
		handlers: make(map[string]Handler),
		paths:    make(map[string]string, len(onPath)),
	}

	for _, name := range onPath {
		r.paths[name] = "/usr/bin/" + name
	}

	return r
}

// Handle scripts the command whose joined "name args..." starts with prefix.
func (r *Runner) Handle(prefix string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[prefix] = h
}

// Fail makes commands starting with prefix exit with status 1.
func (r *Runner) Fail(prefix string) {
	r.Handle(prefix, func([]string) (*system.Result, error) {
		return &system.Result{ExitCode: 1}, fmt.Errorf("%s: %w", prefix, ErrFailed)
	})
}

// AddPath puts an executable on the fake PATH.
func (r *Runner) AddPath(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.paths[name] = "/usr/bin/" + name
}

// Calls returns the recorded command lines.
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

// Run implements system.Runner.
func (r *Runner) Run(_ context.Context, name string, args ...string) (*system.Result, error) {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))

	r.mu.Lock()
	r.calls = append(r.calls, line)

	var (
		handler Handler
		longest int
	)

	for prefix, h := range r.handlers {
		if strings.HasPrefix(line, prefix) && len(prefix) > longest {
			handler, longest = h, len(prefix)
		}
	}
	r.mu.Unlock()

	if handler == nil {
		return &system.Result{}, nil
	}

	return handler(args)
}

// LookPath implements system.Runner.
func (r *Runner) LookPath(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.paths[name]; ok {
		return p, nil
	}

	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

// Accounts is an in-memory system.AccountManager.
type Accounts struct {
	mu       sync.Mutex
	existing map[string]bool
	// CreateErr, when set, is returned by Create.
	CreateErr error
}

// NewAccounts creates a fake account store with the given accounts present.
func NewAccounts(existing ...string) *Accounts {
	a := &Accounts{existing: make(map[string]bool, len(existing))}
	for _, name := range existing {
		a.existing[name] = true
	}

	return a
}

// Exists implements system.AccountManager.
func (a *Accounts) Exists(name string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.existing[name], nil
}

// Create implements system.AccountManager.
func (a *Accounts) Create(_ context.Context, name, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.CreateErr != nil {
		return a.CreateErr
	}

	a.existing[name] = true

	return nil
}

// Delete implements system.AccountManager.
func (a *Accounts) Delete(_ context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.existing, name)

	return nil
}
