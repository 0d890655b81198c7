package system

import (
	"context"
	"errors"
	"fmt"
	"os/user"
)

// AccountManager creates and removes service accounts.
type AccountManager interface {
	// Exists reports whether the account is known to the host.
	Exists(name string) (bool, error)
	// Create adds a system account without a login shell.
	Create(ctx context.Context, name, home string) error
	// Delete removes an account created by Create.
	Delete(ctx context.Context, name string) error
}

// Accounts manages accounts with the shadow-utils commands.
type Accounts struct {
	runner Runner
}

// NewAccounts creates an AccountManager backed by useradd and userdel.
func NewAccounts(runner Runner) *Accounts {
	return &Accounts{runner: runner}
}

// Exists implements AccountManager.
func (a *Accounts) Exists(name string) (bool, error) {
	_, err := user.Lookup(name)
	if err == nil {
		return true, nil
	}

	var unknown user.UnknownUserError
	if errors.As(err, &unknown) {
		return false, nil
	}

	return false, fmt.Errorf("lookup account %s: %w", name, err)
}

// Create implements AccountManager.
func (a *Accounts) Create(ctx context.Context, name, home string) error {
	args := []string{"--system", "--no-create-home", "--user-group", "--shell", "/usr/sbin/nologin"}
	if home != "" {
		args = append(args, "--home-dir", home)
	}

	args = append(args, name)

	if _, err := a.runner.Run(ctx, "useradd", args...); err != nil {
		return fmt.Errorf("create account %s: %w", name, err)
	}

	return nil
}

// Delete implements AccountManager.
func (a *Accounts) Delete(ctx context.Context, name string) error {
	if _, err := a.runner.Run(ctx, "userdel", name); err != nil {
		return fmt.Errorf("delete account %s: %w", name, err)
	}

	return nil
}
