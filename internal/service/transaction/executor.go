package transaction

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oshokin/mediamtx-installer/internal/service/common"
)

// ServiceControl is the part of the service manager compensating actions need.
type ServiceControl interface {
	// Start starts a unit.
	Start(ctx context.Context, unit string) error
	// Stop stops a unit.
	Stop(ctx context.Context, unit string) error
	// Disable disables a unit.
	Disable(ctx context.Context, unit string) error
	// RemoveUnit unregisters a unit and deletes its definition at path.
	RemoveUnit(ctx context.Context, unit, path string) error
	// Reload makes the manager reread unit definitions.
	Reload(ctx context.Context) error
}

// AccountRemover deletes service accounts.
type AccountRemover interface {
	Delete(ctx context.Context, name string) error
}

var (
	errUnknownAction      = errors.New("unknown rollback action")
	errNoServiceControl   = errors.New("no service manager configured")
	errNoAccountRemover   = errors.New("no account manager configured")
	errBackupDigestDiffer = errors.New("backup digest differs from the recorded one")
)

// Executor runs compensating actions, one typed function per action kind.
type Executor struct {
	services ServiceControl
	accounts AccountRemover
}

// NewExecutor creates an Executor. Either collaborator may be nil when the
// transaction never records actions that need it.
func NewExecutor(services ServiceControl, accounts AccountRemover) *Executor {
	return &Executor{
		services: services,
		accounts: accounts,
	}
}

// Execute runs a single action.
func (e *Executor) Execute(ctx context.Context, a Action) error {
	switch action := a.(type) {
	case RemovePath:
		return e.removePath(action)
	case RestoreBackup:
		return e.restoreBackup(action)
	case DeleteServiceAccount:
		return e.deleteServiceAccount(ctx, action)
	case DisableService:
		return e.withServices(func(s ServiceControl) error { return s.Disable(ctx, action.Unit) })
	case StopService:
		return e.withServices(func(s ServiceControl) error { return s.Stop(ctx, action.Unit) })
	case StartService:
		return e.withServices(func(s ServiceControl) error { return s.Start(ctx, action.Unit) })
	case RemoveServiceUnit:
		return e.withServices(func(s ServiceControl) error { return s.RemoveUnit(ctx, action.Unit, action.Path) })
	case RestoreServiceUnit:
		if err := e.restoreBackup(RestoreBackup{Record: action.Record}); err != nil {
			return err
		}

		return e.withServices(func(s ServiceControl) error { return s.Reload(ctx) })
	case RemoveUnitOverride:
		if err := e.removePath(RemovePath{Path: action.Path}); err != nil {
			return err
		}

		return e.withServices(func(s ServiceControl) error { return s.Reload(ctx) })
	default:
		return fmt.Errorf("%T: %w", a, errUnknownAction)
	}
}

// removePath deletes a file or an empty directory. A missing path is already compensated.
func (e *Executor) removePath(a RemovePath) error {
	err := os.Remove(a.Path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("remove %s: %w", a.Path, err)
}

// restoreBackup checks the backup is intact and copies it over the original.
func (e *Executor) restoreBackup(a RestoreBackup) error {
	record := a.Record

	if record.Digest != "" {
		digest, err := common.FileChecksumHex(record.Backup, common.DefaultChecksumFunction)
		if err != nil {
			return fmt.Errorf("read backup %s: %w", record.Backup, err)
		}

		if digest != record.Digest {
			return fmt.Errorf("%s: %w", record.Backup, errBackupDigestDiffer)
		}
	}

	contents, err := os.ReadFile(record.Backup)
	if err != nil {
		return fmt.Errorf("read backup %s: %w", record.Backup, err)
	}

	mode := record.Mode.Perm()
	if mode == 0 {
		mode = DefaultBackupMode
	}

	if err = common.WriteFileAtomic(context.Background(), record.Original, contents, mode); err != nil {
		return fmt.Errorf("restore %s: %w", record.Original, err)
	}

	return nil
}

func (e *Executor) deleteServiceAccount(ctx context.Context, a DeleteServiceAccount) error {
	if e.accounts == nil {
		return errNoAccountRemover
	}

	return e.accounts.Delete(ctx, a.Name)
}

func (e *Executor) withServices(fn func(ServiceControl) error) error {
	if e.services == nil {
		return errNoServiceControl
	}

	return fn(e.services)
}
