package registrar

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/logger"
	"github.com/oshokin/mediamtx-installer/internal/service/transaction"
	"github.com/oshokin/mediamtx-installer/internal/system"
)

// Registrar creates the service account and registers, enables and starts the service.
// Its steps share the account resolved by the first of them.
type Registrar struct {
	manager  Manager
	accounts system.AccountManager

	mu      sync.Mutex
	account string
	created bool
}

// New creates a Registrar.
func New(manager Manager, accounts system.AccountManager) *Registrar {
	return &Registrar{
		manager:  manager,
		accounts: accounts,
	}
}

// Manager returns the service manager in use.
func (r *Registrar) Manager() Manager {
	return r.manager
}

// Account returns the account the service runs as and whether this run created it.
func (r *Registrar) Account() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.account, r.created
}

// StopRunningStep stops an active instance before its binary is replaced.
func (r *Registrar) StopRunningStep() transaction.Step {
	return &transaction.FuncStep{
		StepName:  "stop-running-service",
		StepPhase: install.StateInstalling,
		Describe: func(t *install.Target) string {
			return "stop " + t.UnitName() + " if it is running"
		},
		Run: r.stopRunning,
	}
}

// Steps returns the RegisteringService steps in execution order.
func (r *Registrar) Steps() []transaction.Step {
	return []transaction.Step{
		&transaction.FuncStep{
			StepName:  "ensure-service-account",
			StepPhase: install.StateRegisteringService,
			Describe: func(t *install.Target) string {
				return fmt.Sprintf("create system account %s unless it exists (fallback %s)", t.ServiceAccount, t.FallbackAccount)
			},
			Run: r.ensureAccount,
		},
		&transaction.FuncStep{
			StepName:  "write-service-unit",
			StepPhase: install.StateRegisteringService,
			Describe: func(t *install.Target) string {
				return fmt.Sprintf("register %s with %s at %s", t.UnitName(), r.manager.Name(), t.UnitPath())
			},
			Run: r.writeUnit,
		},
		&transaction.FuncStep{
			StepName:  "enable-service",
			StepPhase: install.StateRegisteringService,
			Describe: func(t *install.Target) string {
				return "enable " + t.UnitName()
			},
			Run: r.enable,
		},
		&transaction.FuncStep{
			StepName:  "start-service",
			StepPhase: install.StateRegisteringService,
			Describe: func(t *install.Target) string {
				return "start " + t.UnitName()
			},
			Run: r.start,
		},
	}
}

func (r *Registrar) stopRunning(ctx context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	unit := tx.Target().UnitName()

	active, err := r.manager.IsActive(ctx, unit)
	if err != nil {
		return nil, install.Wrap(install.KindService, "query "+unit, err)
	}

	if !active {
		return nil, nil
	}

	logger.InfoKV(ctx, "Stopping running service", "unit", unit)

	if err = r.manager.Stop(ctx, unit); err != nil {
		return nil, install.Wrap(install.KindService, "stop "+unit, err)
	}

	return []transaction.Action{transaction.StartService{Unit: unit}}, nil
}

// ensureAccount creates the service account. A creation failure falls back to
// the pre-existing fallback account with a warning instead of failing the run.
func (r *Registrar) ensureAccount(ctx context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	target := tx.Target()

	exists, err := r.accounts.Exists(target.ServiceAccount)
	if err != nil {
		return nil, install.Wrap(install.KindService, "look up "+target.ServiceAccount, err)
	}

	if exists {
		r.setAccount(target.ServiceAccount, false)
		logger.InfoKV(ctx, "Service account already exists", "account", target.ServiceAccount)

		return nil, nil
	}

	err = r.accounts.Create(ctx, target.ServiceAccount, "")
	if err == nil {
		r.setAccount(target.ServiceAccount, true)
		logger.InfoKV(ctx, "Service account created", "account", target.ServiceAccount)

		return []transaction.Action{transaction.DeleteServiceAccount{Name: target.ServiceAccount}}, nil
	}

	logger.WarnKV(ctx, "Unable to create service account, the service will run under the fallback account",
		"account", target.ServiceAccount, "fallback", target.FallbackAccount, "error", err)

	fallback, lookupErr := r.accounts.Exists(target.FallbackAccount)
	if lookupErr != nil || !fallback {
		return nil, install.Errorf(install.KindService,
			"create account %s: %w; fallback account %s is unavailable", target.ServiceAccount, err, target.FallbackAccount)
	}

	r.setAccount(target.FallbackAccount, false)

	return nil, nil
}

func (r *Registrar) setAccount(name string, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.account, r.created = name, created
}

func (r *Registrar) resolvedAccount(target *install.Target) string {
	if account, _ := r.Account(); account != "" {
		return account
	}

	return target.ServiceAccount
}

func (r *Registrar) writeUnit(ctx context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	target := tx.Target()
	def := DefinitionFor(target, r.resolvedAccount(target))
	unit := target.UnitName()

	registered, err := r.manager.IsEnabled(ctx, unit)
	if err != nil {
		return nil, install.Wrap(install.KindService, "query "+unit, err)
	}

	record, err := tx.Backup(ctx, def.Path)
	if err != nil {
		return nil, install.Wrap(install.KindService, "back up unit", err)
	}

	var actions []transaction.Action

	switch {
	case record != nil:
		actions = append(actions, transaction.RestoreServiceUnit{Unit: unit, Record: *record})
	case !registered:
		actions = append(actions, transaction.RemoveServiceUnit{Unit: unit, Path: def.Path})
	}

	err = r.manager.Register(ctx, def)

	// A unit registered elsewhere gets a file at def.Path that now shadows it.
	if record == nil && registered {
		if _, statErr := os.Lstat(def.Path); statErr == nil {
			actions = append(actions, transaction.RemoveUnitOverride{Unit: unit, Path: def.Path})
		}
	}

	if err != nil {
		return actions, install.Wrap(install.KindService, "register "+unit, err)
	}

	logger.InfoKV(ctx, "Service registered",
		"unit", unit, "manager", r.manager.Name(), "account", def.Account, "privileged_ports", def.BindPrivileged)

	return actions, nil
}

func (r *Registrar) enable(ctx context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	unit := tx.Target().UnitName()

	enabled, err := r.manager.IsEnabled(ctx, unit)
	if err != nil {
		return nil, install.Wrap(install.KindService, "query "+unit, err)
	}

	if enabled {
		return nil, nil
	}

	if err = r.manager.Enable(ctx, unit); err != nil {
		return nil, install.Wrap(install.KindService, "enable "+unit, err)
	}

	return []transaction.Action{transaction.DisableService{Unit: unit}}, nil
}

func (r *Registrar) start(ctx context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	unit := tx.Target().UnitName()

	active, err := r.manager.IsActive(ctx, unit)
	if err != nil {
		return nil, install.Wrap(install.KindService, "query "+unit, err)
	}

	if active {
		return nil, nil
	}

	if err = r.manager.Start(ctx, unit); err != nil {
		return nil, install.Wrap(install.KindService, "start "+unit, err)
	}

	logger.InfoKV(ctx, "Service started", "unit", unit)

	return []transaction.Action{transaction.StopService{Unit: unit}}, nil
}
