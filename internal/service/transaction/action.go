package transaction

import (
	"fmt"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
)

// Action is a compensating operation recorded on the rollback stack.
// Actions are data: they describe what to undo and are executed by Executor.
// The set of kinds is closed.
type Action interface {
	fmt.Stringer

	isAction()
}

// RemovePath deletes a file or an empty directory created by the transaction.
type RemovePath struct {
	Path string
}

func (RemovePath) isAction() {}

func (a RemovePath) String() string {
	return "remove " + a.Path
}

// RestoreBackup copies a backup over the file it was taken from.
type RestoreBackup struct {
	Record install.BackupRecord
}

func (RestoreBackup) isAction() {}

func (a RestoreBackup) String() string {
	return fmt.Sprintf("restore %s from %s", a.Record.Original, a.Record.Backup)
}

// DeleteServiceAccount removes an account created by the transaction.
type DeleteServiceAccount struct {
	Name string
}

func (DeleteServiceAccount) isAction() {}

func (a DeleteServiceAccount) String() string {
	return "delete service account " + a.Name
}

// DisableService disables a unit enabled by the transaction.
type DisableService struct {
	Unit string
}

func (DisableService) isAction() {}

func (a DisableService) String() string {
	return "disable service " + a.Unit
}

// StopService stops a unit started by the transaction.
type StopService struct {
	Unit string
}

func (StopService) isAction() {}

func (a StopService) String() string {
	return "stop service " + a.Unit
}

// StartService starts a unit the transaction stopped.
type StartService struct {
	Unit string
}

func (StartService) isAction() {}

func (a StartService) String() string {
	return "start service " + a.Unit
}

// RemoveServiceUnit unregisters a unit the transaction wrote.
type RemoveServiceUnit struct {
	Unit string
	Path string
}

func (RemoveServiceUnit) isAction() {}

func (a RemoveServiceUnit) String() string {
	if a.Path == "" {
		return "remove service unit " + a.Unit
	}

	return fmt.Sprintf("remove service unit %s (%s)", a.Unit, a.Path)
}

// RestoreServiceUnit puts back a unit file the transaction overwrote and
// reloads the service manager so later compensations see the old definition.
type RestoreServiceUnit struct {
	Unit   string
	Record install.BackupRecord
}

func (RestoreServiceUnit) isAction() {}

func (a RestoreServiceUnit) String() string {
	return fmt.Sprintf("restore service unit %s from %s", a.Unit, a.Record.Backup)
}

// RemoveUnitOverride deletes a unit file the transaction wrote over a unit that
// was already registered elsewhere, e.g. a vendor unit, and reloads the manager.
// The registration itself is left alone.
type RemoveUnitOverride struct {
	Unit string
	Path string
}

func (RemoveUnitOverride) isAction() {}

func (a RemoveUnitOverride) String() string {
	return fmt.Sprintf("remove unit file %s of %s", a.Path, a.Unit)
}
