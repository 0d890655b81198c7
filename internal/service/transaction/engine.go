package transaction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/logger"
	"github.com/oshokin/mediamtx-installer/internal/service/common"
)

const (
	// DefaultBackupMode is used when a backup record carries no mode.
	DefaultBackupMode os.FileMode = 0o600

	// backupLayout timestamps backup copies.
	backupLayout = "20060102-150405"

	backupDirMode os.FileMode = 0o700
)

var (
	// ErrInvalidTransition is returned for a state change the machine does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrFinished is returned when a step is run on a committed or rolled back transaction.
	ErrFinished = errors.New("transaction already finished")
	// ErrReadOnlyViolation is returned when a read-only step records compensations in a dry run.
	ErrReadOnlyViolation = errors.New("read-only step recorded rollback actions")
)

// Step is one forward action of the installation.
type Step interface {
	// Name identifies the step in logs and the journal.
	Name() string
	// Phase is the state the transaction is in while the step runs.
	Phase() install.State
	// Plan describes what Apply would change, for dry runs.
	Plan(t *install.Target) string
	// Apply performs the forward action and returns the compensations of the
	// mutations it completed. Actions returned together with an error still
	// describe completed mutations and are recorded before the rollback.
	Apply(ctx context.Context, tx *Transaction) ([]Action, error)
}

// ReadOnlyStep marks steps that never mutate the host and therefore also run in dry-run mode.
type ReadOnlyStep interface {
	ReadOnly() bool
}

// Transaction is the handle of one installation run.
// Steps run strictly one after another; the mutex only guards readers such as the reporter.
type Transaction struct {
	mu sync.Mutex

	id       string
	target   *install.Target
	state    install.State
	stack    Stack
	executor *Executor
	journal  Journal
	backups  []install.BackupRecord
	now      func() time.Time
}

// Option customizes a transaction.
type Option func(*Transaction)

// WithClock replaces time.Now, e.g. for deterministic backup names in tests.
func WithClock(now func() time.Time) Option {
	return func(tx *Transaction) {
		tx.now = now
	}
}

// WithID fixes the transaction identifier.
func WithID(id string) Option {
	return func(tx *Transaction) {
		tx.id = id
	}
}

// Begin starts a transaction for target in the Init state. Nothing is written until a step runs.
func Begin(ctx context.Context, target *install.Target, executor *Executor, opts ...Option) *Transaction {
	tx := &Transaction{
		id:       uuid.NewString(),
		target:   target,
		state:    install.StateInit,
		executor: executor,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(tx)
	}

	tx.journal.ID = tx.id
	tx.journal.DryRun = target.DryRun
	tx.journal.Started = tx.now()

	logger.InfoKV(ctx, "Transaction started",
		"tx", tx.id, "version", target.Version, "arch", target.Arch, "dry_run", target.DryRun)

	return tx
}

// ID returns the transaction identifier.
func (tx *Transaction) ID() string {
	return tx.id
}

// Target returns the immutable run description.
func (tx *Transaction) Target() *install.Target {
	return tx.target
}

// DryRun reports whether the transaction only simulates.
func (tx *Transaction) DryRun() bool {
	return tx.target.DryRun
}

// State returns the current state.
func (tx *Transaction) State() install.State {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	return tx.state
}

// Pending returns the rollback stack content in push order.
func (tx *Transaction) Pending() []Action {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	return tx.stack.Snapshot()
}

// Backups returns every backup taken by the transaction.
func (tx *Transaction) Backups() []install.BackupRecord {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	return append([]install.BackupRecord(nil), tx.backups...)
}

// Journal returns a copy of the step and rollback history.
func (tx *Transaction) Journal() Journal {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	return tx.journal.clone()
}

// transition validates and applies a state change.
func (tx *Transaction) transition(ctx context.Context, next install.State) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	current := tx.state
	if current == next && !current.IsTerminal() {
		return nil
	}

	if !current.CanTransition(next) {
		return fmt.Errorf("%s -> %s: %w", current, next, ErrInvalidTransition)
	}

	tx.state = next
	tx.journal.States = append(tx.journal.States, next)

	logger.InfoKV(ctx, "Transaction state changed", "tx", tx.id, "from", current, "to", next)

	return nil
}

// RunStep executes step. A failing step, an invalid transition or a cancelled
// context triggers Abort and the original cause is returned.
func (tx *Transaction) RunStep(ctx context.Context, step Step) error {
	if tx.State().IsTerminal() {
		return fmt.Errorf("step %s: %w", step.Name(), ErrFinished)
	}

	if err := ctx.Err(); err != nil {
		return tx.Abort(ctx, install.Wrap(install.KindInterrupted, "before "+step.Name(), err))
	}

	if err := tx.transition(ctx, step.Phase()); err != nil {
		return tx.Abort(ctx, install.Wrap(install.KindInstall, step.Name(), err))
	}

	entry := StepEntry{
		Name:    step.Name(),
		Phase:   step.Phase(),
		Started: tx.now(),
	}

	if tx.DryRun() && !isReadOnly(step) {
		entry.Plan = step.Plan(tx.target)
		entry.Simulated = true
		entry.Finished = tx.now()
		tx.record(entry, nil)

		logger.InfoKV(ctx, "Dry run: step skipped", "step", step.Name(), "plan", entry.Plan)

		return nil
	}

	logger.InfoKV(ctx, "Running step", "step", step.Name(), "phase", step.Phase())

	actions, err := step.Apply(ctx, tx)
	entry.Finished = tx.now()

	if tx.DryRun() && len(actions) > 0 {
		err = errors.Join(err, fmt.Errorf("step %s: %w", step.Name(), ErrReadOnlyViolation))
		actions = nil
	}

	tx.record(entry, actions)

	if err != nil {
		tx.failLastEntry(err)
		return tx.Abort(ctx, err)
	}

	return nil
}

func isReadOnly(step Step) bool {
	ro, ok := step.(ReadOnlyStep)

	return ok && ro.ReadOnly()
}

// record pushes actions and appends the journal entry.
func (tx *Transaction) record(entry StepEntry, actions []Action) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	for _, a := range actions {
		if a == nil {
			continue
		}

		tx.stack.Push(a)
		entry.Actions = append(entry.Actions, a.String())
	}

	tx.journal.Steps = append(tx.journal.Steps, entry)
}

func (tx *Transaction) failLastEntry(err error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if n := len(tx.journal.Steps); n > 0 {
		tx.journal.Steps[n-1].Err = err.Error()
	}
}

// Commit finishes a successful transaction and discards the rollback stack.
func (tx *Transaction) Commit(ctx context.Context) error {
	if err := tx.transition(ctx, install.StateComplete); err != nil {
		return err
	}

	tx.mu.Lock()
	tx.stack.Clear()
	tx.journal.Finished = tx.now()
	tx.mu.Unlock()

	logger.InfoKV(ctx, "Transaction committed", "tx", tx.id, "backups", len(tx.Backups()))

	return nil
}

// Abort unwinds the rollback stack in reverse order and returns cause.
// A failing compensation is logged and collected but never stops the unwind.
// Rollback ignores cancellation of ctx so an interrupt cannot cut it short.
func (tx *Transaction) Abort(ctx context.Context, cause error) error {
	if cause == nil {
		cause = install.Errorf(install.KindInstall, "transaction aborted")
	}

	if tx.State().IsTerminal() {
		return cause
	}

	ctx = context.WithoutCancel(ctx)

	logger.ErrorKV(ctx, "Step failed", "tx", tx.id, "error", cause)

	if err := tx.transition(ctx, install.StateFailed); err != nil {
		logger.ErrorKV(ctx, "Unable to mark transaction as failed", "error", err)
	}

	if pending := len(tx.Pending()); pending > 0 {
		logger.WarnKV(ctx, "Rolling back changes...", "tx", tx.id, "actions", pending)
	}

	var rollbackErr *multierror.Error

	for {
		tx.mu.Lock()
		action, ok := tx.stack.Pop()
		tx.mu.Unlock()

		if !ok {
			break
		}

		err := tx.executor.Execute(ctx, action)
		outcome := RollbackEntry{Action: action.String(), At: tx.now()}

		if err != nil {
			wrapped := install.Wrap(install.KindRollbackAction, action.String(), err)
			rollbackErr = multierror.Append(rollbackErr, wrapped)
			outcome.Err = err.Error()

			logger.ErrorKV(ctx, "Rollback action failed", "action", action.String(), "error", err)
		} else {
			logger.InfoKV(ctx, "Rollback action completed", "action", action.String())
		}

		tx.mu.Lock()
		tx.journal.Rollback = append(tx.journal.Rollback, outcome)
		tx.mu.Unlock()
	}

	if err := tx.transition(ctx, install.StateRolledBack); err != nil {
		logger.ErrorKV(ctx, "Unable to mark transaction as rolled back", "error", err)
	}

	tx.mu.Lock()
	tx.journal.Finished = tx.now()
	tx.journal.Cause = cause.Error()
	tx.journal.RollbackErr = rollbackErr.ErrorOrNil()
	tx.mu.Unlock()

	if rollbackErr != nil {
		logger.WarnKV(ctx, "Rollback finished with errors", "tx", tx.id, "failed", rollbackErr.Len())
	} else {
		logger.InfoKV(ctx, "Rollback finished", "tx", tx.id)
	}

	return cause
}

// Backup durably copies path into the transaction backup directory before a step
// overwrites it. A missing path yields a nil record. The caller records exactly one
// RestoreBackup for the returned record once its overwrite succeeded.
func (tx *Transaction) Backup(ctx context.Context, path string) (*install.BackupRecord, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil //nolint:nilnil // Nothing to back up is not an error.
	}

	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.Mode().IsRegular() {
		return nil, install.Errorf(install.KindInstall, "%s is not a regular file", path)
	}

	stamp := tx.now()
	dir := filepath.Join(tx.target.BackupDir, tx.id)

	if err = os.MkdirAll(dir, backupDirMode); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	backupPath := filepath.Join(dir, filepath.Base(path)+".bak-"+stamp.Format(backupLayout))
	if err = common.CopyFileDurable(path, backupPath, info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("back up %s: %w", path, err)
	}

	digest, err := common.FileChecksumHex(backupPath, common.DefaultChecksumFunction)
	if err != nil {
		return nil, fmt.Errorf("checksum backup %s: %w", backupPath, err)
	}

	record := install.BackupRecord{
		Original:  path,
		Backup:    backupPath,
		Timestamp: stamp,
		Mode:      info.Mode().Perm(),
		Digest:    digest,
	}

	tx.mu.Lock()
	tx.backups = append(tx.backups, record)
	tx.mu.Unlock()

	logger.InfoKV(ctx, "Backed up file", "original", path, "backup", backupPath)

	return &record, nil
}
