package transaction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
)

// funcStep adapts a function to the Step interface.
type funcStep struct {
	name     string
	phase    install.State
	readOnly bool
	apply    func(ctx context.Context, tx *Transaction) ([]Action, error)
}

func (s *funcStep) Name() string                { return s.name }
func (s *funcStep) Phase() install.State        { return s.phase }
func (s *funcStep) Plan(*install.Target) string { return "would run " + s.name }
func (s *funcStep) ReadOnly() bool              { return s.readOnly }
func (s *funcStep) Apply(ctx context.Context, tx *Transaction) ([]Action, error) {
	return s.apply(ctx, tx)
}

// recordingServices remembers the order of service compensations.
type recordingServices struct {
	calls    []string
	failing  map[string]bool
	onReload func()
}

func (r *recordingServices) do(call string) error {
	r.calls = append(r.calls, call)
	if r.failing[call] {
		return fmt.Errorf("%s: %w", call, errBoom)
	}

	return nil
}

func (r *recordingServices) Start(_ context.Context, unit string) error { return r.do("start " + unit) }
func (r *recordingServices) Stop(_ context.Context, unit string) error  { return r.do("stop " + unit) }
func (r *recordingServices) Disable(_ context.Context, unit string) error {
	return r.do("disable " + unit)
}
func (r *recordingServices) RemoveUnit(_ context.Context, unit, path string) error {
	if err := r.do("remove-unit " + unit); err != nil {
		return err
	}

	if path == "" {
		return nil
	}

	return os.Remove(path)
}

func (r *recordingServices) Reload(context.Context) error {
	if r.onReload != nil {
		r.onReload()
	}

	return r.do("reload")
}

var errBoom = errors.New("boom")

func newTarget(t *testing.T, dryRun bool) *install.Target {
	t.Helper()

	root := t.TempDir()

	return &install.Target{
		Version:     "v1.12.2",
		Arch:        "amd64",
		BinaryName:  "mediamtx",
		InstallDir:  filepath.Join(root, "bin"),
		ConfigFile:  filepath.Join(root, "etc", "mediamtx.yml"),
		LogDir:      filepath.Join(root, "log"),
		BackupDir:   filepath.Join(root, "backup"),
		UnitDir:     filepath.Join(root, "units"),
		StateDir:    filepath.Join(root, "state"),
		ServiceName: "mediamtx",
		DryRun:      dryRun,
	}
}

// writeStep writes contents to path, backing up a previous file.
func writeStep(name string, phase install.State, path, contents string) *funcStep {
	return &funcStep{
		name:  name,
		phase: phase,
		apply: func(ctx context.Context, tx *Transaction) ([]Action, error) {
			record, err := tx.Backup(ctx, path)
			if err != nil {
				return nil, err
			}

			if err = os.WriteFile(path, []byte(contents), 0o640); err != nil {
				return nil, err
			}

			if record != nil {
				return []Action{RestoreBackup{Record: *record}}, nil
			}

			return []Action{RemovePath{Path: path}}, nil
		},
	}
}

func failStep(phase install.State) *funcStep {
	return &funcStep{
		name:  "failing",
		phase: phase,
		apply: func(context.Context, *Transaction) ([]Action, error) {
			return nil, install.Wrap(install.KindInstall, "failing", errBoom)
		},
	}
}

func noopStep(phase install.State) *funcStep {
	return &funcStep{
		name:     "noop " + string(phase),
		phase:    phase,
		readOnly: true,
		apply:    func(context.Context, *Transaction) ([]Action, error) { return nil, nil },
	}
}

// snapshot reads every regular file under dir.
func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()

	files := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		contents, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		files[path] = string(contents)

		return nil
	})
	require.NoError(t, err)

	return files
}

// TestRollbackAtEveryFailureIndex fails after each prefix of successful steps and
// checks the affected files are byte-identical to their original state afterwards.
func TestRollbackAtEveryFailureIndex(t *testing.T) {
	t.Parallel()

	phases := []install.State{install.StateInstalling, install.StateConfiguring, install.StateRegisteringService}

	for failAt := 0; failAt <= 3; failAt++ {
		t.Run(fmt.Sprintf("fail_after_%d", failAt), func(t *testing.T) {
			t.Parallel()

			target := newTarget(t, false)
			root := filepath.Dir(target.InstallDir)
			work := filepath.Join(root, "work")
			require.NoError(t, os.MkdirAll(work, 0o755))

			existing := filepath.Join(work, "existing.yml")
			require.NoError(t, os.WriteFile(existing, []byte("original: true\n"), 0o600))

			before := snapshot(t, work)

			steps := []*funcStep{
				writeStep("binary", phases[0], filepath.Join(work, "mediamtx"), "new binary"),
				writeStep("config", phases[1], existing, "original: false\n"),
				writeStep("unit", phases[2], filepath.Join(work, "mediamtx.service"), "[Unit]"),
			}

			tx := Begin(context.Background(), target, NewExecutor(nil, nil))
			for _, s := range []install.State{install.StateProbing, install.StateFetching, install.StateVerifying} {
				require.NoError(t, tx.RunStep(context.Background(), noopStep(s)))
			}

			for i := range failAt {
				require.NoError(t, tx.RunStep(context.Background(), steps[i]))
			}

			phase := install.StateRegisteringService
			if failAt < len(phases) {
				phase = phases[failAt]
			}

			err := tx.RunStep(context.Background(), failStep(phase))
			require.ErrorIs(t, err, errBoom)
			require.Equal(t, install.StateRolledBack, tx.State())
			require.Empty(t, tx.Pending())
			require.Equal(t, before, snapshot(t, work))

			journal := tx.Journal()
			require.Len(t, journal.Rollback, failAt)
			require.Contains(t, journal.States, install.StateFailed)

			if failAt > 0 {
				require.Equal(t, RollbackFull, journal.Quality())
			} else {
				require.Equal(t, RollbackNone, journal.Quality())
			}
		})
	}
}

// TestAbortRunsInReverseAndContinuesAfterFailure checks LIFO order and best-effort semantics.
func TestAbortRunsInReverseAndContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	services := &recordingServices{failing: map[string]bool{"disable mediamtx.service": true}}
	tx := Begin(context.Background(), newTarget(t, false), NewExecutor(services, nil))

	pushAll := &funcStep{
		name:  "register",
		phase: install.StateProbing,
		apply: func(context.Context, *Transaction) ([]Action, error) {
			return []Action{
				RemoveServiceUnit{Unit: "mediamtx.service"},
				DisableService{Unit: "mediamtx.service"},
				StopService{Unit: "mediamtx.service"},
			}, nil
		},
	}

	require.NoError(t, tx.RunStep(context.Background(), pushAll))
	require.Len(t, tx.Pending(), 3)

	cause := install.Wrap(install.KindService, "start", errBoom)
	err := tx.Abort(context.Background(), cause)
	require.Same(t, cause, err)

	require.Equal(t, []string{
		"stop mediamtx.service",
		"disable mediamtx.service",
		"remove-unit mediamtx.service",
	}, services.calls)

	journal := tx.Journal()
	require.Equal(t, RollbackPartial, journal.Quality())
	require.Error(t, journal.RollbackErr)
	require.Equal(t, install.KindRollbackAction, install.KindOf(journal.RollbackErr))
	require.Equal(t, install.StateRolledBack, tx.State())
}

// TestDryRunNeverMutates ensures simulated steps do not run and the stack stays empty.
func TestDryRunNeverMutates(t *testing.T) {
	t.Parallel()

	target := newTarget(t, true)
	path := filepath.Join(target.InstallDir, "mediamtx")

	tx := Begin(context.Background(), target, NewExecutor(nil, nil))

	walk := []install.State{
		install.StateProbing, install.StateFetching, install.StateVerifying,
		install.StateInstalling, install.StateConfiguring, install.StateRegisteringService,
	}
	for _, phase := range walk {
		require.NoError(t, tx.RunStep(context.Background(), writeStep("write "+string(phase), phase, path, "x")))
		require.Empty(t, tx.Pending())
	}

	require.NoError(t, tx.Commit(context.Background()))
	require.Equal(t, install.StateComplete, tx.State())

	_, err := os.Stat(target.InstallDir)
	require.ErrorIs(t, err, os.ErrNotExist)

	journal := tx.Journal()
	require.Len(t, journal.Steps, len(walk))

	for _, step := range journal.Steps {
		require.True(t, step.Simulated)
		require.NotEmpty(t, step.Plan)
	}
}

// TestDryRunReadOnlyStepMustNotPush rejects compensations from steps that claim to be read-only.
func TestDryRunReadOnlyStepMustNotPush(t *testing.T) {
	t.Parallel()

	tx := Begin(context.Background(), newTarget(t, true), NewExecutor(nil, nil))

	liar := &funcStep{
		name:     "liar",
		phase:    install.StateProbing,
		readOnly: true,
		apply: func(context.Context, *Transaction) ([]Action, error) {
			return []Action{RemovePath{Path: "/tmp/x"}}, nil
		},
	}

	err := tx.RunStep(context.Background(), liar)
	require.ErrorIs(t, err, ErrReadOnlyViolation)
	require.Empty(t, tx.Pending())
	require.Empty(t, tx.Journal().Rollback)
}

// TestCancelledContextAbortsAtStepBoundary treats an interrupt like a step failure.
func TestCancelledContextAbortsAtStepBoundary(t *testing.T) {
	t.Parallel()

	target := newTarget(t, false)
	path := filepath.Join(filepath.Dir(target.InstallDir), "created")

	ctx, cancel := context.WithCancel(context.Background())
	tx := Begin(ctx, target, NewExecutor(nil, nil))

	require.NoError(t, tx.RunStep(ctx, writeStep("create", install.StateProbing, path, "data")))

	cancel()

	ran := false
	next := &funcStep{
		name:  "next",
		phase: install.StateFetching,
		apply: func(context.Context, *Transaction) ([]Action, error) {
			ran = true
			return nil, nil
		},
	}

	err := tx.RunStep(ctx, next)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, install.KindInterrupted, install.KindOf(err))
	require.False(t, ran)
	require.Equal(t, install.StateRolledBack, tx.State())

	_, statErr := os.Stat(path)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

// TestPhasesCannotBeSkipped refuses to install before verification.
func TestPhasesCannotBeSkipped(t *testing.T) {
	t.Parallel()

	tx := Begin(context.Background(), newTarget(t, false), NewExecutor(nil, nil))
	require.NoError(t, tx.RunStep(context.Background(), noopStep(install.StateProbing)))

	err := tx.RunStep(context.Background(), noopStep(install.StateInstalling))
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, install.StateRolledBack, tx.State())

	err = tx.RunStep(context.Background(), noopStep(install.StateProbing))
	require.ErrorIs(t, err, ErrFinished)
}

// TestCommitRequiresLastPhase only completes after service registration.
func TestCommitRequiresLastPhase(t *testing.T) {
	t.Parallel()

	tx := Begin(context.Background(), newTarget(t, false), NewExecutor(nil, nil))
	require.NoError(t, tx.RunStep(context.Background(), noopStep(install.StateProbing)))
	require.ErrorIs(t, tx.Commit(context.Background()), ErrInvalidTransition)
}

// TestBackupIsDurableCopy verifies backup placement, content and digest.
func TestBackupIsDurableCopy(t *testing.T) {
	t.Parallel()

	target := newTarget(t, false)
	stamp := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	tx := Begin(context.Background(), target, NewExecutor(nil, nil),
		WithID("tx-1"), WithClock(func() time.Time { return stamp }))

	original := filepath.Join(t.TempDir(), "mediamtx.yml")
	require.NoError(t, os.WriteFile(original, []byte("rtspAddress: :8554\n"), 0o640))

	record, err := tx.Backup(context.Background(), original)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, filepath.Join(target.BackupDir, "tx-1", "mediamtx.yml.bak-20261019-120000"), record.Backup)
	require.Equal(t, os.FileMode(0o640), record.Mode)
	require.Len(t, record.Digest, 64)

	contents, err := os.ReadFile(record.Backup)
	require.NoError(t, err)
	require.Equal(t, "rtspAddress: :8554\n", string(contents))

	missing, err := tx.Backup(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	require.Nil(t, missing)
	require.Len(t, tx.Backups(), 1)
}

// TestRestoreBackupRejectsTamperedCopy refuses to restore a backup whose digest changed.
func TestRestoreBackupRejectsTamperedCopy(t *testing.T) {
	t.Parallel()

	tx := Begin(context.Background(), newTarget(t, false), NewExecutor(nil, nil))

	original := filepath.Join(t.TempDir(), "unit.service")
	require.NoError(t, os.WriteFile(original, []byte("[Unit]\n"), 0o644))

	record, err := tx.Backup(context.Background(), original)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(record.Backup, []byte("tampered"), 0o644))

	err = NewExecutor(nil, nil).Execute(context.Background(), RestoreBackup{Record: *record})
	require.ErrorIs(t, err, errBackupDigestDiffer)
}

// TestRestoreServiceUnitReloadsAfterRestore makes the manager reread the unit only once the old file is back.
func TestRestoreServiceUnitReloadsAfterRestore(t *testing.T) {
	t.Parallel()

	tx := Begin(context.Background(), newTarget(t, false), NewExecutor(nil, nil))

	unitPath := filepath.Join(t.TempDir(), "mediamtx.service")
	require.NoError(t, os.WriteFile(unitPath, []byte("[Service]\nExecStart=/opt/old\n"), 0o644))

	record, err := tx.Backup(context.Background(), unitPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(unitPath, []byte("[Service]\nExecStart=/opt/new\n"), 0o644))

	var seenAtReload string

	services := &recordingServices{onReload: func() {
		contents, readErr := os.ReadFile(unitPath)
		require.NoError(t, readErr)

		seenAtReload = string(contents)
	}}

	action := RestoreServiceUnit{Unit: "mediamtx.service", Record: *record}
	require.NoError(t, NewExecutor(services, nil).Execute(context.Background(), action))
	require.Equal(t, []string{"reload"}, services.calls)
	require.Equal(t, "[Service]\nExecStart=/opt/old\n", seenAtReload)
}

// TestRemoveUnitOverrideKeepsRegistration deletes only the written file and reloads.
func TestRemoveUnitOverrideKeepsRegistration(t *testing.T) {
	t.Parallel()

	unitPath := filepath.Join(t.TempDir(), "mediamtx.service")
	require.NoError(t, os.WriteFile(unitPath, []byte("[Unit]\n"), 0o644))

	services := &recordingServices{onReload: func() {
		require.NoFileExists(t, unitPath)
	}}

	action := RemoveUnitOverride{Unit: "mediamtx.service", Path: unitPath}
	require.NoError(t, NewExecutor(services, nil).Execute(context.Background(), action))
	require.Equal(t, []string{"reload"}, services.calls)
}
