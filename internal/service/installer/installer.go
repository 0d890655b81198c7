package installer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oshokin/mediamtx-installer/internal/config"
	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/logger"
	"github.com/oshokin/mediamtx-installer/internal/repository/lock"
	"github.com/oshokin/mediamtx-installer/internal/repository/receipt"
	"github.com/oshokin/mediamtx-installer/internal/service/fetcher"
	"github.com/oshokin/mediamtx-installer/internal/service/probe"
	"github.com/oshokin/mediamtx-installer/internal/service/registrar"
	"github.com/oshokin/mediamtx-installer/internal/service/reporter"
	"github.com/oshokin/mediamtx-installer/internal/service/transaction"
)

const (
	loggerName      = "mediamtx-installer"
	workspacePrefix = "mediamtx-installer-"
)

// Run installs the media server and is the public entry point for the CLI.
// The returned error is classified; install.ExitCode maps it to the process exit code.
func Run(ctx context.Context, opts *Options) error {
	if opts == nil {
		opts = new(Options)
	}

	ctx = logger.WithName(ctx, loggerName)

	settings, err := config.LoadOrDefault(opts.SettingsPath)
	if err != nil {
		return install.Wrap(install.KindConfig, "load settings", err)
	}

	collab := opts.Collaborators.withDefaults(settings, opts.AssumeYes)

	arch, err := probe.DetectArch(opts.Overrides.Arch, collab.KernelArch)
	if err != nil {
		return err
	}

	target, err := settings.Target(arch, &opts.Overrides, collab.Now())
	if err != nil {
		return install.Wrap(install.KindConfig, "resolve installation target", err)
	}

	if err = collab.requireRoot(target); err != nil {
		return err
	}

	ctx, closeLog, err := openRunLog(ctx, target)
	if err != nil {
		return err
	}

	defer closeLog()

	outcome := execute(ctx, settings, collab, target)

	report(ctx, outcome, opts, collab.Now())

	return outcome.Err
}

// openRunLog tees the logger into the per-run log file. A dry run creates
// nothing on disk and logs to the console only.
func openRunLog(ctx context.Context, target *install.Target) (context.Context, func(), error) {
	if target.DryRun {
		return ctx, func() {}, nil
	}

	l, closer, err := logger.NewWithFile(logger.LevelEnabler(), target.LogFile)
	if err != nil {
		return ctx, nil, install.Wrap(install.KindPermission, "open run log", err)
	}

	ctx = logger.WithName(logger.ToContext(ctx, l), loggerName)

	logger.InfoKV(ctx, "Logging to file", "path", target.LogFile)

	return ctx, func() {
		if closeErr := closer.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "close run log: %v\n", closeErr)
		}
	}, nil
}

// execute runs the transaction under the host lock and collects the outcome.
func execute(ctx context.Context, settings *config.Config, collab *Collaborators, target *install.Target) *reporter.Outcome {
	outcome := &reporter.Outcome{Target: target}

	if !target.DryRun {
		runLock, err := lock.Acquire(ctx, target.LockPath())
		if err != nil {
			outcome.Err = err
			return outcome
		}

		defer func() {
			if releaseErr := runLock.Release(); releaseErr != nil {
				logger.WarnKV(ctx, "Unable to release the run lock", "path", target.LockPath(), "error", releaseErr)
			}
		}()
	}

	workspace, err := fetcher.NewWorkspace(workspacePrefix)
	if err != nil {
		outcome.Err = install.Wrap(install.KindInstall, "create workspace", err)
		return outcome
	}

	defer func() {
		if closeErr := workspace.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Unable to remove the download workspace", "path", workspace.Dir(), "error", closeErr)
		}
	}()

	r := &run{
		settings:  settings,
		collab:    collab,
		workspace: workspace,
		fetcher:   fetcher.New(workspace, settings.Download, collab.downloaders()...),
		registrar: registrar.New(collab.Services, collab.Accounts),
		receipts:  receipt.NewFileRepository(target.ReceiptPath()),
	}

	logger.InfoKV(ctx, "Service manager selected", "manager", collab.Services.Name())

	tx := transaction.Begin(ctx, target,
		transaction.NewExecutor(collab.Services, collab.Accounts),
		transaction.WithClock(collab.Now))

	outcome.Err = r.apply(ctx, tx)
	outcome.Journal = tx.Journal()
	outcome.Backups = tx.Backups()
	outcome.Verification = r.verification

	return outcome
}

// apply runs every step and commits. The first failure has already been rolled back.
func (r *run) apply(ctx context.Context, tx *transaction.Transaction) error {
	for _, step := range r.steps() {
		if err := tx.RunStep(ctx, step); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return tx.Abort(ctx, install.Wrap(install.KindInstall, "commit", err))
	}

	return nil
}

// report prints the summary and exports metrics when asked to.
func report(ctx context.Context, outcome *reporter.Outcome, opts *Options, now time.Time) {
	if outcome.Verification != nil && !outcome.Verification.Verified() && outcome.Err == nil {
		logger.WarnKV(ctx, "Installation finished with reduced assurance", "reason", outcome.Verification.Reason)
	}

	summary := reporter.Summary(outcome)
	if outcome.Err != nil {
		logger.ErrorKV(ctx, "Installation failed", "exit_code", outcome.ExitCode(), "error", outcome.Err)
	}

	logger.Debug(ctx, summary)

	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}

	if _, err := fmt.Fprint(out, summary); err != nil {
		logger.WarnKV(ctx, "Unable to print the summary", "error", err)
	}

	if opts.MetricsFile == "" {
		return
	}

	metrics := reporter.NewMetrics()
	metrics.Observe(outcome, now)

	if err := metrics.WriteFile(opts.MetricsFile); err != nil {
		logger.WarnKV(ctx, "Unable to write metrics", "path", opts.MetricsFile, "error", err)
		return
	}

	logger.InfoKV(ctx, "Metrics written", "path", opts.MetricsFile)
}
