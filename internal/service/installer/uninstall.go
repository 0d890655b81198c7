package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/oshokin/mediamtx-installer/internal/config"
	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/logger"
	"github.com/oshokin/mediamtx-installer/internal/repository/lock"
	"github.com/oshokin/mediamtx-installer/internal/repository/receipt"
	"github.com/oshokin/mediamtx-installer/internal/service/common"
	"github.com/oshokin/mediamtx-installer/internal/service/transaction"
)

const uninstallBackupLayout = "20060102-150405"

var errUninstallDeclined = errors.New("operator declined to uninstall")

// Uninstall removes what the installation receipt describes. The configuration
// is copied into the backup directory first. Every removal is attempted even
// when an earlier one failed; the receipt is kept until all of them succeed.
func Uninstall(ctx context.Context, opts *Options) error {
	if opts == nil {
		opts = new(Options)
	}

	ctx = logger.WithName(ctx, loggerName)

	settings, err := config.LoadOrDefault(opts.SettingsPath)
	if err != nil {
		return install.Wrap(install.KindConfig, "load settings", err)
	}

	collab := opts.Collaborators.withDefaults(settings, opts.AssumeYes)

	// The architecture only shapes download URLs, which uninstall never uses.
	target, err := settings.Target("", &opts.Overrides, collab.Now())
	if err != nil {
		return install.Wrap(install.KindConfig, "resolve installation target", err)
	}

	if err = collab.requireRoot(target); err != nil {
		return err
	}

	receipts := receipt.NewFileRepository(target.ReceiptPath())

	rec, err := receipts.Load(ctx)
	if errors.Is(err, receipt.ErrNotFound) {
		logger.InfoKV(ctx, "Nothing to uninstall, no installation receipt found", "path", receipts.Path())
		return nil
	}

	if err != nil {
		return install.Wrap(install.KindInstall, "load receipt", err)
	}

	actions := removalActions(rec)

	if target.DryRun {
		for _, action := range actions {
			logger.InfoKV(ctx, "Dry run: would run", "action", action.String())
		}

		return nil
	}

	runLock, err := lock.Acquire(ctx, target.LockPath())
	if err != nil {
		return err
	}

	defer func() {
		if releaseErr := runLock.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Unable to release the run lock", "path", target.LockPath(), "error", releaseErr)
		}
	}()

	proceed, err := collab.Prompter.Confirm(ctx,
		fmt.Sprintf("Remove MediaMTX %s installed at %s?", displayVersion(rec.Version), rec.BinaryPath))
	if err != nil {
		return install.Wrap(install.KindDeclined, "confirm uninstall", err)
	}

	if !proceed {
		return install.Wrap(install.KindDeclined, "uninstall", errUninstallDeclined)
	}

	if rec.ConfigFile != "" {
		saved, saveErr := saveConfig(rec.ConfigFile, target.BackupDir, collab.Now().Format(uninstallBackupLayout))
		if saveErr != nil {
			return install.Wrap(install.KindInstall, "back up configuration", saveErr)
		}

		if saved != "" {
			logger.InfoKV(ctx, "Configuration backed up", "backup", saved)
		}
	}

	executor := transaction.NewExecutor(collab.Services, collab.Accounts)

	var result *multierror.Error

	for _, action := range actions {
		if execErr := executor.Execute(ctx, action); execErr != nil {
			logger.WarnKV(ctx, "Uninstall action failed", "action", action.String(), "error", execErr)
			result = multierror.Append(result, fmt.Errorf("%s: %w", action, execErr))

			continue
		}

		logger.InfoKV(ctx, "Uninstall action completed", "action", action.String())
	}

	if err = result.ErrorOrNil(); err != nil {
		return install.Wrap(install.KindInstall, "uninstall", err)
	}

	if err = receipts.Delete(ctx); err != nil {
		return install.Wrap(install.KindInstall, "remove receipt", err)
	}

	logger.InfoKV(ctx, "MediaMTX uninstalled", "version", rec.Version)

	return nil
}

// removalActions lists what undoes an installation, in execution order.
func removalActions(rec *install.Receipt) []transaction.Action {
	var actions []transaction.Action

	if rec.UnitName != "" {
		actions = append(actions,
			transaction.StopService{Unit: rec.UnitName},
			transaction.DisableService{Unit: rec.UnitName},
			transaction.RemoveServiceUnit{Unit: rec.UnitName, Path: rec.UnitPath},
		)
	}

	if rec.ConfigFile != "" {
		actions = append(actions, transaction.RemovePath{Path: rec.ConfigFile})
	}

	if rec.BinaryPath != "" {
		actions = append(actions, transaction.RemovePath{Path: rec.BinaryPath})
	}

	if rec.AccountCreated && rec.Account != "" {
		actions = append(actions, transaction.DeleteServiceAccount{Name: rec.Account})
	}

	return actions
}

// saveConfig copies the configuration to <backupDir>/uninstall-<stamp>/.
// A missing configuration is skipped.
func saveConfig(configFile, backupDir, stamp string) (string, error) {
	info, err := os.Stat(configFile)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}

	if err != nil {
		return "", err
	}

	dir := filepath.Join(backupDir, "uninstall-"+stamp)
	if err = os.MkdirAll(dir, common.DefaultDirMode); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	dst := filepath.Join(dir, filepath.Base(configFile))
	if err = common.CopyFileDurable(configFile, dst, info.Mode().Perm()); err != nil {
		return "", err
	}

	return dst, nil
}
