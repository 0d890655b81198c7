package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goupdate "github.com/doitdistributed/go-update"
	goversion "github.com/hashicorp/go-version"

	"github.com/oshokin/mediamtx-installer/internal/config"
	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/logger"
	"github.com/oshokin/mediamtx-installer/internal/repository/receipt"
	"github.com/oshokin/mediamtx-installer/internal/service/common"
	"github.com/oshokin/mediamtx-installer/internal/service/dependency"
	"github.com/oshokin/mediamtx-installer/internal/service/emitter"
	"github.com/oshokin/mediamtx-installer/internal/service/fetcher"
	"github.com/oshokin/mediamtx-installer/internal/service/probe"
	"github.com/oshokin/mediamtx-installer/internal/service/registrar"
	"github.com/oshokin/mediamtx-installer/internal/service/transaction"
	"github.com/oshokin/mediamtx-installer/internal/service/verifier"
	"github.com/oshokin/mediamtx-installer/internal/version"
)

var (
	errInsufficientSpace = errors.New("insufficient free disk space")
	errNotExtracted      = errors.New("no extracted binary to install")
	errDeclined          = errors.New("operator declined to reinstall")
)

// run carries what one step learns for the steps after it.
type run struct {
	settings  *config.Config
	collab    *Collaborators
	workspace *fetcher.Workspace
	fetcher   *fetcher.Fetcher
	registrar *registrar.Registrar
	receipts  receipt.Repository

	env          *probe.Environment
	existing     *install.Receipt
	artifact     *install.Artifact
	manifest     []byte
	verification *verifier.Result
	extracted    string
}

// steps returns the whole installation in execution order.
func (r *run) steps() []transaction.Step {
	steps := []transaction.Step{
		&transaction.FuncStep{
			StepName:   "probe-host",
			StepPhase:  install.StateProbing,
			Run:        r.probeHost,
			NoMutation: true,
		},
		&transaction.FuncStep{
			StepName:   "check-connectivity",
			StepPhase:  install.StateProbing,
			Run:        r.checkConnectivity,
			NoMutation: true,
		},
		&transaction.FuncStep{
			StepName:  "ensure-dependencies",
			StepPhase: install.StateProbing,
			Describe:  r.describeDependencies,
			Run:       r.ensureDependencies,
		},
		&transaction.FuncStep{
			StepName:   "detect-existing-installation",
			StepPhase:  install.StateProbing,
			Run:        r.detectExisting,
			NoMutation: true,
		},
		&transaction.FuncStep{
			StepName:  "fetch-artifact",
			StepPhase: install.StateFetching,
			Describe: func(t *install.Target) string {
				return "download " + t.ArtifactURL
			},
			Run: r.fetchArtifact,
		},
		&transaction.FuncStep{
			StepName:  "fetch-manifest",
			StepPhase: install.StateFetching,
			Describe: func(t *install.Target) string {
				return "download " + t.ChecksumURL
			},
			Run: r.fetchManifest,
		},
		&transaction.FuncStep{
			StepName:  "verify-artifact",
			StepPhase: install.StateVerifying,
			Describe: func(*install.Target) string {
				return "compare the artifact sha256 with the manifest entry"
			},
			Run: r.verifyArtifact,
		},
		&transaction.FuncStep{
			StepName:  "extract-binary",
			StepPhase: install.StateVerifying,
			Describe: func(t *install.Target) string {
				return "extract " + t.BinaryName + " from the artifact"
			},
			Run: r.extractBinary,
		},
		r.registrar.StopRunningStep(),
		&transaction.FuncStep{
			StepName:  "create-directories",
			StepPhase: install.StateInstalling,
			Describe: func(t *install.Target) string {
				return fmt.Sprintf("create %s and %s if missing", t.InstallDir, t.LogDir)
			},
			Run: r.createDirectories,
		},
		&transaction.FuncStep{
			StepName:  "install-binary",
			StepPhase: install.StateInstalling,
			Describe: func(t *install.Target) string {
				return "install " + t.BinaryPath() + ", backing up any existing binary"
			},
			Run: r.installBinary,
		},
		emitter.NewStep(),
	}

	steps = append(steps, r.registrar.Steps()...)

	return append(steps, &transaction.FuncStep{
		StepName:  "write-receipt",
		StepPhase: install.StateRegisteringService,
		Describe: func(t *install.Target) string {
			return "record the installation in " + t.ReceiptPath()
		},
		Run: r.writeReceipt,
	})
}

func (r *run) probeHost(ctx context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	target := tx.Target()

	env, err := r.collab.Prober.Probe(ctx, target)
	if err != nil {
		return nil, install.Wrap(install.KindDependency, "probe host", err)
	}

	r.env = env

	if len(env.Running) > 0 {
		logger.InfoKV(ctx, "Media server is running", "pids", env.Running)
	}

	if env.FreeBytes > 0 && env.FreeBytes < r.settings.MinFreeSpace {
		return nil, install.Wrap(install.KindInstall, target.InstallDir,
			fmt.Errorf("%d bytes free, %d required: %w", env.FreeBytes, r.settings.MinFreeSpace, errInsufficientSpace))
	}

	return nil, nil
}

func (r *run) checkConnectivity(ctx context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	return nil, r.collab.Connectivity.Check(ctx, tx.Target().ArtifactURL)
}

func (r *run) dependencyInstaller() *dependency.Installer {
	managerName := ""
	if r.env != nil {
		managerName = r.env.PackageManager
	}

	return dependency.NewInstaller(r.collab.Runner,
		dependency.ForName(r.collab.Runner, managerName), r.settings.Dependencies)
}

func (r *run) describeDependencies(*install.Target) string {
	missing := r.dependencyInstaller().Missing()
	if len(missing) == 0 {
		return "all dependencies are present"
	}

	names := make([]string, 0, len(missing))
	for _, dep := range missing {
		names = append(names, dep.Command)
	}

	return "install " + strings.Join(names, ", ")
}

func (r *run) ensureDependencies(ctx context.Context, _ *transaction.Transaction) ([]transaction.Action, error) {
	report, err := r.dependencyInstaller().Ensure(ctx)
	if err != nil {
		return nil, err
	}

	if len(report.Installed) > 0 {
		logger.InfoKV(ctx, "Dependencies installed", "commands", strings.Join(report.Installed, ", "))
	}

	return nil, nil
}

// detectExisting finds a previous installation through the receipt or the binary
// and asks whether to upgrade it unless forced.
func (r *run) detectExisting(ctx context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	target := tx.Target()

	existing, err := findExisting(ctx, r.collab.Runner, r.receipts, target)
	if err != nil {
		return nil, install.Wrap(install.KindInstall, "detect existing installation", err)
	}

	if existing == nil {
		logger.Info(ctx, "No existing installation found")
		return nil, nil
	}

	r.existing = existing

	logger.InfoKV(ctx, "Existing installation found",
		"installed", existing.Version, "requested", target.Version, "binary", existing.BinaryPath)

	logVersionChange(ctx, existing.Version, target.Version)

	switch {
	case target.Force:
		logger.Info(ctx, "Treating the existing installation as an upgrade (--force)")
		return nil, nil
	case tx.DryRun():
		logger.Info(ctx, "Dry run: a real run would ask before replacing the existing installation")
		return nil, nil
	}

	question := fmt.Sprintf("MediaMTX %s is already installed. Replace it with %s?", displayVersion(existing.Version), target.Version)

	proceed, err := r.collab.Prompter.Confirm(ctx, question)
	if err != nil {
		return nil, install.Wrap(install.KindDeclined, "confirm upgrade", err)
	}

	if !proceed {
		return nil, install.Wrap(install.KindDeclined, "existing installation", errDeclined)
	}

	return nil, nil
}

func logVersionChange(ctx context.Context, installed, requested string) {
	from, err := goversion.NewVersion(installed)
	if err != nil {
		return
	}

	to, err := goversion.NewVersion(requested)
	if err != nil {
		return
	}

	switch {
	case to.GreaterThan(from):
		logger.InfoKV(ctx, "Upgrade", "from", installed, "to", requested)
	case to.LessThan(from):
		logger.WarnKV(ctx, "Requested version is older than the installed one", "from", installed, "to", requested)
	default:
		logger.InfoKV(ctx, "Requested version is already installed, reinstalling", "version", requested)
	}
}

func displayVersion(v string) string {
	if v == "" {
		return "(unknown version)"
	}

	return v
}

func (r *run) fetchArtifact(ctx context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	artifact, err := r.fetcher.Fetch(ctx, tx.Target().ArtifactURL)
	if err != nil {
		return nil, err
	}

	r.artifact = artifact

	return nil, nil
}

// fetchManifest never fails the run: a missing manifest only lowers assurance.
func (r *run) fetchManifest(ctx context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	manifest, err := r.fetcher.FetchManifest(ctx, tx.Target().ChecksumURL)
	if err != nil {
		if install.KindOf(err) == install.KindInterrupted {
			return nil, err
		}

		logger.WarnKV(ctx, "Checksum manifest is unavailable", "url", tx.Target().ChecksumURL, "error", err)

		return nil, nil
	}

	r.manifest = manifest

	return nil, nil
}

func (r *run) verifyArtifact(ctx context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	result, err := verifier.Verify(ctx, r.artifact, r.manifest, tx.Target().RequireChecksum)
	r.verification = result

	return nil, err
}

func (r *run) extractBinary(ctx context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	dest := filepath.Join(r.workspace.Dir(), "extracted")
	if err := os.MkdirAll(dest, common.DefaultDirMode); err != nil {
		return nil, install.Wrap(install.KindExtraction, "create extraction directory", err)
	}

	path, err := fetcher.Extract(r.artifact.Path, tx.Target().BinaryName, dest)
	if err != nil {
		return nil, err
	}

	r.extracted = path

	logger.InfoKV(ctx, "Binary extracted", "path", path)

	return nil, nil
}

func (r *run) createDirectories(_ context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	target := tx.Target()

	var actions []transaction.Action

	for _, dir := range []string{target.InstallDir, target.LogDir} {
		created, err := common.EnsureDir(dir, common.DefaultDirMode)
		for _, path := range created {
			actions = append(actions, transaction.RemovePath{Path: path})
		}

		if err != nil {
			return actions, install.Wrap(install.KindInstall, "create "+dir, err)
		}
	}

	return actions, nil
}

// installBinary replaces the binary through go-update, which checks the new
// content against its digest before swapping it in.
func (r *run) installBinary(ctx context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	target := tx.Target()
	binaryPath := target.BinaryPath()

	if r.extracted == "" {
		return nil, install.Wrap(install.KindInstall, "install binary", errNotExtracted)
	}

	data, err := os.ReadFile(r.extracted)
	if err != nil {
		return nil, install.Wrap(install.KindInstall, "read extracted binary", err)
	}

	digest, err := common.FileChecksum(r.extracted, common.DefaultChecksumFunction)
	if err != nil {
		return nil, install.Wrap(install.KindInstall, "checksum extracted binary", err)
	}

	record, err := tx.Backup(ctx, binaryPath)
	if err != nil {
		return nil, install.Wrap(install.KindInstall, "back up binary", err)
	}

	var actions []transaction.Action

	if record != nil {
		actions = append(actions, transaction.RestoreBackup{Record: *record})
	} else {
		// go-update swaps an existing file, so a fresh install starts from a placeholder.
		placeholder, createErr := os.OpenFile(binaryPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, common.DefaultBinaryMode)
		if createErr != nil {
			return actions, install.Wrap(install.KindInstall, "create "+binaryPath, createErr)
		}

		actions = append(actions, transaction.RemovePath{Path: binaryPath})

		if createErr = placeholder.Close(); createErr != nil {
			return actions, install.Wrap(install.KindInstall, "create "+binaryPath, createErr)
		}
	}

	options := goupdate.Options{
		TargetPath: binaryPath,
		TargetMode: common.DefaultBinaryMode,
		Checksum:   digest,
		Hash:       common.DefaultChecksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return actions, install.Wrap(install.KindInstall, "apply binary", err)
	}

	for _, leftover := range []string{
		binaryPath + ".old",
		filepath.Join(target.InstallDir, "."+target.BinaryName+".old"),
	} {
		if removeErr := os.Remove(leftover); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			logger.WarnKV(ctx, "Unable to remove the replaced binary", "path", leftover, "error", removeErr)
		}
	}

	logger.InfoKV(ctx, "Binary installed", "path", binaryPath, "replaced", record != nil)

	return actions, nil
}

func (r *run) writeReceipt(ctx context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	target := tx.Target()

	created, err := common.EnsureDir(target.StateDir, common.DefaultDirMode)

	actions := make([]transaction.Action, 0, len(created)+1)
	for _, dir := range created {
		actions = append(actions, transaction.RemovePath{Path: dir})
	}

	if err != nil {
		return actions, install.Wrap(install.KindInstall, "create state directory", err)
	}

	record, err := tx.Backup(ctx, r.receipts.Path())
	if err != nil {
		return actions, install.Wrap(install.KindInstall, "back up receipt", err)
	}

	if record != nil {
		actions = append(actions, transaction.RestoreBackup{Record: *record})
	} else {
		actions = append(actions, transaction.RemovePath{Path: r.receipts.Path()})
	}

	account, accountCreated := r.registrar.Account()
	if r.existing != nil && r.existing.Account == account && r.existing.AccountCreated {
		// Keep ownership of an account created by an earlier run so uninstall still removes it.
		accountCreated = true
	}

	rec := &install.Receipt{
		Version:          target.Version,
		Arch:             target.Arch,
		Digest:           r.artifact.ObservedDigest,
		Verified:         r.verification.Verified(),
		BinaryPath:       target.BinaryPath(),
		ConfigFile:       target.ConfigFile,
		UnitName:         target.UnitName(),
		UnitPath:         target.UnitPath(),
		Account:          account,
		AccountCreated:   accountCreated,
		TransactionID:    tx.ID(),
		InstalledAt:      r.collab.Now().UTC(),
		InstallerVersion: version.Short(),
	}

	if actor, actorErr := common.DetectActor(); actorErr == nil {
		rec.InstalledBy = actor
		logger.DebugKV(ctx, "Recording installing actor", "actor", actor.String())
	}

	if err = r.receipts.Save(ctx, rec); err != nil {
		return actions, install.Wrap(install.KindInstall, "write receipt", err)
	}

	return actions, nil
}
