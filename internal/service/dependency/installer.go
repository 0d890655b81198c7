package dependency

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/oshokin/mediamtx-installer/internal/config"
	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/logger"
	"github.com/oshokin/mediamtx-installer/internal/system"
)

var (
	errNoPackageManager = errors.New("no supported package manager found")
	errStillMissing     = errors.New("still missing after installation")
)

// Report summarizes a dependency check.
type Report struct {
	// Present lists commands found on PATH.
	Present []string
	// Installed lists commands installed during this run.
	Installed []string
	// MissingOptional lists optional commands that remain unavailable.
	MissingOptional []string
}

// Installer makes sure required executables exist.
type Installer struct {
	runner  system.Runner
	manager PackageManager
	deps    []config.Dependency
}

// NewInstaller creates an Installer. manager may be nil when none was detected.
func NewInstaller(runner system.Runner, manager PackageManager, deps []config.Dependency) *Installer {
	return &Installer{
		runner:  runner,
		manager: manager,
		deps:    deps,
	}
}

// Missing returns the dependencies whose command is not on PATH.
func (i *Installer) Missing() []config.Dependency {
	var missing []config.Dependency

	for _, dep := range i.deps {
		if _, err := i.runner.LookPath(dep.Command); err != nil {
			missing = append(missing, dep)
		}
	}

	return missing
}

// Ensure installs missing dependencies. Missing required commands fail with a
// DependencyError; optional ones only produce warnings.
func (i *Installer) Ensure(ctx context.Context) (*Report, error) {
	report := new(Report)
	missing := i.Missing()

	missingSet := make(map[string]struct{}, len(missing))
	for _, dep := range missing {
		missingSet[dep.Command] = struct{}{}
	}

	for _, dep := range i.deps {
		if _, ok := missingSet[dep.Command]; !ok {
			report.Present = append(report.Present, dep.Command)
		}
	}

	if len(missing) == 0 {
		logger.InfoKV(ctx, "All dependencies are present", "commands", strings.Join(report.Present, ", "))
		return report, nil
	}

	for _, dep := range missing {
		err := i.installOne(ctx, dep)
		if err == nil {
			report.Installed = append(report.Installed, dep.Command)
			continue
		}

		if dep.Optional {
			logger.WarnKV(ctx, "Optional dependency is unavailable", "command", dep.Command, "error", err)
			report.MissingOptional = append(report.MissingOptional, dep.Command)

			continue
		}

		return report, install.Wrap(install.KindDependency, dep.Command, err)
	}

	sort.Strings(report.Installed)

	return report, nil
}

func (i *Installer) installOne(ctx context.Context, dep config.Dependency) error {
	if i.manager == nil {
		return errNoPackageManager
	}

	pkg := dep.Package
	if pkg == "" {
		pkg = dep.Command
	}

	logger.InfoKV(ctx, "Installing dependency", "command", dep.Command, "package", pkg, "manager", i.manager.Name())

	if err := i.manager.Install(ctx, pkg); err != nil {
		return err
	}

	if _, err := i.runner.LookPath(dep.Command); err != nil {
		return fmt.Errorf("%s: %w", dep.Command, errStillMissing)
	}

	return nil
}
