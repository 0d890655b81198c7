package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kardianos/service"
	"github.com/mitchellh/go-ps"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/logger"
	"github.com/oshokin/mediamtx-installer/internal/service/common"
	"github.com/oshokin/mediamtx-installer/internal/system"
)

// InitSystem is the detected service manager family.
type InitSystem string

// Known init systems.
const (
	InitSystemd InitSystem = "systemd"
	InitOpenRC  InitSystem = "openrc"
	InitUpstart InitSystem = "upstart"
	InitSysV    InitSystem = "sysv"
	InitUnknown InitSystem = "unknown"
)

// packageManagers lists the package manager executables in detection order.
//
//nolint:gochecknoglobals // Read-only lookup table.
var packageManagers = []string{"apt-get", "dnf", "yum", "apk", "pacman", "zypper"}

// Environment is the read-only picture of the host taken before installing.
type Environment struct {
	// InitSystem is the detected service manager.
	InitSystem InitSystem
	// PackageManager is the detected package manager executable, empty when none.
	PackageManager string
	// FreeBytes is the free space on the filesystem holding the install directory.
	FreeBytes uint64
	// Running lists process IDs of running copies of the media server.
	Running []int
}

// Prober inspects the host. Every query is read-only.
type Prober struct {
	runner     system.Runner
	initSystem func() string
	freeSpace  func(path string) (uint64, error)
	processes  func() ([]ps.Process, error)
}

// Option customizes a Prober.
type Option func(*Prober)

// WithInitSystem replaces init system detection.
func WithInitSystem(detect func() string) Option {
	return func(p *Prober) {
		p.initSystem = detect
	}
}

// WithFreeSpace replaces the free space query.
func WithFreeSpace(query func(path string) (uint64, error)) Option {
	return func(p *Prober) {
		p.freeSpace = query
	}
}

// WithProcesses replaces the process listing.
func WithProcesses(list func() ([]ps.Process, error)) Option {
	return func(p *Prober) {
		p.processes = list
	}
}

// New creates a Prober backed by the host.
func New(runner system.Runner, opts ...Option) *Prober {
	p := &Prober{
		runner:     runner,
		initSystem: service.Platform,
		freeSpace:  diskFree,
		processes:  ps.Processes,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// KernelArch returns the kernel machine name, e.g. "x86_64".
func KernelArch() (string, error) {
	return host.KernelArch()
}

// InitSystem detects the service manager of the host.
func (p *Prober) InitSystem() InitSystem {
	return parseInitSystem(p.initSystem())
}

// Probe inspects the host for the given target.
func (p *Prober) Probe(ctx context.Context, t *install.Target) (*Environment, error) {
	env := &Environment{
		InitSystem:     p.InitSystem(),
		PackageManager: p.detectPackageManager(),
	}

	logger.InfoKV(ctx, "Detected host tooling",
		"init_system", env.InitSystem, "package_manager", env.PackageManager, "arch", t.Arch)

	free, err := p.freeSpace(t.InstallDir)
	if err != nil {
		logger.WarnKV(ctx, "Unable to determine free disk space", "path", t.InstallDir, "error", err)
	} else {
		env.FreeBytes = free
	}

	running, err := p.running(t.BinaryName)
	if err != nil {
		logger.WarnKV(ctx, "Unable to list processes", "error", err)
	}

	env.Running = running

	return env, nil
}

func (p *Prober) detectPackageManager() string {
	for _, name := range packageManagers {
		if _, err := p.runner.LookPath(name); err == nil {
			return name
		}
	}

	return ""
}

// running lists processes whose executable matches binaryName.
func (p *Prober) running(binaryName string) ([]int, error) {
	processList, err := p.processes()
	if err != nil {
		return nil, err
	}

	thisProcessID := os.Getpid()

	var pids []int

	for _, process := range processList {
		if process.Pid() == thisProcessID || process.Executable() != binaryName {
			continue
		}

		pids = append(pids, process.Pid())
	}

	return pids, nil
}

// parseInitSystem maps a service platform name such as "linux-systemd" to an InitSystem.
func parseInitSystem(platform string) InitSystem {
	platform = strings.ToLower(platform)

	switch {
	case strings.Contains(platform, "systemd"):
		return InitSystemd
	case strings.Contains(platform, "openrc"):
		return InitOpenRC
	case strings.Contains(platform, "upstart"):
		return InitUpstart
	case strings.Contains(platform, "systemv"), strings.Contains(platform, "sysv"):
		return InitSysV
	default:
		return InitUnknown
	}
}

// diskFree reports free bytes on the filesystem of the nearest existing ancestor of path.
func diskFree(path string) (uint64, error) {
	missing, err := common.MissingDirs(path)
	if err != nil {
		return 0, err
	}

	existing := filepath.Clean(path)
	if len(missing) > 0 {
		existing = filepath.Dir(missing[0])
	}

	usage, err := disk.Usage(existing)
	if err != nil {
		return 0, fmt.Errorf("disk usage of %s: %w", existing, err)
	}

	return usage.Free, nil
}
