package installer

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/oshokin/mediamtx-installer/internal/config"
	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/service/common"
	"github.com/oshokin/mediamtx-installer/internal/service/connectivity"
	"github.com/oshokin/mediamtx-installer/internal/service/fetcher"
	"github.com/oshokin/mediamtx-installer/internal/service/probe"
	"github.com/oshokin/mediamtx-installer/internal/service/registrar"
	"github.com/oshokin/mediamtx-installer/internal/system"
)

// Options are inputs accepted by the installer entry point.
type Options struct {
	// SettingsPath is the optional path to the installer settings YAML file.
	SettingsPath string
	// Overrides come from flags and environment variables.
	Overrides config.Overrides
	// AssumeYes answers every confirmation with yes.
	AssumeYes bool
	// MetricsFile receives Prometheus textfile metrics of the run when set.
	MetricsFile string
	// Output receives the end-of-run summary. Nil means standard output.
	Output io.Writer
	// Collaborators replaces host-facing dependencies. Nil means the real host.
	Collaborators *Collaborators
}

// ConnectivityChecker confirms the artifact source is reachable.
type ConnectivityChecker interface {
	Check(ctx context.Context, rawURL string) error
}

// Collaborators are the host-facing dependencies of a run. Zero fields are
// filled with the real implementations.
type Collaborators struct {
	// Runner executes host commands.
	Runner system.Runner
	// Accounts manages the service account.
	Accounts system.AccountManager
	// Services is the service manager. Nil selects one from the detected init system.
	Services registrar.Manager
	// Prompter asks the operator for confirmation.
	Prompter common.Prompter
	// HTTPClient downloads artifacts.
	HTTPClient *http.Client
	// Connectivity replaces the probe chain.
	Connectivity ConnectivityChecker
	// Prober inspects the host.
	Prober *probe.Prober
	// KernelArch reports the machine name.
	KernelArch func() (string, error)
	// Euid reports the effective user ID.
	Euid func() int
	// Now is the clock.
	Now func() time.Time
}

// withDefaults returns a copy with every empty field set to the host implementation.
func (c *Collaborators) withDefaults(settings *config.Config, assumeYes bool) *Collaborators {
	out := new(Collaborators)
	if c != nil {
		*out = *c
	}

	if out.Runner == nil {
		out.Runner = system.NewExecRunner(system.DefaultCommandTimeout)
	}

	if out.Accounts == nil {
		out.Accounts = system.NewAccounts(out.Runner)
	}

	if out.Prompter == nil {
		if assumeYes {
			out.Prompter = common.StaticPrompter(true)
		} else {
			out.Prompter = common.NewTerminalPrompter()
		}
	}

	if out.HTTPClient == nil {
		out.HTTPClient = &http.Client{}
	}

	if out.Connectivity == nil {
		out.Connectivity = connectivity.NewChecker(out.Prompter, settings.ProbeTimeout, out.HTTPClient)
	}

	if out.Prober == nil {
		out.Prober = probe.New(out.Runner)
	}

	if out.Services == nil {
		if out.Prober.InitSystem() == probe.InitSystemd {
			out.Services = registrar.NewSystemd(out.Runner)
		} else {
			out.Services = registrar.NewGeneric()
		}
	}

	if out.KernelArch == nil {
		out.KernelArch = probe.KernelArch
	}

	if out.Euid == nil {
		out.Euid = os.Geteuid
	}

	if out.Now == nil {
		out.Now = time.Now
	}

	return out
}

// downloaders returns the fetch chain: in-process HTTP first, then curl and wget.
func (c *Collaborators) downloaders() []fetcher.Downloader {
	return []fetcher.Downloader{
		fetcher.NewHTTPDownloader(c.HTTPClient),
		fetcher.NewCurlDownloader(c.Runner),
		fetcher.NewWgetDownloader(c.Runner),
	}
}

// requireRoot fails with a PermissionError unless the run is privileged or simulated.
func (c *Collaborators) requireRoot(target *install.Target) error {
	if target.DryRun || c.Euid() == 0 {
		return nil
	}

	return install.Errorf(install.KindPermission,
		"installing to %s requires root privileges, rerun with sudo or use --dry-run", target.InstallDir)
}
