package probe

import (
	"context"
	"testing"

	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/system/systemtest"
)

// TestResolveArchIsTotal checks every table entry resolves to one non-empty supported tag.
func TestResolveArchIsTotal(t *testing.T) {
	t.Parallel()

	supported := SupportedArches()
	require.Equal(t, []string{"amd64", "arm64", "armv6", "armv7"}, supported)

	for machine := range archTable {
		tag, err := ResolveArch(machine)
		require.NoError(t, err, machine)
		require.NotEmpty(t, tag)
		require.Contains(t, supported, tag)
	}

	tag, err := ResolveArch(" X86_64 ")
	require.NoError(t, err)
	require.Equal(t, "amd64", tag)
}

// TestResolveArchUnknown yields the unsupported architecture exit code.
func TestResolveArchUnknown(t *testing.T) {
	t.Parallel()

	for _, machine := range []string{"riscv64", "mips", "", "i686"} {
		_, err := ResolveArch(machine)
		require.Error(t, err)
		require.Equal(t, install.ExitUnsupportedArch, install.ExitCode(err), machine)
	}
}

// TestDetectArchPrefersOverride validates the override through the same table.
func TestDetectArchPrefersOverride(t *testing.T) {
	t.Parallel()

	kernel := func() (string, error) { return "aarch64", nil }

	tag, err := DetectArch("", kernel)
	require.NoError(t, err)
	require.Equal(t, "arm64", tag)

	tag, err = DetectArch("amd64", kernel)
	require.NoError(t, err)
	require.Equal(t, "amd64", tag)

	_, err = DetectArch("sparc", kernel)
	require.Equal(t, install.KindUnsupportedArch, install.KindOf(err))
}

type fakeProcess struct {
	pid  int
	name string
}

func (p fakeProcess) Pid() int           { return p.pid }
func (p fakeProcess) PPid() int          { return 1 }
func (p fakeProcess) Executable() string { return p.name }

// TestProbeCollectsEnvironment wires fake queries and checks the resulting picture.
func TestProbeCollectsEnvironment(t *testing.T) {
	t.Parallel()

	prober := New(systemtest.NewRunner("yum", "dnf"),
		WithInitSystem(func() string { return "linux-systemd" }),
		WithFreeSpace(func(string) (uint64, error) { return 1 << 30, nil }),
		WithProcesses(func() ([]ps.Process, error) {
			return []ps.Process{fakeProcess{10, "mediamtx"}, fakeProcess{11, "sshd"}}, nil
		}),
	)

	env, err := prober.Probe(context.Background(), &install.Target{BinaryName: "mediamtx", InstallDir: "/usr/local/bin"})
	require.NoError(t, err)
	require.Equal(t, InitSystemd, env.InitSystem)
	require.Equal(t, "dnf", env.PackageManager)
	require.Equal(t, uint64(1<<30), env.FreeBytes)
	require.Equal(t, []int{10}, env.Running)
}

// TestParseInitSystem maps service platform names.
func TestParseInitSystem(t *testing.T) {
	t.Parallel()

	require.Equal(t, InitSystemd, parseInitSystem("linux-systemd"))
	require.Equal(t, InitOpenRC, parseInitSystem("linux-openrc"))
	require.Equal(t, InitUpstart, parseInitSystem("linux-upstart"))
	require.Equal(t, InitSysV, parseInitSystem("unix-systemv"))
	require.Equal(t, InitUnknown, parseInitSystem("darwin-launchd"))
}
