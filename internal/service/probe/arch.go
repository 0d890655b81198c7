package probe

import (
	"runtime"
	"sort"
	"strings"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
)

// archTable maps kernel machine names and Go architecture names to release tags.
//
//nolint:gochecknoglobals // Read-only lookup table.
var archTable = map[string]string{
	"x86_64":  "amd64",
	"amd64":   "amd64",
	"aarch64": "arm64",
	"arm64":   "arm64",
	"armv8l":  "arm64",
	"armv7l":  "armv7",
	"armv7":   "armv7",
	"armhf":   "armv7",
	"armv6l":  "armv6",
	"armv6":   "armv6",
}

// SupportedArches returns every release tag the installer can fetch.
func SupportedArches() []string {
	seen := make(map[string]struct{}, len(archTable))
	tags := make([]string, 0, len(archTable))

	for _, tag := range archTable {
		if _, dup := seen[tag]; dup {
			continue
		}

		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	sort.Strings(tags)

	return tags
}

// ResolveArch maps a machine name (uname -m, a Go GOARCH value or a release tag)
// to exactly one release tag.
func ResolveArch(machine string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(machine))
	if tag, ok := archTable[key]; ok {
		return tag, nil
	}

	return "", install.Errorf(install.KindUnsupportedArch,
		"architecture %q is not supported, expected one of %s", machine, strings.Join(SupportedArches(), ", "))
}

// DetectArch resolves the release tag for this host. An override, when given,
// goes through the same table.
func DetectArch(override string, kernelArch func() (string, error)) (string, error) {
	if strings.TrimSpace(override) != "" {
		return ResolveArch(override)
	}

	if kernelArch != nil {
		machine, err := kernelArch()
		if err == nil && machine != "" {
			return ResolveArch(machine)
		}
	}

	// The Go runtime only knows "arm" for every 32-bit ARM flavour.
	if runtime.GOARCH == "arm" {
		return "", install.Errorf(install.KindUnsupportedArch, "unable to detect the ARM revision, pass --arch explicitly")
	}

	return ResolveArch(runtime.GOARCH)
}
