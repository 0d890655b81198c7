package registrar

import (
	"strconv"
	"strings"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
)

// Resource limits applied to the service.
const (
	restartSec  = 5
	limitNOFILE = 65536
	memoryMax   = "1G"
	tasksMax    = 512
)

// Definition is everything a service manager needs to register the server.
type Definition struct {
	// Name is the unit name without suffix.
	Name string
	// Description is the human-readable unit description.
	Description string
	// Executable is the installed binary.
	Executable string
	// Arguments follow the executable.
	Arguments []string
	// Account runs the process.
	Account string
	// Path is where a unit file is written. Empty for managers that store definitions themselves.
	Path string
	// WritablePaths stay writable under the read-only system protection.
	WritablePaths []string
	// BindPrivileged grants CAP_NET_BIND_SERVICE for listeners below 1024.
	BindPrivileged bool
}

// DefinitionFor describes the media server service of target running as account.
func DefinitionFor(target *install.Target, account string) *Definition {
	return &Definition{
		Name:           target.ServiceName,
		Description:    "MediaMTX media server " + target.Version,
		Executable:     target.BinaryPath(),
		Arguments:      []string{target.ConfigFile},
		Account:        account,
		Path:           target.UnitPath(),
		WritablePaths:  []string{target.LogDir},
		BindPrivileged: target.Ports.Privileged(),
	}
}

// BuildUnit renders a hardened systemd unit for def.
func BuildUnit(def *Definition) string {
	lines := []string{
		"[Unit]",
		"Description=" + def.Description,
		"After=network-online.target",
		"Wants=network-online.target",
		"",
		"[Service]",
		"Type=simple",
		"User=" + def.Account,
		"Group=" + def.Account,
	}

	for _, dir := range def.WritablePaths {
		// The log directory is created root-owned; hand it to the service account at start.
		lines = append(lines, "ExecStartPre=+/bin/mkdir -p "+escapeArg(dir))
		if def.Account != "root" {
			lines = append(lines, "ExecStartPre=+/bin/chown "+def.Account+":"+def.Account+" "+escapeArg(dir))
		}
	}

	lines = append(lines,
		"ExecStart="+quoteArgs(append([]string{def.Executable}, def.Arguments...)),
		"Restart=on-failure",
		"RestartSec="+strconv.Itoa(restartSec),
		"LimitNOFILE="+strconv.Itoa(limitNOFILE),
		"MemoryMax="+memoryMax,
		"TasksMax="+strconv.Itoa(tasksMax),
		"NoNewPrivileges=true",
		"ProtectSystem=strict",
		"ProtectHome=true",
		"PrivateTmp=true",
		"ProtectKernelTunables=true",
		"ProtectControlGroups=true",
	)

	if len(def.WritablePaths) > 0 {
		lines = append(lines, "ReadWritePaths="+quoteArgs(def.WritablePaths))
	}

	if def.BindPrivileged {
		lines = append(lines,
			"AmbientCapabilities=CAP_NET_BIND_SERVICE",
			"CapabilityBoundingSet=CAP_NET_BIND_SERVICE",
		)
	} else {
		lines = append(lines, "CapabilityBoundingSet=")
	}

	lines = append(lines,
		"",
		"[Install]",
		"WantedBy=multi-user.target",
		"",
	)

	return strings.Join(lines, "\n")
}

// escapeArg quotes a single argument for systemd unit files.
func escapeArg(value string) string {
	if !strings.ContainsAny(value, " \t\"\\") {
		return value
	}

	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")

	return "\"" + escaped + "\""
}

func quoteArgs(args []string) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, escapeArg(arg))
	}

	return strings.Join(parts, " ")
}
