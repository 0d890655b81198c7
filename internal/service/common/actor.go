//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
)

// sudoUserEnv is set by sudo to the invoking operator.
const sudoUserEnv = "SUDO_USER"

// DetectActor describes the host and the operator for the installation receipt.
func DetectActor() (*install.Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	effective, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &install.Actor{
		Hostname: hostname,
		Username: effective.Username,
		SudoUser: strings.TrimSpace(os.Getenv(sudoUserEnv)),
	}, nil
}
