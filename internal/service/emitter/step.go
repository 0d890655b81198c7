package emitter

import (
	"context"
	"fmt"
	"os"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/logger"
	"github.com/oshokin/mediamtx-installer/internal/service/common"
	"github.com/oshokin/mediamtx-installer/internal/service/transaction"
)

// ConfigFileMode is the permission set of the rendered configuration.
const ConfigFileMode os.FileMode = 0o644

// Step writes the media server configuration inside a transaction.
type Step struct{}

// NewStep creates the configuration step.
func NewStep() *Step {
	return &Step{}
}

// Name implements transaction.Step.
func (s *Step) Name() string {
	return "write-config"
}

// Phase implements transaction.Step.
func (s *Step) Phase() install.State {
	return install.StateConfiguring
}

// Plan implements transaction.Step.
func (s *Step) Plan(t *install.Target) string {
	return fmt.Sprintf("write %s (rtsp %d, rtmp %d, hls %d), backing up any existing file",
		t.ConfigFile, t.Ports.RTSP, t.Ports.RTMP, t.Ports.HLS)
}

// Apply renders the configuration, backs up the existing file and replaces it atomically.
func (s *Step) Apply(ctx context.Context, tx *transaction.Transaction) ([]transaction.Action, error) {
	target := tx.Target()

	data, err := Render(target)
	if err != nil {
		return nil, err
	}

	created, err := common.EnsureDir(target.ConfigDir(), common.DefaultDirMode)

	actions := make([]transaction.Action, 0, len(created)+1)
	for _, dir := range created {
		actions = append(actions, transaction.RemovePath{Path: dir})
	}

	if err != nil {
		return actions, install.Wrap(install.KindConfig, "create configuration directory", err)
	}

	record, err := tx.Backup(ctx, target.ConfigFile)
	if err != nil {
		return actions, install.Wrap(install.KindConfig, "back up configuration", err)
	}

	// A failed write may still have replaced the file, so a restore is recorded first.
	if record != nil {
		actions = append(actions, transaction.RestoreBackup{Record: *record})
	}

	err = common.WriteFileAtomic(ctx, target.ConfigFile, data, ConfigFileMode)

	// A fresh file is only ours to remove once the rename put it in place.
	if record == nil {
		if _, statErr := os.Lstat(target.ConfigFile); statErr == nil {
			actions = append(actions, transaction.RemovePath{Path: target.ConfigFile})
		}
	}

	if err != nil {
		return actions, install.Wrap(install.KindConfig, "write configuration", err)
	}

	logger.InfoKV(ctx, "Configuration written", "path", target.ConfigFile, "replaced", record != nil)

	return actions, nil
}
