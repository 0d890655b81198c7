package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/mediamtx-installer/internal/service/installer"
)

// uninstallCmd removes an installation recorded in the receipt.
var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the installed service, binary and configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		options := &installer.Options{
			SettingsPath: settingsPath,
			Overrides:    overrides,
			AssumeYes:    assumeYes,
			Output:       cmd.OutOrStdout(),
		}

		return installer.Uninstall(ctx, options)
	},
}
