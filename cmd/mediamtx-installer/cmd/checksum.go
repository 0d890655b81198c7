package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/mediamtx-installer/internal/service/packager"
)

var (
	// checksumOutput is the manifest path.
	checksumOutput string
	// mirrorURL is where the artifacts will be published.
	mirrorURL string

	// checksumCmd writes a checksum manifest for mirrored artifacts.
	checksumCmd = &cobra.Command{
		Use:   "checksum FILE...",
		Short: "Write a " + packager.DefaultManifestFilename + " manifest for local release artifacts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options := &packager.Options{
				Files:     args,
				Output:    checksumOutput,
				MirrorURL: mirrorURL,
			}

			return packager.Run(cmd.Context(), options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	checksumCmd.Flags().StringVarP(&checksumOutput, "output", "o", "",
		"manifest path (default "+packager.DefaultManifestFilename+" next to the first file)")
	checksumCmd.Flags().StringVar(&mirrorURL, "mirror-url", "", "URL the artifacts will be served from")
}
