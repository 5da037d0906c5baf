package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/archburn/internal/domain/release"
	"github.com/oshokin/archburn/internal/logger"
	"github.com/oshokin/archburn/internal/service/pipeline"
	"github.com/oshokin/archburn/internal/version"
)

var (
	// options collects the flags shared by every subcommand.
	options = &pipeline.Options{}

	// rootCmd downloads, verifies and publishes the newest release, then offers to write it to a drive.
	rootCmd = &cobra.Command{
		Use:           "archburn",
		Short:         "Download, verify and burn the latest Arch Linux ISO",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options.Stdin = os.Stdin
			options.Stdout = cmd.OutOrStdout()

			return pipeline.Run(ctx, options)
		},
	}
)

// Execute runs the archburn CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	err := rootCmd.Execute()

	if err != nil {
		logger.ErrorKV(context.Background(), "archburn failed", "stage", stageName(err), "error", err)
	}

	logger.Sync()

	if err != nil {
		os.Exit(1)
	}
}

// unstagedLabel labels failures that belong to no pipeline stage.
const unstagedLabel = "run"

// stageName names the pipeline stage behind err for the final diagnostic.
func stageName(err error) string {
	if stage := release.StageOf(err); stage != nil {
		return stage.Error()
	}

	return unstagedLabel
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&options.ConfigPath, "config", "c", "", "path to configuration file (built-in defaults when empty)")
	flags.StringVar(&options.DownloadsDir, "downloads-dir", "", "directory receiving the published image (default ~/Downloads or $XDG_DOWNLOAD_DIR)")
	flags.StringVar(&options.CacheDir, "cache-dir", "", "directory keeping cached images (default ~/.cache/archlinux or $XDG_CACHE_HOME/archlinux)")
	flags.StringVar(&options.LogLevel, "log-level", "", "log level: debug, info, warn or error ($DEBUG forces debug)")

	rootCmd.Flags().BoolVar(&options.NoInstall, "no-install", false, "stop after publishing, never offer to write a drive")

	rootCmd.AddCommand(statusCmd, configCmd)
}
