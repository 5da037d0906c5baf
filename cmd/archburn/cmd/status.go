package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/archburn/internal/repository/state"
	"github.com/oshokin/archburn/internal/service/pipeline"
)

// statusCmd prints the last published release.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last published release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := pipeline.LoadConfig(options)
		if err != nil {
			return err
		}

		repo := state.NewFileRepository(filepath.Join(cfg.CacheDir, state.DefaultFilename))

		out := cmd.OutOrStdout()

		record, err := repo.Load(cmd.Context())
		if errors.Is(err, state.ErrNotFound) {
			_, _ = fmt.Fprintln(out, "No release has been published yet.")

			return nil
		}

		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(out, "Version:    %s\n", record.Version)
		_, _ = fmt.Fprintf(out, "Image:      %s\n", record.PublishedPath)
		_, _ = fmt.Fprintf(out, "Cache:      %s\n", record.CachePath)
		_, _ = fmt.Fprintf(out, "SHA-256:    %s\n", record.SHA256)
		_, _ = fmt.Fprintf(out, "Published:  %s\n", record.PublishedAt.Local().Format(time.DateTime))

		return nil
	},
}
