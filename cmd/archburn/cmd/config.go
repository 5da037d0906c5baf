package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/archburn/internal/config"
)

var (
	// configCmd groups configuration helpers.
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	// configInitCmd writes a configuration file with the built-in defaults.
	configInitCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with the defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigFilename
			if len(args) > 0 {
				path = args[0]
			}

			if err := config.Save(path, config.Default()); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	configCmd.AddCommand(configInitCmd)
}
