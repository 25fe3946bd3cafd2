package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/conneroisu/etch/internal/config"
)

func (a *app) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "init [DIR]",
		Aliases: []string{"i"},
		Short:   "Write a starter etch.config.toml",
		Long: `Write a commented etch.config.toml into DIR (default: the current
directory). An existing config is never overwritten.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			path, err := config.WriteStarter(afero.NewOsFs(), dir)
			if err != nil {
				return err
			}
			a.logger.Debug(cmd.Context(), "Wrote starter config", "path", path)
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)

			return nil
		},
	}
}
