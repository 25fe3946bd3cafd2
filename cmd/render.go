package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/etch/internal/render"
)

func (a *app) newRenderCmd() *cobra.Command {
	flags := &RenderFlags{}

	cmd := &cobra.Command{
		Use:     "render [ROOT]",
		Aliases: []string{"r"},
		Short:   "Render every template under ROOT (default command)",
		Long: `Render every tagged template under ROOT (default: the current directory).

Outputs are only written when their rendered content changed since the last
run, as recorded in ROOT/.etch.lock.

Examples:
  etch                          # render the current directory
  etch render ./deploy          # render another root
  etch -c etch.config.yaml .    # use a YAML config
  etch --force                  # rewrite every output
  etch --watch                  # keep rendering on change`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			opts := render.Options{
				Root:       root,
				ConfigPath: a.v.GetString("config"),
				Force:      a.v.GetBool("force"),
				Debug:      a.v.GetBool("debug"),
				Logger:     a.logger,
			}

			if a.v.GetBool("watch") {
				return render.Watch(cmd.Context(), opts, render.DefaultDebounce, func(result *render.Result, err error) {
					report(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, err)
				})
			}

			result, err := render.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			report(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, nil)

			return nil
		},
	}

	addRenderFlags(cmd, flags)
	for _, name := range []string{"config", "force", "watch", "debug"} {
		a.bind(cmd.Flags().Lookup(name))
	}

	return cmd
}

func report(out, errOut io.Writer, result *render.Result, err error) {
	if err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(out, result.Summary())
}
