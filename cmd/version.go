package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/etch/internal/version"
)

func (a *app) newVersionCmd() *cobra.Command {
	var (
		format string
		short  bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the etch version, the commit it was built from, the Go toolchain
and the target platform. The version is also the stamp written into lockfiles.

Examples:
  etch version                 # human readable
  etch version --short         # version only
  etch version --format json   # machine readable`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetBuildInfo()
			out := cmd.OutOrStdout()

			switch format {
			case "json":
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(struct {
					*version.BuildInfo
					IsRelease bool `json:"is_release"`
				}{info, version.IsRelease()})
			case "text":
				if short {
					fmt.Fprintln(out, info.Version)
					return nil
				}
				fmt.Fprintln(out, info.String())
				return nil
			default:
				return fmt.Errorf("unsupported format: %s (supported: text, json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format (text, json)")
	cmd.Flags().BoolVar(&short, "short", false, "print the version only")

	return cmd
}
