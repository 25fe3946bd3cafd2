package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RenderFlags are the flags of the render command.
type RenderFlags struct {
	Config string
	Force  bool
	Watch  bool
	Debug  bool
}

func addRenderFlags(cmd *cobra.Command, flags *RenderFlags) {
	cmd.Flags().StringVarP(&flags.Config, "config", "c", "", "config file, relative to ROOT (default ./etch.config.toml)")
	cmd.Flags().BoolVarP(&flags.Force, "force", "f", false, "ignore the lockfile and rewrite every output")
	cmd.Flags().BoolVarP(&flags.Watch, "watch", "w", false, "re-render whenever files under ROOT change")
	cmd.Flags().BoolVar(&flags.Debug, "debug", false, "write etcher_debug.json with the resolved run")
	_ = cmd.Flags().MarkHidden("debug")
}

// bind exposes a flag through viper under its own name so the matching
// ETCH_ environment variable can supply it.
func (a *app) bind(flag *pflag.Flag) {
	if flag == nil {
		panic("binding unknown flag")
	}
	if err := a.v.BindPFlag(flag.Name, flag); err != nil {
		panic(fmt.Sprintf("binding flag %q: %v", flag.Name, err))
	}
}

// normalizeFlagName makes --log_level and --log-level the same flag.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}
