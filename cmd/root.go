// Package cmd provides the etch command-line interface.
//
// Settings resolve with the usual precedence: an explicit flag wins, then an
// ETCH_ prefixed environment variable (ETCH_CONFIG, ETCH_FORCE,
// ETCH_LOG_LEVEL, ...), then the flag default. Flag names accept either "-" or
// "_" as a word separator.
//
// `render` is the default subcommand, so `etch .` and `etch render .` are
// equivalent.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/etch/internal/logging"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "ETCH"

// app carries state shared by every command of one invocation.
type app struct {
	v      *viper.Viper
	logger logging.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New()}
	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "etch",
		Short: "Render tagged template files in place",
		Long: `etch walks a directory, renders every file tagged with ".etch" in its name
against a context assembled from static values, environment variables and
command output, and writes the result next to the source. A lockfile keeps
reruns from touching outputs whose content did not change.

  config.etch.yaml  ->  config.yaml
  deploy.sh.etch    ->  deploy.sh

Quick Start:
  etch init         Write a starter etch.config.toml
  etch              Render the current directory
  etch --watch      Re-render on every change`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setupLogger(errOut)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetGlobalNormalizationFunc(normalizeFlagName)

	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "text", "log format (text, json)")
	a.bind(root.PersistentFlags().Lookup("log-level"))
	a.bind(root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(
		a.newRenderCmd(),
		a.newInitCmd(),
		a.newVersionCmd(),
	)

	return root
}

func (a *app) setupLogger(errOut io.Writer) error {
	level, err := logging.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		return err
	}
	format := a.v.GetString("log-format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown log format %q (supported: text, json)", format)
	}

	a.logger = logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: format,
		Output: errOut,
	})

	return nil
}

// Execute runs the CLI with the process arguments. Interrupts cancel the
// running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return ExecuteContext(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

// ExecuteContext runs the CLI with explicit arguments and streams. A failure
// is printed once to errOut and returned.
func ExecuteContext(ctx context.Context, args []string, out, errOut io.Writer) error {
	root := newRootCmd(out, errOut)
	root.SetArgs(withDefaultCommand(root, args))

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return err
	}

	return nil
}

// withDefaultCommand prepends "render" unless args already start with a
// subcommand or a help request.
func withDefaultCommand(root *cobra.Command, args []string) []string {
	if len(args) > 0 {
		switch args[0] {
		case "-h", "--help", "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return args
		}
		for _, sub := range root.Commands() {
			if sub.Name() == args[0] || sub.HasAlias(args[0]) {
				return args
			}
		}
	}

	return append([]string{"render"}, args...)
}
