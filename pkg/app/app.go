// Package app provides the cobra/viper command scaffold shared by the binaries.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/cli/globalflag"
	"k8s.io/component-base/term"
)

// RunFunc is the application's main loop, called once options are loaded and validated.
type RunFunc func() error

// App is a command line application.
type App struct {
	basename    string
	name        string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	noConfig    bool
	silence     bool
	args        cobra.PositionalArgs
	cfgFile     string

	cmd *cobra.Command
}

// Option configures an App.
type Option func(*App)

// WithOptions sets the options the command parses flags and config into.
func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the application's main loop.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithDescription sets the long description of the command.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithNoConfig disables the --config flag and config file loading.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// WithSilence suppresses printing the effective configuration at startup.
func WithSilence() Option {
	return func(a *App) { a.silence = true }
}

// WithValidArgs sets the positional argument validator.
func WithValidArgs(args cobra.PositionalArgs) Option {
	return func(a *App) { a.args = args }
}

// WithDefaultValidArgs rejects every positional argument.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// NewApp creates an application named basename.
func NewApp(basename string, name string, opts ...Option) *App {
	a := &App{
		basename: basename,
		name:     name,
	}
	for _, o := range opts {
		o(a)
	}

	a.buildCommand()
	return a
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.basename,
		Short:         a.name,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
		RunE:          a.runCommand,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	var namedFlagSets cliflag.NamedFlagSets
	if a.options != nil {
		namedFlagSets = a.options.Flags()
	}
	if !a.noConfig {
		addConfigFlag(namedFlagSets.FlagSet("global"), a.basename, &a.cfgFile)
	}
	globalflag.AddGlobalFlags(namedFlagSets.FlagSet("global"), cmd.Name())

	fs := cmd.Flags()
	for _, f := range namedFlagSets.FlagSets {
		fs.AddFlagSet(f)
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, namedFlagSets, cols)

	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	if err := a.loadOptions(cmd); err != nil {
		return err
	}

	if a.runFunc != nil {
		return a.runFunc()
	}
	return nil
}

// loadOptions merges config file and environment into the options, then
// completes and validates them.
func (a *App) loadOptions(cmd *cobra.Command) error {
	if a.options == nil {
		return nil
	}

	if !a.noConfig {
		v, err := newViper(a.basename, a.cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		if err := v.Unmarshal(a.options); err != nil {
			return fmt.Errorf("failed to decode configuration: %w", err)
		}

		if !a.silence {
			printConfig(cmd.OutOrStdout(), v)
		}
		watchConfig(v)
	}

	if err := a.options.Complete(); err != nil {
		return fmt.Errorf("failed to complete options: %w", err)
	}
	if err := a.options.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	return nil
}

// Command returns the underlying cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the command with os.Args. Errors are printed to the command's
// error output before being returned.
func (a *App) Run() error {
	err := a.cmd.Execute()
	if err != nil {
		fmt.Fprintf(a.cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return err
}
