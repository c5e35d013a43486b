package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is the membench release.
const Version = "0.1.0"

// UsageError wraps flag parsing and argument errors.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// options are the global flags shared by every command
type options struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
	quiet   bool
}

// logLevel resolves --verbose and --quiet against the configured level.
func (o *options) logLevel(configured string) string {
	switch {
	case o.verbose:
		return "debug"
	case o.quiet:
		return "error"
	}
	return configured
}

// NewRootCmd builds the command tree. Each call binds a fresh viper
// instance, so trees never share flag state.
func NewRootCmd() *cobra.Command {
	o := &options{v: viper.New()}

	root := &cobra.Command{
		Use:   "membench",
		Short: "Accelerator memory bandwidth benchmark",
		Long: `Membench measures how fast an accelerator streams data through a
three stage reader, compute and writer pipeline.

Each stage's kernel time is taken from device profiling events and turned
into per stage bandwidth. Runs cover the task, range and autorun dispatch
modes with copied or mapped host memory.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&o.cfgFile, "config", "", "config file (default is $HOME/.membench/config.yaml)")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVarP(&o.quiet, "quiet", "q", false, "quiet mode")
	root.PersistentFlags().Bool("no-color", false, "disable colored output")
	root.PersistentFlags().String("backend", "sim", "device backend (sim or opencl)")

	o.v.BindPFlag("bench.backend", root.PersistentFlags().Lookup("backend"))

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	root.AddCommand(
		newRunCmd(o),
		newDevicesCmd(o),
		newVersionCmd(),
		newCompletionCmd(),
	)

	return root
}

// Execute runs the command line with ctx, which is cancelled on interrupt.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	_, err := root.ExecuteContextC(ctx)
	if err != nil && isUsage(err) {
		return &UsageError{Err: err}
	}
	return err
}

// isUsage reports cobra's own argument errors, which do not pass through
// the flag error func.
func isUsage(err error) bool {
	var usage *UsageError
	if errors.As(err, &usage) {
		return false
	}
	for _, prefix := range []string{"unknown command", "accepts ", "requires at least", "invalid argument"} {
		if strings.HasPrefix(err.Error(), prefix) {
			return true
		}
	}
	return false
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Membench v%s\n", Version)
			fmt.Fprintln(out, "Accelerator memory bandwidth benchmark")
			fmt.Fprintln(out, "")
			fmt.Fprintln(out, "Build: development")
			fmt.Fprintln(out, "Go version: 1.22+")
		},
	}
}
