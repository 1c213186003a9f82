// Package main is the entry point for the testreport CLI tool.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/bebsworthy/testreport/internal/debug"
)

// Version is set at build time via ldflags
var Version = "dev"

// Global flags
var (
	debugFlag   bool
	configPath  string
	noColorFlag bool
)

// errTestsFailed signals a failed run; the failures were already reported.
var errTestsFailed = errors.New("tests failed")

// newRootCmd creates and returns the root command
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "testreport",
		Short: "Show only the output of failing Go tests",
		Long: `Testreport runs go test tasks and captures the output of every package
while it runs. Passing packages print nothing. When a package fails, its full
output is written to a log file and printed with a command that reruns exactly
the failing test.

GETTING STARTED:
  1. Configure test tasks for your project:
     $ testreport init

  2. Run them:
     $ testreport run

EXAMPLES:
  # Run only the unit tasks, four at a time
  $ testreport run --task 'unit*' --max-parallel 4

  # Rerun one failing test with the seed from the last run
  $ testreport run --task test --tests example.com/pkg.TestFoo -Ptests.seed=DEADBEEF

  # Report on a stream saved in CI
  $ go test -json ./... > results.json; testreport replay results.json`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if debugFlag {
				debug.Enable()
			}
			debug.SetWriter(cmd.ErrOrStderr())
			if noColorFlag || !isatty.IsTerminal(os.Stdout.Fd()) {
				color.NoColor = true
			}
		},
	}

	cmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug output")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	cmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")

	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newReplayCmd())
	cmd.AddCommand(newOptionsCmd())
	cmd.AddCommand(newInitCmd())

	return cmd
}

func main() {
	// Enable debug logging before configuration is loaded
	for _, arg := range os.Args[1:] {
		if arg == "--debug" {
			debug.Enable()
			break
		}
	}

	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errTestsFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
