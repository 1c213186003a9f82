package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/bebsworthy/testreport/internal/buildopts"
	"github.com/bebsworthy/testreport/internal/debug"
	"github.com/bebsworthy/testreport/internal/session"
	pkgconfig "github.com/bebsworthy/testreport/pkg/config"
)

// runFlags are the flags shared by run and replay
type runFlags struct {
	tasks       []string
	properties  []string
	tests       string
	echo        bool
	quiet       bool
	maxParallel int
	reportsDir  string
	stripANSI   bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.properties, "property", "P", nil, "Set a build option (name=value), e.g. -Ptests.seed=DEADBEEF")
	cmd.Flags().BoolVar(&f.echo, "echo", false, "Mirror all test output to the console as it is produced")
	cmd.Flags().BoolVar(&f.quiet, "quiet", false, "Print one line per failed package instead of its output")
	cmd.Flags().StringVar(&f.reportsDir, "reports-dir", "", "Directory for failure logs (overrides config)")
	cmd.Flags().BoolVar(&f.stripANSI, "strip-ansi", false, "Strip terminal escapes from printed output")
}

// newSession loads configuration, applies flag overrides and starts a session.
func (f *runFlags) newSession(cmd *cobra.Command, command []string) (*session.Session, *pkgconfig.Config, error) {
	cfg, dir, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("max-parallel") {
		cfg.MaxParallel = f.maxParallel
	}
	if f.reportsDir != "" {
		cfg.ReportsDir = f.reportsDir
	}
	if f.stripANSI {
		cfg.StripANSI = true
	}

	set, err := buildOptions(f.properties, dir)
	if err != nil {
		return nil, nil, err
	}

	logger := debug.New(cmd.ErrOrStderr())
	if debug.IsEnabled() {
		logger.Enable()
	}

	s, err := session.New(session.Options{
		Config:       cfg,
		BuildOptions: set,
		Tests:        f.tests,
		Echo:         f.echo,
		Quiet:        f.quiet,
		Command:      command,
		Console:      cmd.OutOrStdout(),
		Stderr:       cmd.ErrOrStderr(),
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, err
	}
	if seed, ok := set.Get(buildopts.OptionSeed); ok {
		logger.Log("Run %s, %s=%s", s.ID(), seed.Name, seed.String())
	}
	return s, cfg, nil
}

// finish prints the summary, closes the session and maps failures to errTestsFailed.
func finish(out io.Writer, s *session.Session, result *session.Result, runErr error) error {
	if result != nil && result.Summary.TasksExecuted() > 0 {
		fmt.Fprintln(out)
		result.Summary.RenderTable(out)
	}
	closeErr := s.Close()
	if err := errors.Join(runErr, closeErr); err != nil {
		return err
	}
	if result != nil && result.Failed {
		return errTestsFailed
	}
	return nil
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [flags] [-- command args...]",
		Short: "Run test tasks and report failing packages",
		Long: `Run the configured test tasks concurrently. Output of every package is
captured while it runs; only packages that fail are printed, each with a log
file path and a command line that reproduces the failure.

Anything after -- replaces the command of the selected task. It must write
go test -json events to standard output.`,
		Example: `  # All tasks
  testreport run

  # Tasks matching a glob
  testreport run --task 'integration-*'

  # One test, repeated, with live output
  testreport run --task unit --tests example.com/pkg.TestFoo -Ptests.iters=10 --echo

  # An ad hoc command
  testreport run --task unit -- go test -json -race ./internal/...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var command []string
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				if dash > 0 {
					return fmt.Errorf("unexpected arguments before --: %v", args[:dash])
				}
				command = args[dash:]
			} else if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %v (put a command after --)", args)
			}

			s, cfg, err := flags.newSession(cmd, command)
			if err != nil {
				return err
			}
			tasks, err := selectTasks(cfg, flags.tasks)
			if err != nil {
				return errors.Join(err, s.Close())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			result, err := s.Run(ctx, tasks)
			return finish(cmd.OutOrStdout(), s, result, err)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringArrayVar(&flags.tasks, "task", nil, "Task name or glob to run (repeatable, default all)")
	cmd.Flags().StringVar(&flags.tests, "tests", "", "Run only this package or test (package.TestName[/subtest])")
	cmd.Flags().IntVar(&flags.maxParallel, "max-parallel", 0, "Maximum tasks run at once (overrides config)")
	return cmd
}

func newReplayCmd() *cobra.Command {
	flags := &runFlags{}
	task := ""
	cmd := &cobra.Command{
		Use:   "replay <file|->",
		Short: "Report failures from a saved go test -json stream",
		Long: `Replay reads go test -json events from a file, or standard input when the
argument is -, and reports failing packages exactly as run would.`,
		Example: `  go test -json ./... > results.json
  testreport replay results.json

  go test -json ./... | testreport replay --task ci -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input io.Reader
			if args[0] == "-" {
				input = cmd.InOrStdin()
			} else {
				// #nosec G304 - the user names the file to replay
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open test stream: %w", err)
				}
				defer func() { _ = file.Close() }() //nolint:errcheck // read-only
				input = file
			}

			s, _, err := flags.newSession(cmd, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			result, err := s.Replay(ctx, task, input)
			return finish(cmd.OutOrStdout(), s, result, err)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&task, "task", "replay", "Task name used for the reports directory and reproduce lines")
	return cmd
}
