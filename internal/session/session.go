// Package session wires configuration, build options, test commands and the
// failure reporter together for one testreport invocation.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"

	"github.com/bebsworthy/testreport/internal/buildopts"
	"github.com/bebsworthy/testreport/internal/capture"
	"github.com/bebsworthy/testreport/internal/debug"
	"github.com/bebsworthy/testreport/internal/events"
	"github.com/bebsworthy/testreport/internal/executor"
	"github.com/bebsworthy/testreport/internal/metrics"
	"github.com/bebsworthy/testreport/internal/reporter"
	"github.com/bebsworthy/testreport/internal/repro"
	"github.com/bebsworthy/testreport/internal/testjson"
	"github.com/bebsworthy/testreport/pkg/config"
)

// ErrEchoConcurrency is returned when live echo is requested for tasks that
// would run concurrently.
var ErrEchoConcurrency = errors.New("echo requires a single concurrent task")

// Options configures a Session.
type Options struct {
	// Config is the loaded configuration; defaults when nil
	Config *config.Config
	// BuildOptions are the resolved build options; the test options are registered if missing
	BuildOptions *buildopts.Set
	// Tests is a --tests selector narrowing every task
	Tests string
	// Echo mirrors test output live, in addition to tests.verbose
	Echo bool
	// Quiet prints one error line per failed suite instead of the output block
	Quiet bool
	// Command replaces the configured command of the single selected task
	Command []string
	// Console receives failure blocks, echo and the summary
	Console io.Writer
	// Stderr receives the test commands' standard error
	Stderr io.Writer
	Logger *debug.Logger
}

// Result is the outcome of a run or replay.
type Result struct {
	Summary  *reporter.Summary
	Exec     *executor.ParallelResult
	Failures []reporter.FailureRecord
	Failed   bool
}

// Session owns the per-run state: run ID, spill directory, metrics and summary.
type Session struct {
	id       string
	cfg      *config.Config
	opts     Options
	buildOps *buildopts.Set
	console  io.Writer
	stderr   io.Writer
	logger   *debug.Logger
	spillDir string
	metrics  *metrics.Metrics
	summary  *reporter.Summary

	runs []*taskRun
}

// New creates a session with a fresh run ID.
func New(opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, capture.ConfigurationError("%v", err)
	}

	set := opts.BuildOptions
	if set == nil {
		set = buildopts.NewSet(buildopts.Resolver{})
	}
	buildopts.RegisterTestOptions(set)

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := opts.Logger
	if logger == nil {
		logger = debug.Default()
	}

	id := uuid.NewString()
	spillRoot := cfg.SpillDir
	if spillRoot == "" {
		spillRoot = filepath.Join(os.TempDir(), "testreport")
	}

	s := &Session{
		id:       id,
		cfg:      cfg,
		opts:     opts,
		buildOps: set,
		console:  capture.NewStreamingWriter(console),
		stderr:   stderr,
		logger:   logger,
		spillDir: filepath.Join(spillRoot, "run-"+id),
		metrics:  metrics.New(id),
		summary:  reporter.NewSummary(),
	}
	logger.Log("Session %s spilling to %s", id, s.spillDir)
	return s, nil
}

// ID returns the run ID.
func (s *Session) ID() string { return s.id }

// SpillDir returns the directory holding this run's spill files.
func (s *Session) SpillDir() string { return s.spillDir }

// Metrics returns the run metrics.
func (s *Session) Metrics() *metrics.Metrics { return s.metrics }

// Summary returns the aggregated test counts.
func (s *Session) Summary() *reporter.Summary { return s.summary }

// echoEnabled reports whether test output is mirrored live.
func (s *Session) echoEnabled() (bool, error) {
	if s.opts.Echo {
		return true, nil
	}
	opt, ok := s.buildOps.Get(buildopts.OptionVerbose)
	if !ok || !opt.IsPresent() {
		return false, nil
	}
	verbose, err := opt.Bool()
	if err != nil {
		return false, capture.ConfigurationError("%v", err)
	}
	return verbose, nil
}

// CheckEcho fails when echo is on and more than one task could run at once.
func (s *Session) CheckEcho(tasks []string) error {
	echo, err := s.echoEnabled()
	if err != nil {
		return err
	}
	if echo && len(tasks) > 1 && s.cfg.MaxParallel > 1 {
		return fmt.Errorf("%w: %w", ErrEchoConcurrency,
			capture.ConfigurationError("Run only one test task in verbose mode or pass --max-parallel=1"))
	}
	return nil
}

// Run executes the named tasks and reports their failures.
func (s *Session) Run(ctx context.Context, tasks []string) (*Result, error) {
	if len(tasks) == 0 {
		return nil, capture.ConfigurationError("no test tasks selected")
	}
	if len(s.opts.Command) > 0 && len(tasks) > 1 {
		return nil, capture.ConfigurationError("a command override needs exactly one task, got %d", len(tasks))
	}
	if err := s.CheckEcho(tasks); err != nil {
		return nil, err
	}
	echo, _ := s.echoEnabled() //nolint:errcheck // checked by CheckEcho

	commands := make([]executor.ParallelCommand, 0, len(tasks))
	for _, name := range tasks {
		task, ok := s.cfg.Tasks[name]
		if !ok {
			return nil, capture.ConfigurationError("unknown test task %q", name)
		}
		command, args, err := s.commandFor(task)
		if err != nil {
			return nil, err
		}
		timeout, err := s.timeoutFor(task)
		if err != nil {
			return nil, err
		}

		run := s.newTaskRun(name, echo)
		reportsDir := run.reportsDir
		commands = append(commands, executor.ParallelCommand{
			ID:      name,
			Command: command,
			Args:    args,
			Options: executor.ExecOptions{
				WorkingDir:  task.WorkingDir,
				Environment: s.buildOps.Environment(),
				Timeout:     timeout,
				InheritEnv:  true,
			},
			Consume: func(r io.Reader) error {
				return run.decoder.Decode(ctx, r)
			},
			Stderr: s.stderr,
			Before: func() error {
				removed, err := reporter.PurgeStaleLogs(reportsDir)
				if err != nil {
					return err
				}
				s.logger.Log("Removed %d stale logs from %s", removed, reportsDir)
				s.logger.Log("Running %s: %s", name, shellquote.Join(append([]string{command}, args...)...))
				s.summary.TaskExecuted(name)
				return nil
			},
		})
	}

	pe := executor.NewParallelExecutor(executor.NewCommandExecutor(0), s.cfg.MaxParallel)
	s.logger.Log("Running %d test tasks, %d at a time", len(commands), pe.MaxParallel())
	execResult := pe.Execute(ctx, commands, func(completed, total int, id string) {
		s.logger.Log("Task %s finished (%d/%d)", id, completed, total)
	})

	result := s.result()
	result.Exec = execResult
	if execResult.HasFailures {
		result.Failed = true
		for _, id := range execResult.Order {
			if res := execResult.Results[id]; res != nil && res.Error != nil {
				s.logger.Error("Test task %s: %v", id, res.Error)
			}
		}
		s.logger.Log("%s", execResult.FailureSummary())
	}
	return result, nil
}

// Replay feeds a saved go test -json stream through the reporter as task.
func (s *Session) Replay(ctx context.Context, task string, r io.Reader) (*Result, error) {
	echo, err := s.echoEnabled()
	if err != nil {
		return nil, err
	}
	run := s.newTaskRun(task, echo)
	if _, err := reporter.PurgeStaleLogs(run.reportsDir); err != nil {
		return nil, err
	}
	s.summary.TaskExecuted(task)

	start := time.Now()
	decodeErr := run.decoder.Decode(ctx, r)
	s.logger.LogTiming("Replay of "+task, time.Since(start))

	result := s.result()
	if decodeErr != nil {
		result.Failed = true
		return result, decodeErr
	}
	return result, nil
}

func (s *Session) result() *Result {
	result := &Result{Summary: s.summary}
	for _, run := range s.runs {
		result.Failures = append(result.Failures, run.reporter.Records()...)
		if run.reporter.Failed() || run.decoder.Failed() {
			result.Failed = true
		}
	}
	return result
}

// Close releases every remaining capture buffer, removes the spill directory
// and writes the metrics file when configured.
func (s *Session) Close() error {
	var errs []error
	for _, run := range s.runs {
		if err := run.registry.CloseAll(); err != nil {
			errs = append(errs, capture.CleanupError(run.name, err))
		}
	}
	if err := os.RemoveAll(s.spillDir); err != nil {
		errs = append(errs, capture.CleanupError(s.spillDir, err))
	}
	if s.cfg.MetricsFile != "" {
		if err := s.metrics.WriteTextfile(s.cfg.MetricsFile); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// commandFor builds the command line of a go test task: the configured
// arguments, then -run, -count and tests.args, then the packages.
func (s *Session) commandFor(task *config.TaskConfig) (string, []string, error) {
	if len(s.opts.Command) > 0 {
		return s.opts.Command[0], append([]string(nil), s.opts.Command[1:]...), nil
	}

	args := append([]string(nil), task.Args...)
	packages := task.Packages

	run := ""
	if opt, ok := s.buildOps.Get(buildopts.OptionFilter); ok && opt.IsPresent() {
		run = opt.String()
	}
	if s.opts.Tests != "" {
		sel := ParseSelector(s.opts.Tests)
		packages = []string{sel.Package}
		if sel.Run != "" {
			run = sel.Run
		}
	}
	if run != "" {
		args = append(args, "-run", run)
	}

	if opt, ok := s.buildOps.Get(buildopts.OptionIters); ok && opt.IsPresent() {
		iters, err := opt.Int()
		if err != nil {
			return "", nil, capture.ConfigurationError("%v", err)
		}
		args = append(args, "-count", fmt.Sprint(iters))
	}

	if opt, ok := s.buildOps.Get(buildopts.OptionArgs); ok && opt.IsPresent() {
		extra, err := shellquote.Split(opt.String())
		if err != nil {
			return "", nil, capture.ConfigurationError("can't split %s: %v", buildopts.OptionArgs, err)
		}
		args = append(args, extra...)
	}

	return task.Command, append(args, packages...), nil
}

func (s *Session) timeoutFor(task *config.TaskConfig) (time.Duration, error) {
	if opt, ok := s.buildOps.Get(buildopts.OptionTimeout); ok && opt.IsPresent() {
		timeout, err := opt.Duration()
		if err != nil {
			return 0, capture.ConfigurationError("%v", err)
		}
		return timeout, nil
	}
	return task.TimeoutDuration(), nil
}

// reproBuilder returns the reproduce line builder for task: the configured
// entry point, then tests.seed, then every other non-default option. A task
// missing from the configuration, such as a replayed stream, is not named;
// --tests then narrows every configured task.
func (s *Session) reproBuilder(task string) *repro.Builder {
	entryPoint := s.cfg.EntryPoint
	if len(entryPoint) == 0 {
		entryPoint = []string{"testreport", "run"}
		if _, ok := s.cfg.Tasks[task]; ok {
			entryPoint = append(entryPoint, "--task", task)
		}
	}
	builder := repro.NewBuilder(entryPoint...)
	if seed, ok := s.buildOps.Get(buildopts.OptionSeed); ok && seed.IsPresent() {
		builder.AddProperty(seed.Name, seed.String())
	}
	for _, opt := range s.buildOps.All() {
		if opt.Name == buildopts.OptionSeed {
			continue
		}
		builder.AddOption(opt)
	}
	return builder
}

// taskRun is the capture pipeline of one task.
type taskRun struct {
	name       string
	reportsDir string
	registry   *capture.Registry
	reporter   *reporter.FailureReporter
	decoder    *testjson.Decoder
}

func (s *Session) newTaskRun(name string, echo bool) *taskRun {
	var echoWriter io.Writer
	if echo {
		echoWriter = s.console
	}
	spillDir := filepath.Join(s.spillDir, name)

	registry := capture.NewRegistry(func(key capture.SuiteKey) *capture.Aggregator {
		s.metrics.BufferOpened()
		return capture.NewAggregator(key.String(), capture.AggregatorOptions{
			MaxBuffered:  s.cfg.MaxBuffered,
			MaxLineWidth: s.cfg.MaxLineWidth,
			SpillFactory: capture.TempFileFactory(spillDir),
			Echo:         echoWriter,
			OnSpill: func(path string, buffered int) {
				s.metrics.RecordSpill()
				s.logger.LogSpill(path, buffered)
			},
			OnClose: s.metrics.BufferClosed,
		})
	})

	builder := s.reproBuilder(name)
	run := &taskRun{
		name:       name,
		reportsDir: filepath.Join(s.cfg.ReportsDir, name),
		registry:   registry,
	}
	run.reporter = reporter.NewFailureReporter(registry, reporter.Options{
		Task:           name,
		ReportsDir:     run.reportsDir,
		WarnOutputSize: s.cfg.WarnOutputSize,
		Echo:           echo,
		Quiet:          s.opts.Quiet,
		StripANSI:      s.cfg.StripANSI,
		ReproduceLine:  func(d *events.Descriptor) string { return builder.Line(d) },
		Console:        s.console,
		Logger:         s.logger,
		Metrics:        s.metrics,
		Summary:        s.summary,
	})
	run.decoder = testjson.NewDecoder(name, run.reporter, s.logger)
	s.runs = append(s.runs, run)
	return run
}
