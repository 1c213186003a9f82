// Package executor launches test task commands and streams their output.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultTimeout bounds a test command when the task sets no timeout.
const DefaultTimeout = 30 * time.Minute

// waitDelay is how long Wait waits for output pipes after the process is killed.
const waitDelay = 5 * time.Second

// ExecOptions defines options for command execution
type ExecOptions struct {
	// Working directory for the command
	WorkingDir string
	// Environment variables (in KEY=VALUE format)
	Environment []string
	// Timeout for command execution
	Timeout time.Duration
	// Whether to inherit parent process environment
	InheritEnv bool
}

// ExecResult contains the result of command execution
type ExecResult struct {
	// Exit code of the command
	ExitCode int
	// Whether the command timed out
	TimedOut bool
	// Wall time of the command
	Duration time.Duration
	// Error if the command failed to start or the output consumer failed
	Error error
}

// Failed reports whether the command did not complete successfully.
func (r *ExecResult) Failed() bool {
	return r.Error != nil || r.ExitCode != 0 || r.TimedOut
}

// StdoutConsumer reads the command's standard output until EOF.
type StdoutConsumer func(stdout io.Reader) error

// CommandExecutor executes external commands
type CommandExecutor struct {
	// Default timeout for commands if not specified
	defaultTimeout time.Duration
}

// NewCommandExecutor creates a new command executor
func NewCommandExecutor(defaultTimeout time.Duration) *CommandExecutor {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	return &CommandExecutor{
		defaultTimeout: defaultTimeout,
	}
}

// Execute runs a command, handing its standard output to consume while it
// runs and copying standard error to stderr. If consume fails the process is
// killed and the consumer's error is returned in the result.
func (e *CommandExecutor) Execute(ctx context.Context, command string, args []string, options ExecOptions, consume StdoutConsumer, stderr io.Writer) (*ExecResult, error) {
	if command == "" {
		return nil, fmt.Errorf("command cannot be empty")
	}

	timeout := options.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.WaitDelay = waitDelay

	if options.WorkingDir != "" {
		dir, err := checkWorkingDir(options.WorkingDir)
		if err != nil {
			return nil, err
		}
		cmd.Dir = dir
	}

	if env := prepareEnvironment(options); len(env) > 0 {
		cmd.Env = env
	}
	if stderr != nil {
		cmd.Stderr = stderr
	}

	var stdout io.ReadCloser
	if consume != nil {
		pipe, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("creating stdout pipe: %w", err)
		}
		stdout = pipe
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return &ExecResult{
			ExitCode: -1,
			Error:    ClassifyError(err, command, args),
		}, nil
	}

	var consumeErr error
	if consume != nil {
		consumeErr = consume(stdout)
		if consumeErr != nil {
			cancel()
		} else {
			// Drain whatever the consumer left so Wait can return.
			_, _ = io.Copy(io.Discard, stdout) //nolint:errcheck // pipe closes on exit
		}
	}

	waitErr := cmd.Wait()
	result := &ExecResult{
		Duration: time.Since(start),
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}

	switch {
	case consumeErr != nil:
		result.ExitCode = -1
		result.Error = consumeErr
	case waitErr == nil:
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			result.Error = waitErr
		}
	}
	if result.TimedOut && result.Error == nil {
		result.Error = ClassifyError(context.DeadlineExceeded, command, args)
	}
	return result, nil
}

func checkWorkingDir(dir string) (string, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return "", &ExecError{Type: ErrorTypeWorkingDirectory, Err: err, Details: err.Error()}
	}
	if _, err := os.Stat(absPath); err != nil {
		details := err.Error()
		if os.IsNotExist(err) {
			details = absPath + " does not exist"
		}
		return "", &ExecError{Type: ErrorTypeWorkingDirectory, Err: err, Details: details}
	}
	return absPath, nil
}

// prepareEnvironment merges the parent environment, if inherited, with the
// options' variables. Later entries override earlier ones; output is sorted.
func prepareEnvironment(options ExecOptions) []string {
	var env []string
	if options.InheritEnv {
		env = os.Environ()
	}

	envMap := make(map[string]string)
	for _, kv := range append(env, options.Environment...) {
		if key, value, ok := strings.Cut(kv, "="); ok {
			envMap[key] = value
		}
	}

	env = make([]string, 0, len(envMap))
	for k, v := range envMap {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
