package executor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// DefaultMaxParallel is the number of test tasks run at once when unset.
const DefaultMaxParallel = 4

// ParallelResult represents the result of a parallel execution
type ParallelResult struct {
	// Individual results keyed by identifier
	Results map[string]*ExecResult
	// Order of the commands as given
	Order []string
	// Total execution time
	TotalTime time.Duration
	// Whether any command failed
	HasFailures bool
	// Count of successful executions
	SuccessCount int
	// Count of failed executions
	FailureCount int
}

// ParallelCommand is one test task command.
type ParallelCommand struct {
	// Unique identifier for this command
	ID string
	// Command to execute
	Command string
	// Command arguments
	Args []string
	// Execution options
	Options ExecOptions
	// Consume reads the command's standard output
	Consume StdoutConsumer
	// Stderr receives the command's standard error
	Stderr io.Writer
	// Before runs once the command holds a slot, before it starts
	Before func() error
}

// ProgressCallback is called to report progress during parallel execution
type ProgressCallback func(completed int, total int, currentID string)

// ParallelExecutor executes multiple commands concurrently
type ParallelExecutor struct {
	executor    *CommandExecutor
	maxParallel int
}

// NewParallelExecutor creates a new parallel executor
func NewParallelExecutor(executor *CommandExecutor, maxParallel int) *ParallelExecutor {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	return &ParallelExecutor{
		executor:    executor,
		maxParallel: maxParallel,
	}
}

// MaxParallel returns the concurrency limit.
func (pe *ParallelExecutor) MaxParallel() int {
	return pe.maxParallel
}

// Execute runs the commands with at most maxParallel in flight.
func (pe *ParallelExecutor) Execute(ctx context.Context, commands []ParallelCommand, progress ProgressCallback) *ParallelResult {
	result := &ParallelResult{
		Results: make(map[string]*ExecResult, len(commands)),
		Order:   make([]string, 0, len(commands)),
	}
	for _, cmd := range commands {
		result.Order = append(result.Order, cmd.ID)
	}
	if len(commands) == 0 {
		return result
	}

	startTime := time.Now()
	semaphore := make(chan struct{}, pe.maxParallel)
	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0

	for _, cmd := range commands {
		wg.Add(1)
		go func(pc ParallelCommand) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			execResult := pe.run(ctx, pc)

			mu.Lock()
			result.Results[pc.ID] = execResult
			completed++
			current := completed
			mu.Unlock()

			if progress != nil {
				progress(current, len(commands), pc.ID)
			}
		}(cmd)
	}
	wg.Wait()

	result.TotalTime = time.Since(startTime)
	for _, execResult := range result.Results {
		if execResult.Failed() {
			result.FailureCount++
			result.HasFailures = true
		} else {
			result.SuccessCount++
		}
	}
	return result
}

func (pe *ParallelExecutor) run(ctx context.Context, pc ParallelCommand) *ExecResult {
	if err := ctx.Err(); err != nil {
		return &ExecResult{ExitCode: -1, Error: err}
	}
	if pc.Before != nil {
		if err := pc.Before(); err != nil {
			return &ExecResult{ExitCode: -1, Error: err}
		}
	}
	execResult, err := pe.executor.Execute(ctx, pc.Command, pc.Args, pc.Options, pc.Consume, pc.Stderr)
	if err != nil {
		return &ExecResult{ExitCode: -1, Error: err}
	}
	return execResult
}

// FailureSummary lists the commands that failed, in the order given.
func (r *ParallelResult) FailureSummary() string {
	if !r.HasFailures {
		return ""
	}

	var summary strings.Builder
	fmt.Fprintf(&summary, "Failed test tasks (%d/%d):\n", r.FailureCount, len(r.Order))
	for _, id := range r.Order {
		res, ok := r.Results[id]
		if !ok || !res.Failed() {
			continue
		}
		switch {
		case res.TimedOut:
			fmt.Fprintf(&summary, "  - %s: timed out\n", id)
		case res.Error != nil:
			fmt.Fprintf(&summary, "  - %s: %v\n", id, res.Error)
		default:
			fmt.Fprintf(&summary, "  - %s: exit code %d\n", id, res.ExitCode)
		}
	}
	return summary.String()
}
