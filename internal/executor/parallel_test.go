package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParallelExecutor(t *testing.T) {
	cmdExecutor := NewCommandExecutor(10 * time.Second)

	tests := []struct {
		name             string
		maxParallel      int
		expectedParallel int
	}{
		{"positive value", 8, 8},
		{"zero value uses default", 0, DefaultMaxParallel},
		{"negative value uses default", -1, DefaultMaxParallel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := NewParallelExecutor(cmdExecutor, tt.maxParallel)
			if pe.MaxParallel() != tt.expectedParallel {
				t.Errorf("expected maxParallel %d, got %d", tt.expectedParallel, pe.MaxParallel())
			}
		})
	}
}

func TestParallelExecute_StreamsEachCommand(t *testing.T) {
	requireShell(t)
	pe := NewParallelExecutor(NewCommandExecutor(10*time.Second), 2)

	outputs := make([]bytes.Buffer, 4)
	var commands []ParallelCommand
	for i := range outputs {
		commands = append(commands, ParallelCommand{
			ID:      fmt.Sprintf("task%d", i),
			Command: "sh",
			Args:    []string{"-c", fmt.Sprintf("echo task%d; exit %d", i, i%2)},
			Options: ExecOptions{InheritEnv: true},
			Consume: collect(&outputs[i]),
		})
	}

	var progressCalls atomic.Int32
	result := pe.Execute(context.Background(), commands, func(completed, total int, _ string) {
		progressCalls.Add(1)
		assert.LessOrEqual(t, completed, total)
	})

	assert.Equal(t, []string{"task0", "task1", "task2", "task3"}, result.Order)
	assert.Equal(t, int32(4), progressCalls.Load())
	for i := range outputs {
		assert.Equal(t, fmt.Sprintf("task%d\n", i), outputs[i].String())
	}
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 2, result.FailureCount)
	assert.True(t, result.HasFailures)
	assert.Equal(t,
		"Failed test tasks (2/4):\n  - task1: exit code 1\n  - task3: exit code 1\n",
		result.FailureSummary())
}

func TestParallelExecute_RespectsLimit(t *testing.T) {
	requireShell(t)
	pe := NewParallelExecutor(NewCommandExecutor(10*time.Second), 2)

	var mu sync.Mutex
	running, peak := 0, 0
	var commands []ParallelCommand
	for i := 0; i < 6; i++ {
		commands = append(commands, ParallelCommand{
			ID:      fmt.Sprintf("task%d", i),
			Command: "sh",
			Args:    []string{"-c", "sleep 0.05"},
			Options: ExecOptions{InheritEnv: true},
			Before: func() error {
				mu.Lock()
				running++
				if running > peak {
					peak = running
				}
				mu.Unlock()
				return nil
			},
			Consume: func(r io.Reader) error {
				_, err := io.Copy(io.Discard, r)
				mu.Lock()
				running--
				mu.Unlock()
				return err
			},
		})
	}

	result := pe.Execute(context.Background(), commands, nil)
	assert.False(t, result.HasFailures)
	assert.LessOrEqual(t, peak, 2)
}

func TestParallelExecute_BeforeErrorSkipsCommand(t *testing.T) {
	pe := NewParallelExecutor(NewCommandExecutor(10*time.Second), 1)
	boom := errors.New("purge failed")

	result := pe.Execute(context.Background(), []ParallelCommand{{
		ID:      "unit",
		Command: "testreport-no-such-command",
		Before:  func() error { return boom },
	}}, nil)

	require.Contains(t, result.Results, "unit")
	assert.ErrorIs(t, result.Results["unit"].Error, boom)
	assert.Equal(t, 1, result.FailureCount)
}

func TestParallelExecute_CanceledContext(t *testing.T) {
	pe := NewParallelExecutor(NewCommandExecutor(10*time.Second), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := pe.Execute(ctx, []ParallelCommand{{ID: "a", Command: "go"}, {ID: "b", Command: "go"}}, nil)

	assert.Equal(t, 2, result.FailureCount)
	assert.ErrorIs(t, result.Results["a"].Error, context.Canceled)
}

func TestParallelExecute_Empty(t *testing.T) {
	pe := NewParallelExecutor(NewCommandExecutor(0), 0)
	result := pe.Execute(context.Background(), nil, nil)
	assert.Empty(t, result.Results)
	assert.Empty(t, result.FailureSummary())
}
