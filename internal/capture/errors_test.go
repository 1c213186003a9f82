package capture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsAndMessage(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{
			name:     "capture",
			err:      CaptureError("pkg/a", base),
			sentinel: ErrCapture,
			message:  "unable to capture test output for pkg/a: boom",
		},
		{
			name:     "report",
			err:      ReportError("/out/OUTPUT-a.txt", base),
			sentinel: ErrReport,
			message:  "unable to write failure log /out/OUTPUT-a.txt: boom",
		},
		{
			name:     "cleanup",
			err:      CleanupError("pkg/a", base),
			sentinel: ErrCleanup,
			message:  "failed to close output handler for pkg/a: boom",
		},
		{
			name:     "configuration",
			err:      ConfigurationError("run only %d task", 1),
			sentinel: ErrConfiguration,
			message:  "configuration error: run only 1 task",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.message, tt.err.Error())
			for _, other := range []error{ErrCapture, ErrReport, ErrCleanup, ErrConfiguration} {
				if other != tt.sentinel {
					assert.NotErrorIs(t, tt.err, other)
				}
			}
		})
	}

	assert.ErrorIs(t, CaptureError("x", base), base)
	assert.NoError(t, CaptureError("x", nil))
	assert.NoError(t, ReportError("x", nil))
	assert.NoError(t, CleanupError("x", nil))
}
