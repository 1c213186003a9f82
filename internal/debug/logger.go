// Package debug provides leveled logging for testreport.
package debug

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger provides debug logging plus always-on warnings and errors.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	writer  io.Writer
	start   time.Time
}

// New creates a logger writing to w with debug output disabled.
func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{writer: w, start: time.Now()}
}

// Global debug logger instance
var globalLogger = New(os.Stderr)

// Default returns the process-wide logger.
func Default() *Logger {
	return globalLogger
}

// Enable enables debug logging
func Enable() {
	globalLogger.Enable()
}

// IsEnabled returns whether debug logging is enabled
func IsEnabled() bool {
	return globalLogger.IsEnabled()
}

// SetWriter sets the output writer for debug logs
func SetWriter(w io.Writer) {
	globalLogger.SetWriter(w)
}

// Log writes a debug message if debugging is enabled
func Log(format string, args ...interface{}) {
	globalLogger.Log(format, args...)
}

// LogSection writes a section header for better organization
func LogSection(title string) {
	globalLogger.LogSection(title)
}

// LogError logs error details
func LogError(err error, context string) {
	globalLogger.LogError(err, context)
}

// LogTiming logs timing information
func LogTiming(operation string, duration time.Duration) {
	globalLogger.LogTiming(operation, duration)
}

// Warn writes a warning regardless of the debug flag.
func Warn(format string, args ...interface{}) {
	globalLogger.Warn(format, args...)
}

// Error writes an error message regardless of the debug flag.
func Error(format string, args ...interface{}) {
	globalLogger.Error(format, args...)
}

// Enable turns on debug output and resets the elapsed-time origin.
func (l *Logger) Enable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = true
	l.start = time.Now()
}

// IsEnabled reports whether debug output is on.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// SetWriter replaces the destination writer.
func (l *Logger) SetWriter(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// Log writes a debug message if debugging is enabled
func (l *Logger) Log(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return
	}

	elapsed := time.Since(l.start)
	l.emit(fmt.Sprintf("[DEBUG %s] ", formatDuration(elapsed)), format, args...)
}

// LogSection writes a section header for better organization
func (l *Logger) LogSection(title string) {
	l.Log("=== %s ===", title)
}

// LogError logs error details
func (l *Logger) LogError(err error, context string) {
	l.Log("Error in %s: %v", context, err)
}

// LogTiming logs timing information
func (l *Logger) LogTiming(operation string, duration time.Duration) {
	l.Log("Timing: %s took %s", operation, formatDuration(duration))
}

// LogSpill logs the in-memory to disk transition of a capture buffer.
func (l *Logger) LogSpill(path string, buffered int) {
	l.Log("Spill: %d buffered bytes moved to %s", buffered, path)
}

// Warn writes a warning regardless of the debug flag.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emit("WARNING: ", format, args...)
}

// Error writes an error message regardless of the debug flag.
func (l *Logger) Error(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emit("ERROR: ", format, args...)
}

// emit must be called with l.mu held.
func (l *Logger) emit(prefix, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)

	// Ensure message ends with newline
	if !strings.HasSuffix(message, "\n") {
		message += "\n"
	}

	_, _ = fmt.Fprint(l.writer, prefix+message)
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
