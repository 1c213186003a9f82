// Package reporter persists and prints the captured output of failed test suites.
package reporter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/bebsworthy/testreport/internal/capture"
	"github.com/bebsworthy/testreport/internal/debug"
	"github.com/bebsworthy/testreport/internal/events"
	"github.com/bebsworthy/testreport/internal/metrics"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// DefaultWarnOutputSize is the captured size above which output is never printed inline.
const DefaultWarnOutputSize = 10 * 1024 * 1024

var (
	failureStyle = color.New(color.FgRed, color.Bold)
	successStyle = color.New(color.FgGreen)
)

// Options configures a FailureReporter.
type Options struct {
	// Task names the test task; used for the summary
	Task string
	// ReportsDir receives one OUTPUT-<suite>.txt file per failed suite
	ReportsDir string
	// WarnOutputSize is the inline display threshold in bytes
	WarnOutputSize int64
	// Echo mutes the failure block because output was already mirrored live
	Echo bool
	// Quiet replaces the styled block with a single error line
	Quiet bool
	// StripANSI removes terminal escapes from content printed inline
	StripANSI bool
	// ReproduceLine returns the command that reruns a suite or test; optional
	ReproduceLine func(d *events.Descriptor) string
	// Console receives failure blocks
	Console io.Writer
	Logger  *debug.Logger
	Metrics *metrics.Metrics
	Summary *Summary
}

// FailureRecord describes one reported suite failure.
type FailureRecord struct {
	Key        capture.SuiteKey
	Suite      string
	Result     events.ResultType
	Length     int64
	LogPath    string
	Exceptions []string
}

// FailureReporter is an events.Listener that captures suite output and, when
// a suite fails, writes it to a log file and prints a summary block.
type FailureReporter struct {
	registry *capture.Registry
	opts     Options
	console  io.Writer
	logger   *debug.Logger

	finalized sync.Map // SuiteKey -> struct{}

	mu      sync.Mutex
	records []FailureRecord
}

// NewFailureReporter creates a reporter over registry.
func NewFailureReporter(registry *capture.Registry, opts Options) *FailureReporter {
	if opts.WarnOutputSize <= 0 {
		opts.WarnOutputSize = DefaultWarnOutputSize
	}
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = debug.Default()
	}
	return &FailureReporter{
		registry: registry,
		opts:     opts,
		console:  capture.NewStreamingWriter(console),
		logger:   logger,
	}
}

// BeforeSuite implements events.Listener
func (r *FailureReporter) BeforeSuite(*events.Descriptor) error { return nil }

// BeforeTest implements events.Listener
func (r *FailureReporter) BeforeTest(*events.Descriptor) error { return nil }

// OnOutput implements events.Listener
func (r *FailureReporter) OnOutput(d *events.Descriptor, event events.OutputEvent) error {
	if reportTarget(d).IsRoot() {
		r.logger.Log("Dropping %d bytes of output outside any suite", len(event.Message))
		return nil
	}
	kind := capture.ChannelStdout
	if event.Destination == events.StdErr {
		kind = capture.ChannelStderr
	}
	if err := r.registry.HandlerFor(d).Write(kind, event.Message); err != nil {
		return err
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordCaptured(len(event.Message))
	}
	return nil
}

// AfterTest implements events.Listener
func (r *FailureReporter) AfterTest(test *events.Descriptor, result events.Result) error {
	if r.opts.Summary != nil {
		r.opts.Summary.TestResult(r.opts.Task, test, result)
	}
	if result.Type != events.ResultFailure || reportTarget(test).IsRoot() {
		return nil
	}
	r.registry.HandlerFor(test).RecordFailure(test.ClassName, test.Display(), result.Exceptions)
	return nil
}

// AfterSuite implements events.Listener
func (r *FailureReporter) AfterSuite(suite *events.Descriptor, result events.Result) error {
	if suite.IsRoot() {
		return nil
	}

	key := capture.KeyOf(suite)
	if _, done := r.finalized.LoadOrStore(key, struct{}{}); done {
		r.logger.Log("Suite %s already finalized", key)
		return nil
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordSuite(result.Type.String())
	}

	agg, _ := r.registry.Remove(key)
	defer r.release(agg)

	if agg != nil {
		if err := agg.Flush(); err != nil {
			return err
		}
		length, err := agg.TotalLength()
		if err != nil {
			return err
		}
		if length > r.opts.WarnOutputSize && result.Type != events.ResultFailure {
			r.logger.Warn("Test %s wrote %s bytes of output.", suite.Name, humanize.Comma(length))
		}
	}

	if result.Type != events.ResultFailure {
		return nil
	}

	record, err := r.writeLog(suite, key, agg)
	if err != nil {
		return err
	}
	record.Result = result.Type
	r.mu.Lock()
	r.records = append(r.records, record)
	r.mu.Unlock()

	if record.Length > r.opts.WarnOutputSize {
		r.logger.Warn("Output of %s is too large to display (%s bytes), see %s",
			suite.Display(), humanize.Comma(record.Length), record.LogPath)
	}
	if r.opts.Echo {
		return nil
	}
	if r.opts.Quiet {
		r.logger.Error("%s > TESTS FAILED\n    Test output at: %s", suite.Display(), record.LogPath)
		return nil
	}
	return r.printBlock(suite, record, agg)
}

// release closes a finalized suite's aggregator. Close failures are logged
// and never fail the suite.
func (r *FailureReporter) release(agg *capture.Aggregator) {
	if agg == nil {
		return
	}
	if err := agg.Close(); err != nil {
		r.logger.Error("%v", err)
	}
}

func (r *FailureReporter) writeLog(suite *events.Descriptor, key capture.SuiteKey, agg *capture.Aggregator) (FailureRecord, error) {
	path := filepath.Join(r.opts.ReportsDir, LogFileName(suite.Display()))
	record := FailureRecord{Key: key, Suite: suite.Display(), LogPath: path}

	if err := os.MkdirAll(r.opts.ReportsDir, 0o750); err != nil {
		return record, capture.ReportError(path, err)
	}
	// #nosec G304 - path is built from the reports dir and a sanitized name
	f, err := os.Create(path)
	if err != nil {
		return record, capture.ReportError(path, err)
	}
	defer f.Close() //nolint:errcheck // closed explicitly below on the success path

	w := bufio.NewWriter(f)
	if agg != nil {
		if _, err := agg.DrainTo(w); err != nil {
			return record, err
		}
		for _, failed := range agg.Failures() {
			record.Exceptions = append(record.Exceptions, failed.Exceptions...)
			if _, err := io.WriteString(w, failureBlock(failed)); err != nil {
				return record, capture.ReportError(path, err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return record, capture.ReportError(path, err)
	}
	if err := f.Close(); err != nil {
		return record, capture.ReportError(path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return record, capture.ReportError(path, err)
	}
	record.Length = info.Size()

	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordFailureLog()
	}
	r.logger.Log("Wrote failure log %s (%d bytes, spilled: %v)", path, record.Length, agg != nil && agg.Spilled())
	return record, nil
}

func failureBlock(failed capture.FailedTest) string {
	var b strings.Builder
	b.WriteString("Test: " + failed.ClassName + "." + failed.Name + " FAILED\n")
	if len(failed.Exceptions) > 0 {
		b.WriteString("Exception:\n")
		for _, exception := range failed.Exceptions {
			b.WriteString(exception)
			if !strings.HasSuffix(exception, "\n") {
				b.WriteString("\n")
			}
		}
	}
	b.WriteString("\n")
	return b.String()
}

// printBlock writes the styled failure block as a single console write so
// blocks of concurrently finishing suites never interleave.
func (r *FailureReporter) printBlock(suite *events.Descriptor, record FailureRecord, agg *capture.Aggregator) error {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(suite.Display() + " > " + failureStyle.Sprint("TESTS FAILED") + "\n")
	if r.opts.ReproduceLine != nil {
		b.WriteString("    reproduce with: " + successStyle.Sprint(r.opts.ReproduceLine(reproduceTarget(suite, agg))) + "\n")
	}
	b.WriteString("    test suite's output: " + successStyle.Sprint(record.LogPath))

	if record.Length > r.opts.WarnOutputSize {
		b.WriteString(fmt.Sprintf(" (too large to display here: %d bytes).\n", record.Length))
	} else {
		// #nosec G304 - the log was just written by this reporter
		content, err := os.ReadFile(record.LogPath)
		if err != nil {
			return capture.ReportError(record.LogPath, err)
		}
		text := string(content)
		if r.opts.StripANSI {
			text = stripansi.Strip(text)
		}
		b.WriteString(" (copied below):\n")
		b.WriteString(text)
	}

	if _, err := io.WriteString(r.console, b.String()); err != nil {
		return capture.ReportError(record.LogPath, err)
	}
	return nil
}

// Records returns the failures reported so far.
func (r *FailureReporter) Records() []FailureRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FailureRecord(nil), r.records...)
}

// Failed reports whether any suite failed.
func (r *FailureReporter) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records) > 0
}

// reportTarget returns the descriptor whose aggregator receives d's output.
func reportTarget(d *events.Descriptor) *events.Descriptor {
	if !d.Composite && d.Parent != nil {
		return d.Parent
	}
	return d
}

// reproduceTarget narrows the reproduce selector to the failing test when it
// is the only failure in the suite.
func reproduceTarget(suite *events.Descriptor, agg *capture.Aggregator) *events.Descriptor {
	if agg == nil {
		return suite
	}
	failures := agg.Failures()
	if len(failures) != 1 {
		return suite
	}
	return &events.Descriptor{
		Name:      failures[0].Name,
		ClassName: failures[0].ClassName,
		Parent:    suite,
	}
}
