package capture

import (
	"fmt"
	"io"
)

// ChannelKind selects one of the three logical output streams of a suite.
type ChannelKind int

const (
	// ChannelInternal carries diagnostics produced by the runner itself
	ChannelInternal ChannelKind = iota
	// ChannelStdout carries the suite's standard output
	ChannelStdout
	// ChannelStderr carries the suite's standard error
	ChannelStderr
)

// String returns the channel name
func (k ChannelKind) String() string {
	switch k {
	case ChannelInternal:
		return "internal"
	case ChannelStdout:
		return "stdout"
	case ChannelStderr:
		return "stderr"
	default:
		return fmt.Sprintf("channel(%d)", int(k))
	}
}

// AggregatorOptions configures a new Aggregator.
type AggregatorOptions struct {
	// MaxBuffered is the in-memory budget before spilling to disk
	MaxBuffered int
	// MaxLineWidth is the force-wrap width of each channel
	MaxLineWidth int
	// SpillFactory creates the spill file
	SpillFactory SpillFileFactory
	// Echo, when set, receives every written chunk unprefixed as it arrives
	Echo io.Writer
	// OnSpill is called once if the buffer moves to disk
	OnSpill func(path string, buffered int)
	// OnClose is called once, on the first Close
	OnClose func()
}

// FailedTest is a failed individual test recorded for the suite's failure log.
type FailedTest struct {
	ClassName  string
	Name       string
	Exceptions []string
}

// Aggregator owns the capture buffer of one suite and the three prefixed
// channels writing into it. It is driven by a single suite event stream and
// is not safe for concurrent use.
type Aggregator struct {
	subject string
	buffer  *SpillBuffer
	echo    io.Writer

	channels [3]*PrefixedChannel
	last     ChannelKind

	failures []FailedTest

	onClose func()
	closed  bool
}

// NewAggregator creates an aggregator for the suite named by subject.
func NewAggregator(subject string, opts AggregatorOptions) *Aggregator {
	maxBuffered := opts.MaxBuffered
	if maxBuffered <= 0 {
		maxBuffered = DefaultMaxBuffered
	}
	buffer := NewSpillBuffer(maxBuffered, opts.SpillFactory)
	if opts.OnSpill != nil {
		buffer.OnSpill(opts.OnSpill)
	}

	a := &Aggregator{
		subject: subject,
		buffer:  buffer,
		echo:    opts.Echo,
		last:    ChannelInternal,
		onClose: opts.OnClose,
	}
	a.channels[ChannelInternal] = NewPrefixedChannel(InternalPrefix, buffer, opts.MaxLineWidth)
	a.channels[ChannelStdout] = NewPrefixedChannel(StdoutPrefix, buffer, opts.MaxLineWidth)
	a.channels[ChannelStderr] = NewPrefixedChannel(StderrPrefix, buffer, opts.MaxLineWidth)
	return a
}

// Write appends text to the given channel. A partial line left on the
// previously used channel is terminated first so prefixes never mix mid-line.
func (a *Aggregator) Write(kind ChannelKind, text string) error {
	if kind < ChannelInternal || kind > ChannelStderr {
		return CaptureError(a.subject, fmt.Errorf("unknown channel %v", kind))
	}
	if text == "" {
		return nil
	}

	if kind != a.last {
		if err := a.channels[a.last].CompleteLine(); err != nil {
			return CaptureError(a.subject, err)
		}
		a.last = kind
	}
	if err := a.channels[kind].WriteString(text); err != nil {
		return CaptureError(a.subject, err)
	}

	if a.echo != nil {
		_, _ = io.WriteString(a.echo, text) //nolint:errcheck // live echo is best effort
	}
	return nil
}

// RecordFailure remembers a failed individual test for the failure log.
func (a *Aggregator) RecordFailure(className, name string, exceptions []string) {
	a.failures = append(a.failures, FailedTest{
		ClassName:  className,
		Name:       name,
		Exceptions: exceptions,
	})
}

// Failures returns the failed tests recorded so far.
func (a *Aggregator) Failures() []FailedTest {
	return a.failures
}

// TotalLength returns the number of bytes captured in the buffer.
func (a *Aggregator) TotalLength() (int64, error) {
	n, err := a.buffer.Len()
	if err != nil {
		return 0, CaptureError(a.subject, err)
	}
	return n, nil
}

// Spilled reports whether the captured output lives on disk.
func (a *Aggregator) Spilled() bool {
	return a.buffer.Spilled()
}

// Flush terminates pending lines on all channels.
func (a *Aggregator) Flush() error {
	for _, ch := range a.channels {
		if err := ch.CompleteLine(); err != nil {
			return CaptureError(a.subject, err)
		}
	}
	if err := a.buffer.Flush(); err != nil {
		return CaptureError(a.subject, err)
	}
	return nil
}

// DrainTo flushes all channels and copies the complete captured output to dst.
func (a *Aggregator) DrainTo(dst io.Writer) (int64, error) {
	if err := a.Flush(); err != nil {
		return 0, err
	}
	n, err := a.buffer.CopyTo(dst)
	if err != nil {
		return n, CaptureError(a.subject, err)
	}
	return n, nil
}

// Close releases the buffer and deletes its spill file. Further calls do nothing.
func (a *Aggregator) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if a.onClose != nil {
		defer a.onClose()
	}
	if err := a.buffer.Close(); err != nil {
		return CleanupError(a.subject, err)
	}
	return nil
}
