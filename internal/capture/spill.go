package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultMaxBuffered is the in-memory budget of a SpillBuffer before it moves to disk.
const DefaultMaxBuffered = 2 * 1024

const copyBufferSize = 32 * 1024

// SpillFileFactory creates the temporary file a SpillBuffer spills into.
type SpillFileFactory func() (*os.File, error)

// TempFileFactory returns a factory creating "spill-*.tmp" files under dir,
// creating dir first if needed.
func TempFileFactory(dir string) SpillFileFactory {
	return func() (*os.File, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create spill directory %s: %w", dir, err)
		}
		return os.CreateTemp(dir, "spill-*.tmp")
	}
}

// SpillBuffer accumulates bytes in memory up to maxBuffered and then moves
// everything to a temporary file for the rest of its life. It is not safe
// for concurrent use.
type SpillBuffer struct {
	maxBuffered int
	factory     SpillFileFactory
	onSpill     func(path string, buffered int)

	buffer  []byte
	file    *os.File
	writer  *bufio.Writer
	path    string
	written int64
	closed  bool
}

// NewSpillBuffer creates a buffer that spills through factory once more than
// maxBuffered bytes have been written.
func NewSpillBuffer(maxBuffered int, factory SpillFileFactory) *SpillBuffer {
	if maxBuffered < 0 {
		maxBuffered = DefaultMaxBuffered
	}
	return &SpillBuffer{
		maxBuffered: maxBuffered,
		factory:     factory,
		buffer:      make([]byte, 0, min(maxBuffered, DefaultMaxBuffered)),
	}
}

// OnSpill registers a callback invoked once, right after the buffer moved to disk.
func (b *SpillBuffer) OnSpill(fn func(path string, buffered int)) {
	b.onSpill = fn
}

// Write implements io.Writer.
func (b *SpillBuffer) Write(p []byte) (int, error) {
	if b.closed {
		return 0, errors.New("spill buffer is closed")
	}
	if len(p) == 0 {
		return 0, nil
	}

	if b.file == nil {
		if len(b.buffer)+len(p) <= b.maxBuffered {
			b.buffer = append(b.buffer, p...)
			b.written += int64(len(p))
			return len(p), nil
		}
		if err := b.spill(); err != nil {
			return 0, err
		}
	}

	n, err := b.writer.Write(p)
	b.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("failed to write spill file %s: %w", b.path, err)
	}
	return n, nil
}

// WriteString appends s.
func (b *SpillBuffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// spill creates the backing file and moves the in-memory content into it.
func (b *SpillBuffer) spill() error {
	if b.factory == nil {
		return errors.New("no spill file factory configured")
	}
	file, err := b.factory()
	if err != nil {
		return fmt.Errorf("failed to create spill file: %w", err)
	}

	b.file = file
	b.path = file.Name()
	b.writer = bufio.NewWriterSize(file, copyBufferSize)

	buffered := len(b.buffer)
	if _, err := b.writer.Write(b.buffer); err != nil {
		return fmt.Errorf("failed to write spill file %s: %w", b.path, err)
	}
	b.buffer = nil

	if b.onSpill != nil {
		b.onSpill(b.path, buffered)
	}
	return nil
}

// Spilled reports whether content has moved to disk.
func (b *SpillBuffer) Spilled() bool {
	return b.file != nil
}

// Path returns the spill file path, or "" while content is in memory.
func (b *SpillBuffer) Path() string {
	return b.path
}

// Flush pushes pending bytes of a spilled buffer to the file.
func (b *SpillBuffer) Flush() error {
	if b.writer == nil {
		return nil
	}
	if err := b.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush spill file %s: %w", b.path, err)
	}
	return nil
}

// Len returns the total number of bytes written so far.
func (b *SpillBuffer) Len() (int64, error) {
	if err := b.Flush(); err != nil {
		return 0, err
	}
	return b.written, nil
}

// CopyTo streams the full content, in write order, to dst.
func (b *SpillBuffer) CopyTo(dst io.Writer) (int64, error) {
	if b.closed {
		return 0, errors.New("spill buffer is closed")
	}
	if b.file == nil {
		n, err := dst.Write(b.buffer)
		return int64(n), err
	}

	if err := b.Flush(); err != nil {
		return 0, err
	}
	// #nosec G304 - path was created by the spill factory
	src, err := os.Open(b.path)
	if err != nil {
		return 0, fmt.Errorf("failed to reopen spill file %s: %w", b.path, err)
	}
	defer func() { _ = src.Close() }() //nolint:errcheck // read-only handle

	return io.CopyBuffer(dst, src, make([]byte, copyBufferSize))
}

// Close releases the buffer and deletes the spill file if one was created.
// Content must be copied elsewhere before Close. Calling Close twice is a no-op.
func (b *SpillBuffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.buffer = nil
	if b.file == nil {
		return nil
	}

	var errs []error
	if err := b.writer.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := b.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
