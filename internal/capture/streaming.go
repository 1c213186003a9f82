package capture

import (
	"io"
	"sync"
)

// StreamingWriter is a thread-safe writer used for the live console echo
type StreamingWriter struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewStreamingWriter creates a new streaming writer
func NewStreamingWriter(w io.Writer) *StreamingWriter {
	return &StreamingWriter{writer: w}
}

// Write implements io.Writer interface
func (sw *StreamingWriter) Write(p []byte) (n int, err error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.writer.Write(p)
}
