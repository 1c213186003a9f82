package capture

import (
	"io"
	"strings"
)

// DefaultMaxLineWidth is the longest unterminated line a PrefixedChannel holds before wrapping.
const DefaultMaxLineWidth = 4 * 1024

// Channel prefixes used by an Aggregator.
const (
	InternalPrefix = "   > "
	StdoutPrefix   = "  1> "
	StderrPrefix   = "  2> "
)

// PrefixedChannel decorates every line written through it with a fixed prefix.
// Unterminated text is held until a newline arrives, the line exceeds
// maxLineWidth characters, or CompleteLine is called.
type PrefixedChannel struct {
	prefix       string
	sink         io.Writer
	maxLineWidth int

	pending      strings.Builder
	pendingRunes int
}

// NewPrefixedChannel creates a channel writing prefixed lines into sink.
func NewPrefixedChannel(prefix string, sink io.Writer, maxLineWidth int) *PrefixedChannel {
	if maxLineWidth <= 0 {
		maxLineWidth = DefaultMaxLineWidth
	}
	return &PrefixedChannel{
		prefix:       prefix,
		sink:         sink,
		maxLineWidth: maxLineWidth,
	}
}

// WriteString appends text, emitting every completed or wrapped line to the sink.
func (c *PrefixedChannel) WriteString(text string) error {
	for len(text) > 0 {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			return c.accumulate(text)
		}
		if err := c.accumulate(text[:i]); err != nil {
			return err
		}
		if err := c.emit(); err != nil {
			return err
		}
		text = text[i+1:]
	}
	return nil
}

// Write implements io.Writer.
func (c *PrefixedChannel) Write(p []byte) (int, error) {
	if err := c.WriteString(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// accumulate adds newline-free text to the pending line. A full line is
// wrapped only when another character arrives, so a newline right after
// maxLineWidth characters ends that line instead of adding an empty one.
func (c *PrefixedChannel) accumulate(text string) error {
	for len(text) > 0 {
		if c.pendingRunes == c.maxLineWidth {
			if err := c.emit(); err != nil {
				return err
			}
		}

		room := c.maxLineWidth - c.pendingRunes
		cut := len(text)
		runes := 0
		for i := range text {
			if runes == room {
				cut = i
				break
			}
			runes++
		}

		c.pending.WriteString(text[:cut])
		c.pendingRunes += runes
		text = text[cut:]
	}
	return nil
}

// CompleteLine terminates a pending partial line, if any.
func (c *PrefixedChannel) CompleteLine() error {
	if c.pending.Len() == 0 {
		return nil
	}
	return c.emit()
}

func (c *PrefixedChannel) emit() error {
	line := make([]byte, 0, len(c.prefix)+c.pending.Len()+1)
	line = append(line, c.prefix...)
	line = append(line, c.pending.String()...)
	line = append(line, '\n')
	c.pending.Reset()
	c.pendingRunes = 0

	_, err := c.sink.Write(line)
	return err
}
