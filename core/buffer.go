package core

import "pkt.systems/juno/schema"

const defaultMaxLines = schema.DefaultBufferMaxLines

// outputBuffer stores the most recent server output chunks.
// Oldest entries are evicted once maxLines is exceeded.
type outputBuffer struct {
	lines    []string
	maxLines int
}

// Append adds chunks in order, trimming the head past maxLines.
func (b *outputBuffer) Append(lines ...string) {
	if len(lines) == 0 {
		return
	}
	b.lines = append(b.lines, lines...)
	maxLines := b.maxLines
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	if len(b.lines) > maxLines {
		trim := len(b.lines) - maxLines
		// Copy instead of reslicing so the evicted head can be collected.
		kept := make([]string, maxLines, maxLines+maxLines/4)
		copy(kept, b.lines[trim:])
		b.lines = kept
	}
}

// Lines returns a copy of the buffered chunks, oldest first.
func (b *outputBuffer) Lines() []string {
	if b == nil {
		return nil
	}
	return append([]string(nil), b.lines...)
}

// Len reports the number of buffered chunks.
func (b *outputBuffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.lines)
}

// Reset drops all buffered chunks.
func (b *outputBuffer) Reset() {
	b.lines = nil
}

func newOutputBuffer(maxLines int) *outputBuffer {
	buf := &outputBuffer{maxLines: defaultMaxLines}
	if maxLines > 0 {
		buf.maxLines = maxLines
	}
	return buf
}
