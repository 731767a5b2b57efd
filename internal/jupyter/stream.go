package jupyter

import (
	"bufio"
	"errors"
	"io"

	"pkt.systems/pslog"
)

// maxLineChunk caps a forwarded line; longer lines arrive as several chunks,
// only the last of which carries the newline.
const maxLineChunk = 64 * 1024

// lineStream forwards lines of one output stream, in order, each with its
// trailing newline.
type lineStream struct {
	lines chan string
	log   pslog.Logger
}

func newLineStream(reader io.ReadCloser, log pslog.Logger) *lineStream {
	stream := &lineStream{lines: make(chan string, 256), log: log}
	go stream.read(reader)
	return stream
}

// read runs until EOF so the child never blocks on a full pipe.
func (s *lineStream) read(reader io.ReadCloser) {
	defer close(s.lines)
	defer func() { _ = reader.Close() }()
	buffered := bufio.NewReaderSize(reader, maxLineChunk)
	count, chunks := 0, 0
	for {
		line, err := buffered.ReadSlice('\n')
		switch {
		case err == nil:
			s.lines <- string(line)
			count++
			continue
		case errors.Is(err, bufio.ErrBufferFull):
			s.lines <- string(line)
			chunks++
			continue
		}
		if len(line) > 0 {
			s.lines <- string(line) + "\n"
			count++
		}
		if !errors.Is(err, io.EOF) {
			s.log.Warn("server output read failed", "err", err)
		}
		break
	}
	s.log.Debug("server output closed", "lines", count, "split_chunks", chunks)
}
