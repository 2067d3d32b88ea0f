package supervisor

import (
	"bytes"
	"sync"

	"am/internal/domain"
)

// DefaultTailSize bounds the captured output kept per stream.
const DefaultTailSize = 64 << 10

// outputSink keeps the last max bytes written to it and mirrors each
// complete line to the debug log.
type outputSink struct {
	mu      sync.Mutex
	max     int
	tail    []byte
	partial []byte

	logger  domain.Logger
	backend string
	stream  string
}

func newOutputSink(max int, logger domain.Logger, backend, stream string) *outputSink {
	return &outputSink{max: max, logger: logger, backend: backend, stream: stream}
}

func (s *outputSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tail = append(s.tail, p...)
	if len(s.tail) > s.max {
		s.tail = append(s.tail[:0], s.tail[len(s.tail)-s.max:]...)
	}

	s.partial = append(s.partial, p...)
	for {
		i := bytes.IndexByte(s.partial, '\n')
		if i < 0 {
			break
		}
		s.logLine(s.partial[:i])
		s.partial = s.partial[i+1:]
	}
	if len(s.partial) > s.max {
		s.logLine(s.partial)
		s.partial = nil
	}
	return len(p), nil
}

// flush logs a trailing line without a newline.
func (s *outputSink) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.partial) > 0 {
		s.logLine(s.partial)
		s.partial = nil
	}
}

func (s *outputSink) logLine(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	s.logger.Debug(string(line), "backend", s.backend, "stream", s.stream)
}

func (s *outputSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.tail)
}
