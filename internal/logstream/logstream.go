// Package logstream provides named log destinations that can be attached,
// detached and swapped while other goroutines log through them.
package logstream

import (
	"io"
	"log"
	"sync/atomic"
)

// flags are the log flags every stream uses.
const flags = log.LstdFlags | log.Lmicroseconds

// Stream is a prefixed logger with a replaceable writer. The zero value
// is not usable; call New.
type Stream struct {
	prefix string
	logger atomic.Pointer[log.Logger]
}

// New returns a detached stream that prefixes every line with prefix.
func New(prefix string) *Stream {
	return &Stream{prefix: prefix}
}

// Attach routes the stream to w. A nil w silences it.
func (s *Stream) Attach(w io.Writer) {
	if w == nil {
		s.logger.Store(nil)
		return
	}
	s.logger.Store(log.New(w, s.prefix, flags))
}

// Enabled reports whether the stream has a writer.
func (s *Stream) Enabled() bool { return s.logger.Load() != nil }

// Printf writes one line when the stream is attached.
func (s *Stream) Printf(format string, args ...any) {
	if l := s.logger.Load(); l != nil {
		l.Printf(format, args...)
	}
}
