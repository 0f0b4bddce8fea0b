package stomp

import (
	"bytes"
	"errors"
)

// DefaultMaxBuffered bounds how many bytes of an unterminated frame are held.
const DefaultMaxBuffered = 1 << 20

// ErrFrameTooLarge is returned when buffered bytes exceed the limit without a terminator.
var ErrFrameTooLarge = errors.New("stomp: frame exceeds buffer limit") //nolint:gochecknoglobals // sentinel error

// Splitter reassembles frames that arrive split across, or packed into,
// transport deliveries. It is not safe for concurrent use.
type Splitter struct {
	buf []byte
	max int
}

// NewSplitter creates a Splitter holding at most maxBuffered pending bytes.
// A non-positive value selects DefaultMaxBuffered.
func NewSplitter(maxBuffered int) *Splitter {
	if maxBuffered <= 0 {
		maxBuffered = DefaultMaxBuffered
	}
	return &Splitter{max: maxBuffered}
}

// Feed appends p and returns every complete frame, each including its
// terminator. Heart-beat EOLs between frames are dropped. On overflow the
// pending bytes are discarded and ErrFrameTooLarge is returned alongside any
// frames completed before the overflow.
func (s *Splitter) Feed(p []byte) ([][]byte, error) {
	s.buf = append(s.buf, p...)

	var frames [][]byte
	for {
		s.buf = bytes.TrimLeft(s.buf, "\r\n")
		i := bytes.IndexByte(s.buf, Terminator)
		if i < 0 {
			break
		}
		frame := make([]byte, i+1)
		copy(frame, s.buf[:i+1])
		frames = append(frames, frame)
		s.buf = s.buf[i+1:]
	}

	if len(s.buf) > s.max {
		s.buf = nil
		return frames, ErrFrameTooLarge
	}
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return frames, nil
}

// Pending returns the number of buffered bytes awaiting a terminator.
func (s *Splitter) Pending() int { return len(s.buf) }

// Reset drops any buffered bytes.
func (s *Splitter) Reset() { s.buf = nil }
