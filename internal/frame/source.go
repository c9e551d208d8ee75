package frame

import (
	"context"
	"io"
)

// Source reads raw bytes from a serial port (or any reader) and delivers
// parsed frames on a channel. The read loop runs in Monitor; consumers take
// frames from Frames().
type Source struct {
	r      io.Reader
	parser Parser
	frames chan Frame
}

// NewSource wraps a reader. The frame channel is buffered so a momentarily
// slow consumer does not stall reads.
func NewSource(r io.Reader) *Source {
	return &Source{
		r:      r,
		frames: make(chan Frame, 64),
	}
}

// Frames returns the channel of parsed frames. It is closed when Monitor
// returns.
func (s *Source) Frames() <-chan Frame {
	return s.frames
}

// Dropped reports how many lines the parser has discarded so far. Only
// meaningful after Monitor has returned, since the parser is owned by the
// read loop.
func (s *Source) Dropped() int {
	return s.parser.Dropped
}

// Monitor reads until EOF, read error, or context cancellation, feeding the
// parser and forwarding frames. io.EOF is a normal end of stream and is
// reported as nil.
func (s *Source) Monitor(ctx context.Context) error {
	defer close(s.frames)
	buf := make([]byte, 256)

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := s.r.Read(buf)
		if n > 0 {
			for _, f := range s.parser.Feed(buf[:n]) {
				select {
				case s.frames <- f:
				case <-ctx.Done():
					return nil
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
