// Package frame turns the controller's raw serial byte stream into validated
// left/right velocity frames. The controller interleaves human-readable status
// lines with payload lines; everything that is not a payload line is dropped.
package frame

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxLineLen bounds the partial-line buffer. A line that grows past this
// without a terminator is abandoned and the parser resynchronizes at the
// next newline.
const MaxLineLen = 256

// Payload lines look like "L:-123,R:456". The firmware pads with spaces
// depending on value width, so optional spaces are accepted around the
// numbers.
var lineRe = regexp.MustCompile(`^L:\s*(-?\d+)\s*,\s*R:\s*(-?\d+)$`)

// Frame is one parsed left/right raw sample pair.
type Frame struct {
	Left  int
	Right int
}

// Parser is an incremental line-frame parser. Feed it reads of any size; it
// buffers partial lines internally. The zero value is ready to use.
type Parser struct {
	buf []byte
	// overflowing is set once the current line exceeds MaxLineLen; bytes are
	// then discarded until the next terminator.
	overflowing bool

	// Dropped counts lines that were discarded (malformed, status text, or
	// overflow), for diagnostics only.
	Dropped int
}

// Feed consumes a chunk of raw bytes and returns any complete frames found.
// It never returns an error: malformed input is not a fault of this process.
func (p *Parser) Feed(data []byte) []Frame {
	var frames []Frame
	for _, b := range data {
		if b == '\n' {
			if p.overflowing {
				p.overflowing = false
				p.Dropped++
			} else if f, ok := ParseLine(string(p.buf)); ok {
				frames = append(frames, f)
			} else if len(p.buf) > 0 {
				p.Dropped++
			}
			p.buf = p.buf[:0]
			continue
		}
		if p.overflowing {
			continue
		}
		if len(p.buf) >= MaxLineLen {
			p.overflowing = true
			p.buf = p.buf[:0]
			continue
		}
		p.buf = append(p.buf, b)
	}
	return frames
}

// ParseLine parses a single line (without its terminator) as a payload frame.
// A trailing '\r' is tolerated. Returns false for anything that is not a
// well-formed payload line.
func ParseLine(line string) (Frame, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, "L:") {
		return Frame{}, false
	}
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return Frame{}, false
	}
	left, err := strconv.Atoi(m[1])
	if err != nil {
		return Frame{}, false
	}
	right, err := strconv.Atoi(m[2])
	if err != nil {
		return Frame{}, false
	}
	return Frame{Left: left, Right: right}, true
}
