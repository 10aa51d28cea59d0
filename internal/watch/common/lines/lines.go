// Package lines reads newline-delimited input where a single damaged line
// must not stop the rest of the file from being read.
package lines

import (
	"bufio"
	"io"
)

// Reader yields lines no longer than a fixed limit. Longer lines are
// consumed whole and reported as skipped.
type Reader struct {
	br  *bufio.Reader
	max int
	num int
	buf []byte
}

// NewReader returns a Reader over r keeping lines of at most max bytes.
func NewReader(r io.Reader, max int) *Reader {
	return &Reader{br: bufio.NewReader(r), max: max}
}

// Next returns the next line without its terminator and its 1-based number.
// skipped is set, and line is nil, when the line exceeded the limit. The
// returned slice is only valid until the next call. io.EOF ends the input.
func (r *Reader) Next() (line []byte, num int, skipped bool, err error) {
	r.buf = r.buf[:0]
	started := false
	for {
		chunk, more, err := r.br.ReadLine()
		if err != nil {
			if !started {
				return nil, r.num, false, err
			}
			break
		}
		started = true
		if !skipped {
			if len(r.buf)+len(chunk) > r.max {
				skipped = true
				r.buf = r.buf[:0]
			} else {
				r.buf = append(r.buf, chunk...)
			}
		}
		if !more {
			break
		}
	}
	r.num++
	if skipped {
		return nil, r.num, true, nil
	}
	return r.buf, r.num, false, nil
}
