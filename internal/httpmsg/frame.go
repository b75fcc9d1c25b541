package httpmsg

import (
	"bufio"
	"errors"
	"io"
)

// MaxHeaderBytes bounds a single header block. A peer that sends more than
// this without a blank line is not speaking HTTP; the session demotes itself
// to a raw byte relay.
const MaxHeaderBytes = 64 * 1024

// ErrHeaderTooLarge is returned by ReadHeader when no header terminator
// appears within MaxHeaderBytes.
var ErrHeaderTooLarge = errors.New("header block exceeds limit without terminator")

// ReadHeader reads one HTTP header block (request or response line plus
// headers, through the terminating blank line) from r.
//
// On error the bytes consumed so far are returned alongside it, so a caller
// falling back to transparent relay can forward them verbatim. io.EOF with a
// partial block is reported as io.ErrUnexpectedEOF.
func ReadHeader(r *bufio.Reader) ([]byte, error) {
	var block []byte
	lineStart := 0

	for {
		chunk, err := r.ReadSlice('\n')
		block = append(block, chunk...)

		if err != nil && err != bufio.ErrBufferFull {
			if err == io.EOF && len(block) > 0 {
				err = io.ErrUnexpectedEOF
			}
			return block, err
		}

		if err == nil {
			// Blank line ends the header block.
			line := block[lineStart:]
			if len(line) == 1 || (len(line) == 2 && line[0] == '\r') {
				return block, nil
			}
			lineStart = len(block)
		}

		// ErrBufferFull is a line still in progress. The bound applies per
		// fill, so a stream with no newline at all cannot grow the block
		// past it.
		if len(block) > MaxHeaderBytes {
			return block, ErrHeaderTooLarge
		}
	}
}

// CopyBody streams exactly n body bytes from r to w. A zero or negative n is
// a headers-only message (or unknown length sentinel) and copies nothing.
func CopyBody(w io.Writer, r *bufio.Reader, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	return io.CopyN(w, r, n)
}
