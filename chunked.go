package bwire

import (
	"bytes"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
)

// parseChunkSizeLine parses "hex-size [; extensions] CRLF" at the start of window. It returns the chunk size and the
// length of the line including CRLF.
func parseChunkSizeLine(window []byte, maxLine int, maxSize int64) (int64, int, error) {
	limited := window
	if len(limited) > maxLine {
		limited = limited[:maxLine]
	}

	end := bytes.Index(limited, crlf)
	if end < 0 {
		if len(window) >= maxLine {
			return 0, 0, errorf(CodeMalformedChunkSize, "chunk size line exceeds %d bytes", maxLine)
		}

		return 0, 0, ErrIncomplete
	}

	line := window[:end]

	var (
		size   int64
		digits int
	)
	for ; digits < len(line); digits++ {
		v, ok := unhex(line[digits])
		if !ok {
			break
		}

		if size > maxSize/16 {
			return 0, 0, errorf(CodeChunkTooLarge, "chunk size exceeds %d bytes", maxSize)
		}
		if size = size*16 + int64(v); size > maxSize {
			return 0, 0, errorf(CodeChunkTooLarge, "chunk size exceeds %d bytes", maxSize)
		}
	}

	if digits == 0 {
		return 0, 0, errorf(CodeMalformedChunkSize, "chunk size line %q has no hex digits", line)
	}

	rest := line[digits:]
	for len(rest) > 0 && isOWS(rest[0]) {
		rest = rest[1:]
	}
	if len(rest) > 0 && rest[0] != ';' {
		return 0, 0, errorf(CodeMalformedChunkSize, "invalid character %q after chunk size", rest[0])
	}
	for _, c := range rest {
		if !isFieldValueChar(c) {
			return 0, 0, errorf(CodeMalformedChunkSize, "invalid character %q in chunk extension", c)
		}
	}

	return size, end + 2, nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}

	return 0, false
}

// ChunkedWriter frames everything written to it as chunks of a chunked body. Every call to Write produces exactly one
// chunk so the caller controls the partition. Close writes the last chunk and the trailer block.
type ChunkedWriter struct {
	w       io.Writer
	trailer Header
	scratch []byte
	closed  bool
}

// NewChunkedWriter returns a writer that frames chunks onto w.
func NewChunkedWriter(w io.Writer) *ChunkedWriter {
	return &ChunkedWriter{w: w}
}

// SetTrailer sets the fields written after the last chunk.
func (cw *ChunkedWriter) SetTrailer(h Header) { cw.trailer = h }

// Write writes p as a single chunk. Empty writes are ignored since a zero-size chunk terminates the body.
func (cw *ChunkedWriter) Write(p []byte) (int, error) {
	if cw.closed {
		return 0, errors.New("bwire: write on closed chunked writer")
	}
	if len(p) == 0 {
		return 0, nil
	}

	cw.scratch = strconv.AppendInt(cw.scratch[:0], int64(len(p)), 16)
	cw.scratch = append(cw.scratch, '\r', '\n')
	if _, err := cw.w.Write(cw.scratch); err != nil {
		return 0, errors.Wrap(err, "write chunk size")
	}

	n, err := cw.w.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "write chunk data")
	}

	if _, err := cw.w.Write(crlf); err != nil {
		return n, errors.Wrap(err, "write chunk terminator")
	}

	return n, nil
}

// Close writes the terminating zero-size chunk, the trailer fields and the final empty line.
func (cw *ChunkedWriter) Close() error {
	if cw.closed {
		return nil
	}

	cw.closed = true
	cw.scratch = append(cw.scratch[:0], "0\r\n"...)
	cw.scratch = appendFields(cw.scratch, cw.trailer)
	cw.scratch = append(cw.scratch, '\r', '\n')
	if _, err := cw.w.Write(cw.scratch); err != nil {
		return errors.Wrap(err, "write last chunk")
	}

	return nil
}
