package bwire

import (
	"io"

	"github.com/cockroachdb/errors"
)

// DecodeBuffer is a growable byte region with a read cursor. Bytes before the cursor are consumed, bytes after it
// form the window the parsers work on. A buffer is owned by exactly one connection and never shared.
type DecodeBuffer struct {
	buf []byte
	r   int
}

// NewDecodeBuffer returns a buffer with the given initial capacity.
func NewDecodeBuffer(size int) *DecodeBuffer {
	return &DecodeBuffer{buf: make([]byte, 0, size)}
}

// Window returns the unconsumed bytes. The slice is a view that is only valid until the next call that modifies the
// buffer.
func (b *DecodeBuffer) Window() []byte { return b.buf[b.r:] }

// Len returns the number of unconsumed bytes.
func (b *DecodeBuffer) Len() int { return len(b.buf) - b.r }

// Advance moves the cursor n bytes forward.
func (b *DecodeBuffer) Advance(n int) {
	if n < 0 || n > b.Len() {
		panic("bwire: advance beyond buffered window")
	}

	b.r += n
	if b.r == len(b.buf) {
		b.buf, b.r = b.buf[:0], 0
	}
}

// Write appends p to the window. It never fails.
func (b *DecodeBuffer) Write(p []byte) (int, error) {
	b.grow(len(p))
	b.buf = append(b.buf, p...)

	return len(p), nil
}

// Fill performs a single read of at least atLeast bytes of free space from src and appends what it got. It returns
// io.EOF only when src is exhausted and nothing was read.
func (b *DecodeBuffer) Fill(src io.Reader, atLeast int) (int, error) {
	b.grow(atLeast)

	free := b.buf[len(b.buf):cap(b.buf)]
	for range 100 {
		n, err := src.Read(free)
		b.buf = b.buf[:len(b.buf)+n]
		if n > 0 {
			if errors.Is(err, io.EOF) {
				err = nil
			}

			return n, err
		}
		if err != nil {
			return 0, err //nolint:wrapcheck
		}
	}

	return 0, io.ErrNoProgress
}

// grow makes room for n more bytes, reclaiming consumed space first.
func (b *DecodeBuffer) grow(n int) {
	if cap(b.buf)-len(b.buf) >= n {
		return
	}

	if b.r > 0 {
		m := copy(b.buf, b.buf[b.r:])
		b.buf, b.r = b.buf[:m], 0
		if cap(b.buf)-len(b.buf) >= n {
			return
		}
	}

	nbuf := make([]byte, len(b.buf), 2*cap(b.buf)+n)
	copy(nbuf, b.buf)
	b.buf = nbuf
}
