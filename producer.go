package bwire

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
)

// Producer produces the body of an outgoing message, one piece at a time. Size returns the total length when it is
// known upfront and -1 otherwise. Next returns io.EOF after the last piece. When the body is sent chunked every
// piece becomes one chunk.
type Producer interface {
	Size() int64
	Next() ([]byte, error)
}

// Trailered is implemented by producers that send trailer fields after a chunked body.
type Trailered interface {
	Trailer() Header
}

type noBody struct{}

func (noBody) Size() int64           { return 0 }
func (noBody) Next() ([]byte, error) { return nil, io.EOF }

// NoBody is the producer of an empty body.
var NoBody Producer = noBody{}

type chunksBody struct {
	parts [][]byte
	size  int64
}

func (b *chunksBody) Size() int64 { return b.size }

func (b *chunksBody) Next() ([]byte, error) {
	for len(b.parts) > 0 {
		p := b.parts[0]
		b.parts = b.parts[1:]
		if len(p) > 0 {
			return p, nil
		}
	}

	return nil, io.EOF
}

// BytesBody produces p as a body of known length.
func BytesBody(p []byte) Producer {
	return &chunksBody{parts: [][]byte{p}, size: int64(len(p))}
}

// ChunksBody produces the given parts as a body of unknown length, so each part is sent as its own chunk.
func ChunksBody(parts ...[]byte) Producer {
	return &chunksBody{parts: parts, size: -1}
}

type readerBody struct {
	r    io.Reader
	size int64
	read int64
	buf  []byte
}

func (b *readerBody) Size() int64 { return b.size }

func (b *readerBody) Next() ([]byte, error) {
	if b.size >= 0 && b.read >= b.size {
		return nil, io.EOF
	}

	if b.buf == nil {
		b.buf = make([]byte, 32<<10)
	}

	p := b.buf
	if b.size >= 0 && int64(len(p)) > b.size-b.read {
		p = p[:b.size-b.read]
	}

	n, err := io.ReadAtLeast(b.r, p, 1)
	b.read += int64(n)
	switch {
	case n > 0:
		return p[:n], nil
	case errors.Is(err, io.EOF) && b.size < 0:
		return nil, io.EOF
	case errors.Is(err, io.EOF):
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "body reader ended after %d of %d bytes", b.read, b.size)
	default:
		return nil, errors.Wrap(err, "read body source")
	}
}

// ReaderBody produces the contents of r as a body of unknown length.
func ReaderBody(r io.Reader) Producer {
	return &readerBody{r: r, size: -1}
}

// SizedReaderBody produces exactly n bytes from r.
func SizedReaderBody(r io.Reader, n int64) Producer {
	return &readerBody{r: r, size: n}
}

type trailered struct {
	Producer
	trailer Header
}

func (t trailered) Trailer() Header { return t.trailer }

// WithTrailer attaches trailer fields to p. Trailers are only sent when the body goes out chunked.
func WithTrailer(p Producer, trailer Header) Producer {
	return trailered{Producer: p, trailer: trailer}
}

// readAll collects the rest of a producer in memory.
func readAll(p Producer) ([]byte, error) {
	var buf bytes.Buffer
	for {
		piece, err := p.Next()
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}

		buf.Write(piece)
	}
}
