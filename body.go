package bwire

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
)

// ErrBodyClosed is returned when reading from a body that was closed before it was exhausted.
var ErrBodyClosed = errors.New("bwire: read on closed body")

// source is the connection side of a body: the connection's decode buffer and the reader that refills it.
type source struct {
	buf      *DecodeBuffer
	r        io.Reader
	readSize int
	activity func(n int)
	eof      bool
}

// fill performs one read from the connection into the buffer.
func (s *source) fill() error {
	if s.eof {
		return io.EOF
	}

	n, err := s.buf.Fill(s.r, s.readSize)
	if n > 0 && s.activity != nil {
		s.activity(n)
	}

	if errors.Is(err, io.EOF) {
		s.eof = true
		return io.EOF
	}

	return err
}

// fillBody is fill for use in the middle of a message, where running out of bytes is a framing error.
func (s *source) fillBody(what string) error {
	err := s.fill()
	if errors.Is(err, io.EOF) {
		return errorf(CodeUnexpectedEOF, "connection closed in %s", what)
	}
	if err != nil {
		return errors.Wrapf(err, "read %s", what)
	}

	return nil
}

type chunkState int

const (
	chunkSize chunkState = iota
	chunkData
	chunkDataEnd
	chunkTrailer
)

// BodyEnd tells how a body stream ended.
type BodyEnd int

const (
	// BodyDrained means every byte of the body was consumed, the cursor is at the next message.
	BodyDrained BodyEnd = iota
	// BodyAbandoned means the body was closed before its end, the cursor position is unknown.
	BodyAbandoned
	// BodyFailed means the body's framing was violated.
	BodyFailed
)

// Body is the lazy, single-pass stream of a message's body bytes. It reads from the connection only when the
// consumer asks for more, so a slow consumer applies backpressure to the connection.
type Body struct {
	src     *source
	framing Framing
	head    *Head
	cfg     Config
	parser  *HeaderParser

	remaining int64
	chunk     chunkState
	trailer   Header

	done   bool
	closed bool
	err    error
	onEnd  func(BodyEnd)
}

// newBody returns the body stream of a message. A message without body is done from the start and never reports
// its end.
func newBody(src *source, framing Framing, head *Head, cfg Config, onEnd func(BodyEnd)) *Body {
	b := &Body{
		src:       src,
		framing:   framing,
		head:      head,
		cfg:       cfg,
		remaining: framing.Length,
		onEnd:     onEnd,
	}

	switch framing.Kind {
	case FramingNone:
		b.done, b.onEnd = true, nil
	case FramingChunked:
		b.parser = NewHeaderParser(cfg.MaxHeaderBytes)
	case FramingFixed, FramingClose:
	}

	return b
}

// NewBody decodes a body with the given framing from r, reading through buf. It is the standalone form of the
// bodies a [Conn] hands out and is mostly useful to decode bodies held in memory.
func NewBody(r io.Reader, framing Framing, cfg Config) *Body {
	src := &source{buf: NewDecodeBuffer(cfg.ReadSize), r: r, readSize: cfg.ReadSize}
	return newBody(src, framing, nil, cfg, nil)
}

// Framing returns how the body is delimited.
func (b *Body) Framing() Framing { return b.framing }

// Trailer returns the trailer fields of a chunked body. It is empty until the body has been exhausted.
func (b *Body) Trailer() Header { return b.trailer }

// Done reports whether the body was consumed to its end.
func (b *Body) Done() bool { return b.done }

// Next returns the next piece of the body. The returned slice is a view into the connection buffer that is valid
// only until the next call on the body. It returns io.EOF once the body is exhausted.
func (b *Body) Next() ([]byte, error) {
	return b.next(-1)
}

// Read implements io.Reader.
func (b *Body) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	view, err := b.next(len(p))
	if err != nil {
		return 0, err
	}

	return copy(p, view), nil
}

// WriteTo implements io.WriterTo without an intermediate copy.
func (b *Body) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for {
		view, err := b.Next()
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}

		n, err := w.Write(view)
		total += int64(n)
		if err != nil {
			return total, errors.Wrap(err, "write body")
		}
	}
}

// Drain consumes and discards the rest of the body, leaving the connection positioned at the next message.
func (b *Body) Drain() error {
	_, err := b.WriteTo(io.Discard)
	return err
}

// Close releases the body. Closing a body that has not been consumed to its end abandons it: the connection can no
// longer find the start of the next message and will be closed. Use [Body.Drain] first to keep it reusable.
func (b *Body) Close() error {
	if b.closed {
		return nil
	}

	b.closed = true
	if !b.done && b.err == nil {
		b.err = ErrBodyClosed
		b.end(BodyAbandoned)
	}

	return nil
}

func (b *Body) end(how BodyEnd) {
	if b.onEnd != nil {
		b.onEnd(how)
		b.onEnd = nil
	}
}

func (b *Body) finish() {
	b.done = true
	if b.cfg.MergeTrailers && b.head != nil && len(b.trailer) > 0 {
		b.head.Header = append(b.head.Header, b.trailer...)
	}

	b.end(BodyDrained)
}

func (b *Body) fail(err error) error {
	b.err = err
	b.end(BodyFailed)

	return err
}

// take hands out up to limit bytes of the window, bounded by the remaining length of the fixed body or chunk.
func (b *Body) take(limit int, bounded bool) []byte {
	n := b.src.buf.Len()
	if limit >= 0 && limit < n {
		n = limit
	}
	if bounded && int64(n) > b.remaining {
		n = int(b.remaining)
	}

	view := b.src.buf.Window()[:n:n]
	b.src.buf.Advance(n)
	if bounded {
		b.remaining -= int64(n)
	}

	return view
}

func (b *Body) next(limit int) ([]byte, error) {
	for {
		if b.err != nil {
			return nil, b.err
		}
		if b.done {
			return nil, io.EOF
		}

		switch b.framing.Kind {
		case FramingNone:
			b.finish()
			return nil, io.EOF
		case FramingFixed:
			if b.remaining == 0 {
				b.finish()
				continue
			}

			if b.src.buf.Len() == 0 {
				if err := b.src.fillBody("fixed length body"); err != nil {
					return nil, b.fail(err)
				}
				continue
			}

			return b.take(limit, true), nil
		case FramingClose:
			if b.src.buf.Len() == 0 {
				err := b.src.fill()
				if errors.Is(err, io.EOF) {
					b.finish()
					continue
				}
				if err != nil {
					return nil, b.fail(errors.Wrap(err, "read close delimited body"))
				}
				continue
			}

			return b.take(limit, false), nil
		case FramingChunked:
			view, err := b.nextChunked(limit)
			if err != nil {
				return nil, b.fail(err)
			}
			if view != nil {
				return view, nil
			}
		default:
			return nil, b.fail(errorf(CodeInvalidFraming, "unknown framing %s", b.framing.Kind))
		}
	}
}

// nextChunked advances the chunked decoder by one step. It returns a nil view when the step produced no data.
func (b *Body) nextChunked(limit int) ([]byte, error) {
	buf := b.src.buf

	switch b.chunk {
	case chunkSize:
		size, n, err := parseChunkSizeLine(buf.Window(), b.cfg.MaxChunkLineBytes, b.cfg.MaxChunkSize)
		if errors.Is(err, ErrIncomplete) {
			return nil, b.src.fillBody("chunk size line")
		}
		if err != nil {
			return nil, err
		}

		buf.Advance(n)
		if size == 0 {
			b.chunk = chunkTrailer
		} else {
			b.chunk, b.remaining = chunkData, size
		}
	case chunkData:
		if b.remaining == 0 {
			b.chunk = chunkDataEnd
			return nil, nil
		}
		if buf.Len() == 0 {
			return nil, b.src.fillBody("chunk data")
		}

		return b.take(limit, true), nil
	case chunkDataEnd:
		if buf.Len() < 2 {
			return nil, b.src.fillBody("chunk terminator")
		}
		if !bytes.HasPrefix(buf.Window(), crlf) {
			return nil, errorf(CodeMalformedChunkTerminator, "chunk data not followed by CRLF: %q", buf.Window()[:2])
		}

		buf.Advance(2)
		b.chunk = chunkSize
	case chunkTrailer:
		trailer, n, err := b.parser.ParseFields(buf.Window())
		if errors.Is(err, ErrIncomplete) {
			return nil, b.src.fillBody("chunked trailer")
		}
		if err != nil {
			return nil, err
		}

		buf.Advance(n)
		b.trailer = trailer
		b.finish()
	}

	return nil, nil
}
