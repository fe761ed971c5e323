package bwire

import (
	"io"

	"github.com/cockroachdb/errors"
)

// Reader decodes a sequence of messages from a byte stream. It owns the decode buffer of the stream and refills it
// only when a parse step needs more bytes than are buffered.
type Reader struct {
	codec *Codec
	src   *source
	last  *Body
}

// NewReader returns a reader that decodes messages from r.
func NewReader(r io.Reader, cfg Config) *Reader {
	return &Reader{
		codec: NewCodec(cfg),
		src:   &source{buf: NewDecodeBuffer(cfg.ReadSize), r: r, readSize: cfg.ReadSize},
	}
}

// Buffered returns the bytes that were read from the stream but not decoded yet.
func (r *Reader) Buffered() []byte { return r.src.buf.Window() }

// ReadRequest decodes the next request. The previous message's body must have been consumed. It returns io.EOF when
// the stream ends cleanly between messages.
func (r *Reader) ReadRequest() (*Head, *Body, error) {
	return r.read(func(buf *DecodeBuffer) (*Head, Framing, error) {
		return r.codec.DecodeRequestHead(buf)
	}, nil)
}

// ReadResponse decodes the next response to a request with the given method.
func (r *Reader) ReadResponse(requestMethod string) (*Head, *Body, error) {
	return r.read(func(buf *DecodeBuffer) (*Head, Framing, error) {
		return r.codec.DecodeResponseHead(buf, requestMethod)
	}, nil)
}

func (r *Reader) read(
	decode func(*DecodeBuffer) (*Head, Framing, error),
	onEnd func(BodyEnd),
) (*Head, *Body, error) {
	if r.last != nil && !r.last.Done() {
		return nil, nil, NewError(CodeOutOfTurn, errors.New("previous body was not consumed"))
	}

	for {
		head, framing, err := decode(r.src.buf)
		if err == nil {
			r.last = newBody(r.src, framing, head, r.codec.cfg, onEnd)
			return head, r.last, nil
		}

		if !errors.Is(err, ErrIncomplete) {
			return nil, nil, err
		}

		if err := r.src.fill(); errors.Is(err, io.EOF) {
			if r.src.buf.Len() == 0 {
				return nil, nil, io.EOF
			}

			return nil, nil, errorf(CodeUnexpectedEOF, "connection closed inside a message head")
		} else if err != nil {
			return nil, nil, errors.Wrap(err, "read message head")
		}
	}
}
