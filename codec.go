package bwire

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Codec decodes message heads from a [DecodeBuffer] and encodes whole messages onto a writer. Decoding and encoding
// are independent: the codec holds no buffered state across the two directions.
type Codec struct {
	cfg     Config
	parser  *HeaderParser
	scratch []byte
}

// NewCodec inits a codec with the given configuration.
func NewCodec(cfg Config) *Codec {
	return &Codec{cfg: cfg, parser: NewHeaderParser(cfg.MaxHeaderBytes)}
}

// Config returns the codec's configuration.
func (c *Codec) Config() Config { return c.cfg }

// DecodeRequestHead attempts to decode a request head from the buffer's window. On [ErrIncomplete] nothing is
// consumed and the call should be repeated once more bytes were appended. On success the head's bytes are consumed
// and the body framing is returned.
func (c *Codec) DecodeRequestHead(buf *DecodeBuffer) (*Head, Framing, error) {
	// empty lines ahead of a request line are ignored
	for buf.Len() >= 2 && bytes.HasPrefix(buf.Window(), crlf) {
		buf.Advance(2)
	}

	head, n, err := c.parser.ParseRequest(buf.Window())
	if err != nil {
		return nil, Framing{}, err
	}

	framing, err := RequestFraming(head)
	if err != nil {
		return nil, Framing{}, err
	}

	buf.Advance(n)

	return head, framing, nil
}

// DecodeResponseHead attempts to decode a response head from the buffer's window, see [Codec.DecodeRequestHead].
func (c *Codec) DecodeResponseHead(buf *DecodeBuffer, requestMethod string) (*Head, Framing, error) {
	head, n, err := c.parser.ParseResponse(buf.Window())
	if err != nil {
		return nil, Framing{}, err
	}

	framing, err := ResponseFraming(head, requestMethod)
	if err != nil {
		return nil, Framing{}, err
	}

	buf.Advance(n)

	return head, framing, nil
}

// EncodeRequest writes a request head and its body to w. The body's size decides the framing: a known size is sent
// with Content-Length, an unknown size chunked (or buffered to a Content-Length for HTTP/1.0). It returns the head as
// it was put on the wire.
func (c *Codec) EncodeRequest(w io.Writer, head *Head, body Producer) (*Head, error) {
	if body == nil {
		body = NoBody
	}

	out := head.Clone()
	size := body.Size()
	if size < 0 && !out.Version.AtLeast(HTTP11) {
		data, err := readAll(body)
		if err != nil {
			return nil, err
		}

		body, size = BytesBody(data), int64(len(data))
	}

	framing := Framing{Kind: FramingNone}
	switch {
	case size > 0:
		framing = Framing{Kind: FramingFixed, Length: size}
	case size < 0:
		framing = Framing{Kind: FramingChunked}
	}

	setFramingFields(out, framing, size == 0 && !out.Header.Has("Content-Length"))
	if err := c.encode(w, out, framing, body); err != nil {
		return nil, err
	}

	return out, nil
}

// EncodeResponse writes a response head and its body to w. Responses that cannot carry a body (to HEAD, 1xx, 204,
// 304) are written without one. An unknown-length body for an HTTP/1.0 peer is close-delimited, in which case the
// returned framing tells the caller to close the connection afterwards.
func (c *Codec) EncodeResponse(w io.Writer, head *Head, requestMethod string, body Producer) (*Head, Framing, error) {
	if body == nil {
		body = NoBody
	}

	out := head.Clone()
	if out.Reason == "" {
		out.Reason = statusText(out.Status)
	}

	size := body.Size()
	var framing Framing
	switch {
	case !ResponseHasBody(requestMethod, out.Status):
		framing = Framing{Kind: FramingNone}
		if out.Status < 200 || out.Status == http.StatusNoContent {
			out.Header.Del("Content-Length")
			out.Header.Del("Transfer-Encoding")
		} else if size >= 0 && !out.Header.Has("Content-Length") && requestMethod == http.MethodHead {
			out.Header.Set("Content-Length", strconv.FormatInt(size, 10))
		}
	case size >= 0:
		framing = Framing{Kind: FramingFixed, Length: size}
		setFramingFields(out, framing, false)
	case out.Version.AtLeast(HTTP11):
		framing = Framing{Kind: FramingChunked}
		setFramingFields(out, framing, false)
	default:
		framing = Framing{Kind: FramingClose}
		out.Header.Del("Content-Length")
		out.Header.Del("Transfer-Encoding")
		out.Header.Set("Connection", "close")
	}

	if err := c.encode(w, out, framing, body); err != nil {
		return nil, Framing{}, err
	}

	return out, framing, nil
}

// setFramingFields makes the head's framing fields agree with the framing the body is sent with.
func setFramingFields(h *Head, f Framing, omitZero bool) {
	switch f.Kind {
	case FramingFixed:
		h.Header.Del("Transfer-Encoding")
		h.Header.Set("Content-Length", strconv.FormatInt(f.Length, 10))
	case FramingChunked:
		h.Header.Del("Content-Length")
		h.Header.Set("Transfer-Encoding", "chunked")
	case FramingNone:
		h.Header.Del("Transfer-Encoding")
		if omitZero {
			h.Header.Del("Content-Length")
		} else {
			h.Header.Set("Content-Length", "0")
		}
	case FramingClose:
	}
}

func (c *Codec) encode(w io.Writer, h *Head, f Framing, body Producer) error {
	c.scratch = appendHead(c.scratch[:0], h)
	if _, err := w.Write(c.scratch); err != nil {
		return errors.Wrap(err, "write head")
	}

	switch f.Kind {
	case FramingNone:
		return nil
	case FramingChunked:
		cw := NewChunkedWriter(w)
		if t, ok := body.(Trailered); ok {
			cw.SetTrailer(t.Trailer())
		}
		if err := copyProducer(cw, body, -1); err != nil {
			return err
		}

		return cw.Close()
	case FramingFixed:
		return copyProducer(w, body, f.Length)
	default:
		return copyProducer(w, body, -1)
	}
}

// copyProducer writes all pieces of p to w. With a non-negative limit exactly that many bytes must be produced.
func copyProducer(w io.Writer, p Producer, limit int64) error {
	var written int64
	for {
		piece, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrap(err, "produce body")
		}

		if limit >= 0 && written+int64(len(piece)) > limit {
			return errors.Newf("body produced more than its declared %d bytes", limit)
		}

		n, err := w.Write(piece)
		written += int64(n)
		if err != nil {
			return errors.Wrap(err, "write body")
		}
	}

	if limit >= 0 && written != limit {
		return errors.Newf("body produced %d of its declared %d bytes", written, limit)
	}

	return nil
}

func appendHead(dst []byte, h *Head) []byte {
	if h.IsRequest() {
		dst = append(dst, h.Method...)
		dst = append(dst, ' ')
		dst = append(dst, h.Target...)
		dst = append(dst, ' ')
		dst = append(dst, h.Version.String()...)
	} else {
		dst = append(dst, h.Version.String()...)
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, int64(h.Status), 10)
		dst = append(dst, ' ')
		dst = appendSanitized(dst, h.Reason)
	}

	dst = append(dst, '\r', '\n')
	dst = appendFields(dst, h.Header)

	return append(dst, '\r', '\n')
}

// appendFields writes each field verbatim as "Name: value" CRLF.
func appendFields(dst []byte, h Header) []byte {
	for _, f := range h {
		dst = append(dst, f.Name...)
		dst = append(dst, ':', ' ')
		dst = appendSanitized(dst, f.Value)
		dst = append(dst, '\r', '\n')
	}

	return dst
}

var lineBreakReplacer = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// appendSanitized appends s with raw line terminators replaced by spaces.
func appendSanitized(dst []byte, s string) []byte {
	if strings.ContainsAny(s, "\r\n") {
		s = lineBreakReplacer.Replace(s)
	}

	return append(dst, s...)
}

func statusText(code int) string {
	return http.StatusText(code)
}
