package bwire

import (
	"bufio"
	"io"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Conn is the server side of one HTTP/1.x connection: it decodes requests from the connection, writes their
// responses in order and decides whether the connection may serve another request. A Conn must be driven by a single
// goroutine.
type Conn struct {
	rw       io.ReadWriter
	cfg      Config
	reader   *Reader
	w        *bufio.Writer
	state    *ConnState
	logs     Logger
	activity func(n int)
	closed   bool
}

// ConnOption configures a [Conn].
type ConnOption func(*Conn)

// WithLogger configures the logger that is informed about decode errors and closing connections.
func WithLogger(l Logger) ConnOption {
	return func(c *Conn) { c.logs = l }
}

// WithActivity configures a function that is called with the number of bytes every time the connection delivered
// or accepted bytes. Connection drivers use it to extend their deadlines.
func WithActivity(fn func(n int)) ConnOption {
	return func(c *Conn) { c.activity = fn }
}

// NewConn inits a connection that reads requests from, and writes responses to, rw.
func NewConn(rw io.ReadWriter, cfg Config, opts ...ConnOption) *Conn {
	c := &Conn{rw: rw, cfg: cfg, state: NewConnState(cfg.MaxPipelineDepth), logs: NewNopLogger()}
	for _, opt := range opts {
		opt(c)
	}

	c.reader = NewReader(rw, cfg)
	c.reader.src.activity = c.activity
	c.w = bufio.NewWriterSize(activityWriter{rw, c.activity}, cfg.ReadSize)

	return c
}

// Request is a decoded request: its head and the stream of its body.
type Request struct {
	*Head
	Body *Body

	ticket Ticket
	cfg    Config
}

// Ticket returns the position of the request on its connection.
func (r *Request) Ticket() Ticket { return r.ticket }

// ExpectsContinue reports whether the client waits for an interim 100 response before it sends the body.
func (r *Request) ExpectsContinue() bool {
	return r.Version.AtLeast(HTTP11) && r.Header.HasToken("Expect", "100-continue")
}

// State returns the connection's state.
func (c *Conn) State() State { return c.state.State() }

// Reason returns why the connection is closing, or an empty string.
func (c *Conn) Reason() string { return c.state.Reason() }

// Buffered returns the bytes that were read from the connection but not decoded yet.
func (c *Conn) Buffered() []byte { return c.reader.Buffered() }

// ReadRequest decodes the next request. The body of the previous request must have been consumed. It returns io.EOF
// when the client closed the connection between requests. Any error marks the connection as closing.
func (c *Conn) ReadRequest() (*Request, error) {
	if err := c.state.CanDecode(); err != nil {
		return nil, err
	}

	req := &Request{cfg: c.cfg}
	onEnd := func(how BodyEnd) {
		c.state.BodyEnded(req.ticket, how)
		if how != BodyDrained {
			c.logs.LogConnClosing(c.state.Reason())
		}
	}

	head, body, err := c.reader.read(func(buf *DecodeBuffer) (*Head, Framing, error) {
		return c.reader.codec.DecodeRequestHead(buf)
	}, onEnd)

	switch {
	case errors.Is(err, io.EOF):
		c.state.Close("client closed the connection")
		return nil, io.EOF
	case err != nil:
		c.state.Fail(err)
		if IsFatal(err) {
			c.logs.LogDecodeError(err)
		}

		return nil, err
	}

	req.Head, req.Body = head, body
	if req.ticket, err = c.state.RequestDecoded(head, !body.Done()); err != nil {
		c.logs.LogConnClosing(c.state.Reason())
		return nil, err
	}

	return req, nil
}

// WriteContinue writes the interim "100 Continue" response for req. It must be called before the final response for
// req and only while req is the next request to be answered.
func (c *Conn) WriteContinue(req *Request) error {
	if !c.state.IsNext(req.ticket) {
		return NewError(CodeOutOfTurn, errors.Newf("request %d is not next in line", req.ticket))
	}

	if _, _, err := c.reader.codec.EncodeResponse(c.w, NewResponseHead(http.StatusContinue), req.Method, nil); err != nil {
		return c.failWrite(err)
	}

	if err := c.w.Flush(); err != nil {
		return c.failWrite(errors.Wrap(err, "flush interim response"))
	}

	return nil
}

// WriteResponse encodes the response for req and flushes it to the connection. Responses must be written in the
// order the requests were read: answering a request out of turn fails with [CodeOutOfTurn] and writes nothing.
func (c *Conn) WriteResponse(req *Request, head *Head, body Producer) error {
	head = head.Clone()
	switch {
	case c.state.WillClose(req.ticket):
		head.Header.Set("Connection", "close")
	case !req.Version.AtLeast(HTTP11):
		head.Header.Set("Connection", "keep-alive")
	}

	// an HTTP/1.0 peer cannot read chunked bodies
	if !req.Version.AtLeast(HTTP11) {
		head.Version = req.Version
	}

	if err := c.state.BeginResponse(req.ticket, head); err != nil {
		return err
	}

	_, framing, err := c.reader.codec.EncodeResponse(c.w, head, req.Method, body)
	if err != nil {
		return c.failWrite(err)
	}

	if err := c.w.Flush(); err != nil {
		return c.failWrite(errors.Wrap(err, "flush response"))
	}

	before := c.state.State()
	c.state.ResponseFlushed(req.ticket, framing.Kind == FramingClose)
	if before != StateClosing && c.state.State() >= StateClosing {
		c.logs.LogConnClosing(c.state.Reason())
	}

	return nil
}

// WriteError answers a request that could not be decoded. The response tells the client that the connection will be
// closed. Nothing is written while decoded requests are still waiting for their responses since that would break
// the order of responses.
func (c *Conn) WriteError(err error) error {
	if c.state.InFlight() > 0 || c.state.State() == StateClosed {
		return nil
	}

	c.state.Fail(err)

	status := CodeOf(err).Status()
	msg := []byte(strconv.Itoa(status) + " " + http.StatusText(status) + "\n")
	head := NewResponseHead(status,
		Field{"Content-Type", "text/plain; charset=utf-8"},
		Field{"Connection", "close"})

	if _, _, werr := c.reader.codec.EncodeResponse(c.w, head, "", BytesBody(msg)); werr != nil {
		return c.failWrite(werr)
	}

	if werr := c.w.Flush(); werr != nil {
		return c.failWrite(errors.Wrap(werr, "flush error response"))
	}

	return nil
}

// Close moves the connection to its terminal state and closes the underlying connection if it can be closed. Only
// the first call closes the underlying connection.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}

	c.closed = true
	c.state.Shutdown()
	if cl, ok := c.rw.(io.Closer); ok {
		if err := cl.Close(); err != nil {
			return errors.Wrap(err, "close connection")
		}
	}

	return nil
}

func (c *Conn) failWrite(err error) error {
	c.state.Fail(err)
	c.logs.LogConnClosing(c.state.Reason())

	return err
}

// activityWriter reports written bytes as activity.
type activityWriter struct {
	w        io.Writer
	activity func(n int)
}

func (w activityWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if n > 0 && w.activity != nil {
		w.activity(n)
	}

	return n, err //nolint:wrapcheck
}
