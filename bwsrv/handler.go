package bwsrv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/advdv/bwire"
	"github.com/cockroachdb/errors"
)

// Request is a decoded request as handed to handlers.
type Request struct {
	*bwire.Request

	// Content reads the request body. Middleware may replace it, for example to undo content codings.
	Content io.Reader
}

// ResponseWriter collects the response of a handler. The response is buffered until the handler returns so that
// middleware can reset it and formulate a completely new response.
type ResponseWriter interface {
	io.Writer
	Header() *bwire.Header
	WriteHeader(status int)
	Status() int
	// SetBody replaces anything written with a body producer that is streamed once the handler returns.
	SetBody(p bwire.Producer)
	Body() bwire.Producer
	Reset()
}

// Handler serves a decoded request and returns an error instead of writing error responses inline.
type Handler interface {
	ServeBW(ctx context.Context, w ResponseWriter, r *Request) error
}

// HandlerFunc allow casting a function to implement [Handler].
type HandlerFunc func(context.Context, ResponseWriter, *Request) error

// ServeBW implements the [Handler] interface.
func (f HandlerFunc) ServeBW(ctx context.Context, w ResponseWriter, r *Request) error {
	return f(ctx, w, r)
}

// Middleware for cross-cutting concerns with buffered responses.
type Middleware func(Handler) Handler

// Wrap takes the inner handler h and wraps it with middleware. The middleware provided first is called first and is
// the "outer" most wrapping, the middleware provided last will be the "inner most" wrapping (closest to the handler).
func Wrap(h Handler, m ...Middleware) Handler {
	wrapped := h
	for i := len(m) - 1; i >= 0; i-- {
		wrapped = m[i](wrapped)
	}

	return wrapped
}

// Error is an error that is answered with a specific status code.
type Error struct {
	status int
	err    error
}

// NewError inits a new error given the status code to answer with.
func NewError(status int, err error) *Error {
	return &Error{status, err}
}

func (e *Error) Status() int   { return e.status }
func (e *Error) Unwrap() error { return e.err }
func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%d %s", e.status, http.StatusText(e.status))
	}

	return fmt.Sprintf("%s: %s", http.StatusText(e.status), e.err.Error())
}

// statusOf determines the status code an error is answered with. It reports whether the error was expected, that
// is, whether it carries a status or a codec error code.
func statusOf(err error) (int, bool) {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.Status(), true
	}

	if code := bwire.CodeOf(err); code != bwire.CodeUnknown {
		return code.Status(), true
	}

	return http.StatusInternalServerError, false
}

type responseBuffer struct {
	status int
	header bwire.Header
	buf    bytes.Buffer
	body   bwire.Producer
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{status: http.StatusOK}
}

// NewResponseWriter returns an empty buffered response with status 200.
func NewResponseWriter() ResponseWriter {
	return newResponseBuffer()
}

func (w *responseBuffer) Header() *bwire.Header { return &w.header }
func (w *responseBuffer) WriteHeader(status int) { w.status = status }
func (w *responseBuffer) Status() int            { return w.status }

func (w *responseBuffer) Write(p []byte) (int, error) {
	if w.body != nil {
		return 0, errors.New("bwsrv: write after SetBody")
	}

	return w.buf.Write(p) //nolint:wrapcheck
}

func (w *responseBuffer) SetBody(p bwire.Producer) {
	w.buf.Reset()
	w.body = p
}

func (w *responseBuffer) Body() bwire.Producer {
	if w.body != nil {
		return w.body
	}

	return bwire.BytesBody(w.buf.Bytes())
}

func (w *responseBuffer) Reset() {
	w.status, w.header, w.body = http.StatusOK, nil, nil
	w.buf.Reset()
}

// head returns the response head for the collected status and fields.
func (w *responseBuffer) head() *bwire.Head {
	return bwire.NewResponseHead(w.status, w.header...)
}

// writeError resets the response and renders a plain text error response with the given status.
func writeError(w ResponseWriter, status int) {
	w.Reset()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = fmt.Fprintln(w, http.StatusText(status))
}
