package bwsrvtest

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/advdv/bwire"
	"github.com/advdv/bwire/bwsrv"
	"go.uber.org/zap"
)

// memConn is an in-memory connection: reads come from the request bytes, writes are collected.
type memConn struct {
	io.Reader
	bytes.Buffer
}

func (c *memConn) Read(p []byte) (int, error) { return c.Reader.Read(p) } //nolint:wrapcheck

// NewRequest decodes raw request bytes into a request as a server would hand it to a handler. It panics when the
// bytes do not hold a valid request head.
func NewRequest(raw string) *bwsrv.Request {
	conn := bwire.NewConn(&memConn{Reader: strings.NewReader(raw)}, bwire.DefaultConfig())

	req, err := conn.ReadRequest()
	if err != nil {
		panic("bwsrvtest: decode request: " + err.Error())
	}

	return &bwsrv.Request{Request: req, Content: req.Body}
}

// CallHandler invokes handler with a buffered response writer and returns the response as it would have been put
// on the wire, decoded again: its head and body bytes. It panics when the handler returns an error.
func CallHandler(handler bwsrv.HandlerFunc, req *bwsrv.Request) (*bwire.Head, []byte) {
	w := bwsrv.NewResponseWriter()
	if err := handler(bwsrv.ContextWithLogger(context.Background(), zap.NewNop()), w, req); err != nil {
		panic("bwsrvtest: handler returned error: " + err.Error())
	}

	var wire bytes.Buffer
	head := bwire.NewResponseHead(w.Status(), *w.Header()...)
	if _, _, err := bwire.NewCodec(bwire.DefaultConfig()).EncodeResponse(&wire, head, req.Method, w.Body()); err != nil {
		panic("bwsrvtest: encode response: " + err.Error())
	}

	rd := bwire.NewReader(&wire, bwire.DefaultConfig())
	got, body, err := rd.ReadResponse(req.Method)
	if err != nil {
		panic("bwsrvtest: decode response: " + err.Error())
	}

	data, err := io.ReadAll(body)
	if err != nil {
		panic("bwsrvtest: read response body: " + err.Error())
	}

	return got, data
}
