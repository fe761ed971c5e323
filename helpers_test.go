package bwire_test

import (
	"bytes"
	"io"
	"strings"

	"github.com/advdv/bwire"
)

// hdr builds a header from name, value pairs.
func hdr(kv ...string) bwire.Header {
	h := make(bwire.Header, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		h = append(h, bwire.Field{Name: kv[i], Value: kv[i+1]})
	}

	return h
}

// memConn is an in-memory connection that reads from a fixed input and records what is written.
type memConn struct {
	in     io.Reader
	out    bytes.Buffer
	closed bool
}

func newMemConn(in string) *memConn {
	return &memConn{in: strings.NewReader(in)}
}

func (c *memConn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *memConn) Write(p []byte) (int, error) { return c.out.Write(p) }
func (c *memConn) Close() error                { c.closed = true; return nil }

// errWriter fails every write.
type errWriter struct{ err error }

func (w errWriter) Write([]byte) (int, error) { return 0, w.err }
