package bwire

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/http2"
)

// SniffH2 reports whether the client opened the connection with the HTTP/2 connection preface, meaning it speaks
// HTTP/2 with prior knowledge and the connection must be handed to an HTTP/2 server. The sniffed bytes stay buffered
// and are available from [Conn.Buffered]. It must be called before the first request is read.
func (c *Conn) SniffH2() (bool, error) {
	preface := []byte(http2.ClientPreface)
	for {
		window := c.reader.src.buf.Window()
		n := min(len(window), len(preface))
		if !bytes.Equal(window[:n], preface[:n]) {
			return false, nil
		}
		if n == len(preface) {
			return true, nil
		}

		err := c.reader.src.fill()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, errors.Wrap(err, "sniff connection preface")
		}
	}
}
