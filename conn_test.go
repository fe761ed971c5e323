package bwire_test

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/advdv/bwire"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
)

func ok(body string) bwire.Producer { return bwire.BytesBody([]byte(body)) }

func TestConnPostKeepAlive(t *testing.T) {
	mc := newMemConn("POST /x HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello")
	conn := bwire.NewConn(mc, bwire.DefaultConfig())

	req, err := conn.ReadRequest()
	require.NoError(t, err)
	require.Equal(t, "POST", req.Method)
	require.Equal(t, "/x", req.Target)
	require.Equal(t, bwire.HTTP11, req.Version)
	require.Equal(t, hdr("Content-Length", "5"), req.Header)
	require.Equal(t, bwire.StateProcessingRequest, conn.State())

	data, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	require.NoError(t, conn.WriteResponse(req, bwire.NewResponseHead(http.StatusOK), ok("ok")))
	require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok", mc.out.String())
	require.Equal(t, bwire.StateIdle, conn.State())

	_, err = conn.ReadRequest()
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, bwire.StateClosing, conn.State())

	require.NoError(t, conn.Close())
	require.True(t, mc.closed)
	require.Equal(t, bwire.StateClosed, conn.State())
}

func TestConnPipelining(t *testing.T) {
	mc := newMemConn("GET /1 HTTP/1.1\r\n\r\nGET /2 HTTP/1.1\r\n\r\nGET /3 HTTP/1.1\r\n\r\n")
	conn := bwire.NewConn(mc, bwire.DefaultConfig())

	var reqs []*bwire.Request
	for range 3 {
		req, err := conn.ReadRequest()
		require.NoError(t, err)
		reqs = append(reqs, req)
	}

	err := conn.WriteResponse(reqs[1], bwire.NewResponseHead(http.StatusOK), ok("2"))
	require.Equal(t, bwire.CodeOutOfTurn, bwire.CodeOf(err))
	require.Zero(t, mc.out.Len())

	for i, req := range reqs {
		require.NoError(t, conn.WriteResponse(req, bwire.NewResponseHead(http.StatusOK), ok(req.Target[1:])), i)
	}

	require.Equal(t, ""+
		"HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\n1"+
		"HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\n2"+
		"HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\n3", mc.out.String())
	require.Equal(t, bwire.StateIdle, conn.State())
}

func TestConnResponseClose(t *testing.T) {
	logs := bwire.NewTestLogger(t)
	mc := newMemConn("GET / HTTP/1.1\r\n\r\nGET /never HTTP/1.1\r\n\r\n")
	conn := bwire.NewConn(mc, bwire.DefaultConfig(), bwire.WithLogger(logs))

	req, err := conn.ReadRequest()
	require.NoError(t, err)

	head := bwire.NewResponseHead(http.StatusOK, bwire.Field{Name: "Connection", Value: "close"})
	require.NoError(t, conn.WriteResponse(req, head, ok("bye")))
	require.Equal(t, bwire.StateClosed, conn.State())
	require.EqualValues(t, 1, logs.NumLogConnClosing)

	_, err = conn.ReadRequest()
	require.Equal(t, bwire.CodeConnClosing, bwire.CodeOf(err))

	require.False(t, mc.closed)
	require.NoError(t, conn.Close())
	require.True(t, mc.closed)
	require.Contains(t, conn.Reason(), "does not keep the connection alive")
}

func TestConnCloseOnce(t *testing.T) {
	mc := newMemConn("")
	conn := bwire.NewConn(mc, bwire.DefaultConfig())

	require.NoError(t, conn.Close())
	require.True(t, mc.closed)

	mc.closed = false
	require.NoError(t, conn.Close())
	require.False(t, mc.closed)
}

func TestConnHTTP10(t *testing.T) {
	t.Run("close by default", func(t *testing.T) {
		mc := newMemConn("GET / HTTP/1.0\r\n\r\n")
		conn := bwire.NewConn(mc, bwire.DefaultConfig())

		req, err := conn.ReadRequest()
		require.NoError(t, err)
		require.Equal(t, bwire.StateClosing, conn.State())

		require.NoError(t, conn.WriteResponse(req, bwire.NewResponseHead(http.StatusOK), ok("ok")))
		require.Equal(t, "HTTP/1.0 200 OK\r\nConnection: close\r\nContent-Length: 2\r\n\r\nok", mc.out.String())
		require.Equal(t, bwire.StateClosed, conn.State())

		require.NoError(t, conn.Close())
		require.True(t, mc.closed)
	})

	t.Run("keep-alive negotiated", func(t *testing.T) {
		mc := newMemConn("GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")
		conn := bwire.NewConn(mc, bwire.DefaultConfig())

		req, err := conn.ReadRequest()
		require.NoError(t, err)

		require.NoError(t, conn.WriteResponse(req, bwire.NewResponseHead(http.StatusOK), ok("ok")))
		require.Equal(t, "HTTP/1.0 200 OK\r\nConnection: keep-alive\r\nContent-Length: 2\r\n\r\nok", mc.out.String())
		require.Equal(t, bwire.StateIdle, conn.State())
	})

	t.Run("unknown length", func(t *testing.T) {
		mc := newMemConn("GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")
		conn := bwire.NewConn(mc, bwire.DefaultConfig())

		req, err := conn.ReadRequest()
		require.NoError(t, err)

		require.NoError(t, conn.WriteResponse(req, bwire.NewResponseHead(http.StatusOK),
			bwire.ChunksBody([]byte("a"), []byte("bc"))))
		require.Equal(t, "HTTP/1.0 200 OK\r\nConnection: close\r\n\r\nabc", mc.out.String())
		require.Equal(t, bwire.StateClosed, conn.State())
	})
}

func TestConnAbandonedBody(t *testing.T) {
	logs := bwire.NewTestLogger(t)
	mc := newMemConn("POST / HTTP/1.1\r\nContent-Length: 11\r\n\r\nhello world")
	conn := bwire.NewConn(mc, bwire.DefaultConfig(), bwire.WithLogger(logs))

	req, err := conn.ReadRequest()
	require.NoError(t, err)

	_, err = req.Body.Read(make([]byte, 2))
	require.NoError(t, err)
	require.NoError(t, req.Body.Close())
	require.Equal(t, bwire.StateClosing, conn.State())
	require.Contains(t, conn.Reason(), "abandoned")
	require.EqualValues(t, 1, logs.NumLogConnClosing)

	require.NoError(t, conn.WriteResponse(req, bwire.NewResponseHead(http.StatusOK), nil))
	require.Equal(t, "HTTP/1.1 200 OK\r\nConnection: close\r\nContent-Length: 0\r\n\r\n", mc.out.String())
	require.Equal(t, bwire.StateClosed, conn.State())
}

func TestConnDecodeError(t *testing.T) {
	logs := bwire.NewTestLogger(t)
	mc := newMemConn("GET / HTTP/9.9\r\n\r\n")
	conn := bwire.NewConn(mc, bwire.DefaultConfig(), bwire.WithLogger(logs))

	_, err := conn.ReadRequest()
	require.Equal(t, bwire.CodeMalformedStartLine, bwire.CodeOf(err))
	require.Equal(t, bwire.StateClosing, conn.State())
	require.EqualValues(t, 1, logs.NumLogDecodeError)

	require.NoError(t, conn.WriteError(err))
	require.True(t, strings.HasPrefix(mc.out.String(), "HTTP/1.1 400 Bad Request\r\n"))
	require.Contains(t, mc.out.String(), "Connection: close\r\n")
	require.True(t, strings.HasSuffix(mc.out.String(), "\r\n\r\n400 Bad Request\n"))
}

func TestConnWriteErrorWithPendingResponses(t *testing.T) {
	mc := newMemConn("GET / HTTP/1.1\r\n\r\nGET / HTTP/1.1\r\nBad Header\r\n\r\n")
	conn := bwire.NewConn(mc, bwire.DefaultConfig())

	req, err := conn.ReadRequest()
	require.NoError(t, err)

	_, err = conn.ReadRequest()
	require.Equal(t, bwire.CodeMalformedHeader, bwire.CodeOf(err))

	// the error response would overtake the pending response
	require.NoError(t, conn.WriteError(err))
	require.Zero(t, mc.out.Len())

	require.NoError(t, conn.WriteResponse(req, bwire.NewResponseHead(http.StatusOK), nil))
	require.Contains(t, mc.out.String(), "Connection: close")
	require.Equal(t, bwire.StateClosed, conn.State())
}

func TestConnContinue(t *testing.T) {
	mc := newMemConn("POST / HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 2\r\n\r\nhi")
	conn := bwire.NewConn(mc, bwire.DefaultConfig())

	req, err := conn.ReadRequest()
	require.NoError(t, err)
	require.True(t, req.ExpectsContinue())

	require.NoError(t, conn.WriteContinue(req))
	require.Equal(t, "HTTP/1.1 100 Continue\r\n\r\n", mc.out.String())

	require.NoError(t, req.Body.Drain())
	require.NoError(t, conn.WriteResponse(req, bwire.NewResponseHead(http.StatusNoContent), nil))
	require.Equal(t, "HTTP/1.1 100 Continue\r\n\r\nHTTP/1.1 204 No Content\r\n\r\n", mc.out.String())
}

func TestConnDepthLimit(t *testing.T) {
	cfg := bwire.DefaultConfig()
	cfg.MaxPipelineDepth = 1

	conn := bwire.NewConn(newMemConn("GET /1 HTTP/1.1\r\n\r\nGET /2 HTTP/1.1\r\n\r\n"), cfg)

	_, err := conn.ReadRequest()
	require.NoError(t, err)

	_, err = conn.ReadRequest()
	require.Equal(t, bwire.CodeConnClosing, bwire.CodeOf(err))
	require.Equal(t, bwire.StateClosing, conn.State())
}

func TestConnActivity(t *testing.T) {
	const in = "POST / HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc"

	var seen int
	mc := newMemConn(in)
	conn := bwire.NewConn(mc, bwire.DefaultConfig(), bwire.WithActivity(func(n int) { seen += n }))

	req, err := conn.ReadRequest()
	require.NoError(t, err)
	require.NoError(t, req.Body.Drain())
	require.NoError(t, conn.WriteResponse(req, bwire.NewResponseHead(http.StatusOK), ok("done")))

	require.Equal(t, len(in)+mc.out.Len(), seen)
}

func TestConnMultipart(t *testing.T) {
	body := "--XyZ\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\n1\r\n--XyZ--\r\n"
	mc := newMemConn("POST /upload HTTP/1.1\r\n" +
		"Content-Type: multipart/form-data; boundary=XyZ\r\n" +
		"Transfer-Encoding: chunked\r\n\r\n" +
		"10\r\n" + body[:16] + "\r\n" +
		"2f\r\n" + body[16:] + "\r\n0\r\n\r\n" +
		"GET /next HTTP/1.1\r\n\r\n")
	conn := bwire.NewConn(mc, bwire.DefaultConfig())

	req, err := conn.ReadRequest()
	require.NoError(t, err)

	mr, err := req.MultipartReader()
	require.NoError(t, err)

	part, err := mr.NextPart()
	require.NoError(t, err)
	require.Equal(t, "a", part.FormName())

	data, err := io.ReadAll(part)
	require.NoError(t, err)
	require.Equal(t, "1", string(data))

	_, err = mr.NextPart()
	require.ErrorIs(t, err, io.EOF)
	require.True(t, req.Body.Done())

	require.NoError(t, conn.WriteResponse(req, bwire.NewResponseHead(http.StatusOK), nil))

	next, err := conn.ReadRequest()
	require.NoError(t, err)
	require.Equal(t, "/next", next.Target)
}

func TestConnSniffH2(t *testing.T) {
	conn := bwire.NewConn(newMemConn(http2.ClientPreface+"\x00\x00"), bwire.DefaultConfig())

	isH2, err := conn.SniffH2()
	require.NoError(t, err)
	require.True(t, isH2)
	require.Equal(t, http2.ClientPreface+"\x00\x00", string(conn.Buffered()))

	conn = bwire.NewConn(newMemConn("GET / HTTP/1.1\r\n\r\n"), bwire.DefaultConfig())

	isH2, err = conn.SniffH2()
	require.NoError(t, err)
	require.False(t, isH2)

	req, err := conn.ReadRequest()
	require.NoError(t, err)
	require.Equal(t, "/", req.Target)
}
