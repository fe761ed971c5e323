package bwire_test

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/advdv/bwire"
	"github.com/stretchr/testify/require"
)

func TestFixedBody(t *testing.T) {
	body := bwire.NewBody(strings.NewReader("hello world"), bwire.Framing{Kind: bwire.FramingFixed, Length: 5},
		bwire.DefaultConfig())

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	require.True(t, body.Done())

	_, err = body.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestFixedBodyUnexpectedEOF(t *testing.T) {
	body := bwire.NewBody(strings.NewReader("hel"), bwire.Framing{Kind: bwire.FramingFixed, Length: 5},
		bwire.DefaultConfig())

	_, err := io.ReadAll(body)
	require.Equal(t, bwire.CodeUnexpectedEOF, bwire.CodeOf(err))
	require.False(t, body.Done())
}

func TestNoBody(t *testing.T) {
	body := bwire.NewBody(strings.NewReader("GET / HTTP/1.1\r\n\r\n"), bwire.Framing{Kind: bwire.FramingNone},
		bwire.DefaultConfig())
	require.True(t, body.Done())

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestCloseDelimitedBody(t *testing.T) {
	body := bwire.NewBody(iotest.OneByteReader(strings.NewReader("until the end")),
		bwire.Framing{Kind: bwire.FramingClose}, bwire.DefaultConfig())

	var buf bytes.Buffer
	n, err := body.WriteTo(&buf)
	require.NoError(t, err)
	require.EqualValues(t, 13, n)
	require.Equal(t, "until the end", buf.String())
	require.True(t, body.Done())
}

func TestChunkedBody(t *testing.T) {
	for _, tt := range []struct {
		name    string
		raw     string
		expect  string
		trailer bwire.Header
	}{
		{"only last chunk", "0\r\n\r\n", "", bwire.Header{}},
		{"two chunks", "5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n", "hello world", bwire.Header{}},
		{"upper hex", "A\r\n0123456789\r\n0\r\n\r\n", "0123456789", bwire.Header{}},
		{"extensions", "3;name=value\r\nabc\r\n0;x\r\n\r\n", "abc", bwire.Header{}},
		{"trailer", "3\r\nabc\r\n0\r\nX-Sum: 1\r\nX-Other: 2\r\n\r\n", "abc", hdr("X-Sum", "1", "X-Other", "2")},
	} {
		t.Run(tt.name, func(t *testing.T) {
			for _, r := range []io.Reader{strings.NewReader(tt.raw), iotest.OneByteReader(strings.NewReader(tt.raw))} {
				body := bwire.NewBody(r, bwire.Framing{Kind: bwire.FramingChunked}, bwire.DefaultConfig())

				data, err := io.ReadAll(body)
				require.NoError(t, err)
				require.Equal(t, tt.expect, string(data))
				require.Equal(t, tt.trailer, body.Trailer())
				require.True(t, body.Done())
			}
		})
	}
}

func TestChunkedBodyErrors(t *testing.T) {
	small := bwire.DefaultConfig()
	small.MaxChunkSize = 16

	for _, tt := range []struct {
		name string
		raw  string
		cfg  bwire.Config
		code bwire.Code
	}{
		{"no digits", "zz\r\n", bwire.DefaultConfig(), bwire.CodeMalformedChunkSize},
		{"empty size", "\r\nabc", bwire.DefaultConfig(), bwire.CodeMalformedChunkSize},
		{"junk after size", "3x\r\nabc\r\n", bwire.DefaultConfig(), bwire.CodeMalformedChunkSize},
		{"missing terminator", "3\r\nabcX\r\n0\r\n\r\n", bwire.DefaultConfig(), bwire.CodeMalformedChunkTerminator},
		{"too large", "11\r\n", small, bwire.CodeChunkTooLarge},
		{"overflow", "ffffffffffffffffffff\r\n", bwire.DefaultConfig(), bwire.CodeChunkTooLarge},
		{"eof in data", "5\r\nab", bwire.DefaultConfig(), bwire.CodeUnexpectedEOF},
		{"eof before last chunk", "3\r\nabc\r\n", bwire.DefaultConfig(), bwire.CodeUnexpectedEOF},
		{"eof in trailer", "0\r\nX-Sum: 1\r\n", bwire.DefaultConfig(), bwire.CodeUnexpectedEOF},
		{"bad trailer", "0\r\nbad trailer\r\n\r\n", bwire.DefaultConfig(), bwire.CodeMalformedHeader},
	} {
		t.Run(tt.name, func(t *testing.T) {
			body := bwire.NewBody(strings.NewReader(tt.raw), bwire.Framing{Kind: bwire.FramingChunked}, tt.cfg)

			_, err := io.ReadAll(body)
			require.Equal(t, tt.code, bwire.CodeOf(err))
			require.True(t, bwire.IsFatal(err))

			// errors stick
			_, err2 := body.Next()
			require.Equal(t, err, err2)
		})
	}
}

func TestBodyNextViews(t *testing.T) {
	body := bwire.NewBody(strings.NewReader("3\r\nabc\r\n2\r\nde\r\n0\r\n\r\n"),
		bwire.Framing{Kind: bwire.FramingChunked}, bwire.DefaultConfig())

	var pieces []string
	for {
		view, err := body.Next()
		if err == io.EOF {
			break
		}

		require.NoError(t, err)
		pieces = append(pieces, string(view))
	}

	require.Equal(t, []string{"abc", "de"}, pieces)
}

func TestBodyClose(t *testing.T) {
	body := bwire.NewBody(strings.NewReader("hello"), bwire.Framing{Kind: bwire.FramingFixed, Length: 5},
		bwire.DefaultConfig())

	buf := make([]byte, 2)
	_, err := body.Read(buf)
	require.NoError(t, err)

	require.NoError(t, body.Close())
	require.NoError(t, body.Close())

	_, err = body.Read(buf)
	require.ErrorIs(t, err, bwire.ErrBodyClosed)
	require.False(t, body.Done())
}

func TestBodyDrain(t *testing.T) {
	body := bwire.NewBody(strings.NewReader("hello world"), bwire.Framing{Kind: bwire.FramingFixed, Length: 11},
		bwire.DefaultConfig())

	require.NoError(t, body.Drain())
	require.True(t, body.Done())
	require.NoError(t, body.Close())
}
