package bwire_test

import (
	"bytes"
	"log"
	"testing"

	"github.com/advdv/bwire"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestStdLogger(t *testing.T) {
	var buf bytes.Buffer
	logs := bwire.NewStdLogger(log.New(&buf, "", 0))

	logs.LogDecodeError(errors.New("bad start line"))
	logs.LogConnClosing("client closed the connection")
	logs.LogHandlerError(errors.New("boom"))

	require.Equal(t, ""+
		"bwire: decode error: bad start line\n"+
		"bwire: connection closing: client closed the connection\n"+
		"bwire: unhandled handler error: boom\n", buf.String())
}

func TestTestLogger(t *testing.T) {
	logs := bwire.NewTestLogger(t)
	logs.LogDecodeError(errors.New("x"))
	logs.LogDecodeError(errors.New("y"))
	logs.LogHandlerError(errors.New("z"))

	require.EqualValues(t, 2, logs.NumLogDecodeError)
	require.EqualValues(t, 1, logs.NumLogHandlerError)
	require.Zero(t, logs.NumLogConnClosing)

	bwire.NewNopLogger().LogConnClosing("ignored")
}
