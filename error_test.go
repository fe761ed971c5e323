package bwire_test

import (
	"net/http"
	"testing"

	"github.com/advdv/bwire"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestErrorCode(t *testing.T) {
	err1 := bwire.NewError(bwire.CodeMalformedHeader, errors.New("foo"))
	require.Equal(t, bwire.CodeMalformedHeader, err1.Code())
	require.Equal(t, bwire.CodeMalformedHeader, bwire.CodeOf(err1))
	require.Equal(t, "bwire: MalformedHeader: foo", err1.Error())

	wrapped := errors.Wrap(err1, "decode request")
	require.Equal(t, bwire.CodeMalformedHeader, bwire.CodeOf(wrapped))

	require.Equal(t, bwire.CodeUnknown, bwire.CodeOf(errors.New("bar")))
	require.Equal(t, "Code(900)", bwire.Code(900).String())
}

func TestErrorStatus(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, bwire.CodeMalformedStartLine.Status())
	require.Equal(t, http.StatusRequestHeaderFieldsTooLarge, bwire.CodeHeaderBlockTooLarge.Status())
	require.Equal(t, http.StatusRequestEntityTooLarge, bwire.CodeChunkTooLarge.Status())
	require.Equal(t, http.StatusInternalServerError, bwire.CodeOutOfTurn.Status())
}

func TestIsFatal(t *testing.T) {
	require.False(t, bwire.IsFatal(nil))
	require.False(t, bwire.IsFatal(bwire.ErrIncomplete))
	require.False(t, bwire.IsFatal(errors.New("plain")))
	require.False(t, bwire.IsFatal(bwire.NewError(bwire.CodeOutOfTurn, nil)))
	require.True(t, bwire.IsFatal(bwire.NewError(bwire.CodeInvalidFraming, nil)))
	require.True(t, bwire.IsFatal(errors.Wrap(bwire.NewError(bwire.CodeUnexpectedEOF, nil), "x")))
}
