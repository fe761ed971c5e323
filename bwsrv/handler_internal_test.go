package bwsrv

import (
	"net/http"
	"testing"

	"github.com/advdv/bwire"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	for _, tt := range []struct {
		name     string
		err      error
		status   int
		expected bool
	}{
		{"status error", NewError(http.StatusNotFound, errors.New("no such item")), http.StatusNotFound, true},
		{"wrapped status error", errors.Wrap(NewError(http.StatusConflict, nil), "put"), http.StatusConflict, true},
		{"codec error", bwire.NewError(bwire.CodeChunkTooLarge, nil), http.StatusRequestEntityTooLarge, true},
		{"unsupported coding", errors.Wrap(bwire.NewError(bwire.CodeUnsupportedEncoding, nil), "decode"),
			http.StatusUnsupportedMediaType, true},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			status, expected := statusOf(tt.err)
			require.Equal(t, tt.status, status)
			require.Equal(t, tt.expected, expected)
		})
	}
}

func TestWriteError(t *testing.T) {
	w := newResponseBuffer()
	w.Header().Set("X-Partial", "1")
	_, _ = w.Write([]byte("half written"))

	writeError(w, http.StatusBadGateway)

	require.Equal(t, http.StatusBadGateway, w.Status())
	require.False(t, w.Header().Has("X-Partial"))
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	head := w.head()
	require.Equal(t, http.StatusBadGateway, head.Status)
	require.Equal(t, "text/plain; charset=utf-8", head.Header.Get("Content-Type"))

	require.Equal(t, int64(len("Bad Gateway\n")), w.Body().Size())
	require.Equal(t, "Bad Gateway\n", w.buf.String())
}
