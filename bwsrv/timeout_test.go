package bwsrv_test

import (
	"context"
	"testing"
	"time"

	"github.com/advdv/bwire/bwsrv"
	"github.com/advdv/bwire/bwsrv/bwsrvtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRequestTimeout(t *testing.T) {
	t.Run("bounds the handler context", func(t *testing.T) {
		var remaining time.Duration

		h := bwsrv.WithRequestTimeout(time.Minute)(bwsrv.HandlerFunc(
			func(ctx context.Context, _ bwsrv.ResponseWriter, _ *bwsrv.Request) error {
				remaining = bwsrv.RequestRemainingTime(ctx)
				return nil
			}))

		bwsrvtest.CallHandler(h.ServeBW, bwsrvtest.NewRequest("GET / HTTP/1.1\r\nHost: a\r\n\r\n"))
		assert.Greater(t, remaining, 50*time.Second)
		assert.LessOrEqual(t, remaining, time.Minute)
	})

	t.Run("zero passes through unchanged", func(t *testing.T) {
		var hasDeadline bool

		h := bwsrv.WithRequestTimeout(0)(bwsrv.HandlerFunc(
			func(ctx context.Context, _ bwsrv.ResponseWriter, _ *bwsrv.Request) error {
				_, hasDeadline = ctx.Deadline()
				return nil
			}))

		bwsrvtest.CallHandler(h.ServeBW, bwsrvtest.NewRequest("GET / HTTP/1.1\r\nHost: a\r\n\r\n"))
		assert.False(t, hasDeadline)
	})
}

func TestRequestRemainingTime(t *testing.T) {
	t.Run("no deadline", func(t *testing.T) {
		require.Equal(t, time.Duration(0), bwsrv.RequestRemainingTime(context.Background()))
	})

	t.Run("passed deadline", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		require.Equal(t, time.Duration(0), bwsrv.RequestRemainingTime(ctx))
	})

	t.Run("future deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()

		rem := bwsrv.RequestRemainingTime(ctx)
		require.Greater(t, rem, 59*time.Minute)
	})
}
