package bwsrv

import (
	"context"
	"net/http"
	"time"

	"github.com/advdv/bwire"
	"go.uber.org/zap"
)

// WithContentDecoding returns middleware that undoes the content codings of request bodies, so handlers read the
// original content from [Request.Content]. A coding that is not registered is answered with 415.
func WithContentDecoding(codings *bwire.Codings) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, w ResponseWriter, r *Request) error {
			if !r.Header.Has("Content-Encoding") {
				return next.ServeBW(ctx, w, r)
			}

			rc, err := codings.DecodeContent(r.Header, r.Content)
			if err != nil {
				return err
			}
			defer rc.Close()

			r.Header.Del("Content-Encoding")
			r.Header.Del("Content-Length")
			r.Content = rc

			return next.ServeBW(ctx, w, r)
		})
	}
}

// WithCompression returns middleware that encodes response bodies with the coding the client prefers. Bodies of a
// known size below minSize are sent as they are.
func WithCompression(codings *bwire.Codings, minSize int64) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, w ResponseWriter, r *Request) error {
			if err := next.ServeBW(ctx, w, r); err != nil {
				return err
			}

			if r.Method == http.MethodHead || !bwire.ResponseHasBody(r.Method, w.Status()) ||
				w.Header().Has("Content-Encoding") {
				return nil
			}

			coding := codings.Negotiate(r.Header.Get("Accept-Encoding"))
			if coding == "identity" {
				return nil
			}

			body := w.Body()
			if size := body.Size(); size >= 0 && size < minSize {
				return nil
			}

			enc, err := codings.EncodeContent(coding, body)
			if err != nil {
				return err
			}

			w.SetBody(enc)
			w.Header().Del("Content-Length")
			w.Header().Set("Content-Encoding", coding)
			w.Header().Add("Vary", "Accept-Encoding")

			return nil
		})
	}
}

// WithAccessLog returns middleware that logs every request cycle.
func WithAccessLog() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, w ResponseWriter, r *Request) error {
			start := time.Now()
			err := next.ServeBW(ctx, w, r)

			Log(ctx).Info("request",
				zap.String("method", r.Method),
				zap.String("target", r.Target),
				zap.Int("status", w.Status()),
				zap.Uint64("ticket", uint64(r.Ticket())),
				zap.Duration("took", time.Since(start)),
				zap.Error(err))

			return err
		})
	}
}
