package bwsrv

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/advdv/bwire"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"
)

// maxDrainBytes is how much of a request body the server reads on behalf of a handler that left it unread before it
// gives up on the connection instead.
const maxDrainBytes = 256 << 10

// ServerConfig holds optional configuration for the server.
type ServerConfig struct {
	// Middleware wraps the handler, outer most first.
	Middleware []Middleware
	// H2CHandler serves connections that open with the HTTP/2 preface when BW_ENABLE_H2C is set.
	H2CHandler http.Handler
}

// ServerParams holds the dependencies for creating a server.
type ServerParams struct {
	fx.In

	Env        Environment
	Handler    Handler
	Logger     *zap.Logger
	TracerProv trace.TracerProvider
	Propagator propagation.TextMapPropagator
}

// Server accepts connections and serves HTTP/1.x requests on each of them with a [bwire.Conn].
type Server struct {
	cfg      bwire.Config
	timeouts TimeoutConfig
	handler  Handler
	h2c      http.Handler
	logger   *zap.Logger
	logs     bwire.Logger
	tracer   trace.Tracer
	prop     propagation.TextMapPropagator

	shutdown atomic.Bool
	mu       sync.Mutex
	listener net.Listener
	conns    map[*serverConn]struct{}
	done     chan struct{}
}

// NewServer creates a server with all middleware configured.
func NewServer(params ServerParams, cfg ServerConfig) *Server {
	s := &Server{
		cfg:      params.Env.codec(),
		timeouts: params.Env.timeouts().withDefaults(),
		handler:  Wrap(params.Handler, cfg.Middleware...),
		logger:   params.Logger,
		logs:     newZapBWireLogger(params.Logger),
		tracer:   params.TracerProv.Tracer("github.com/advdv/bwire/bwsrv"),
		prop:     params.Propagator,
		conns:    map[*serverConn]struct{}{},
		done:     make(chan struct{}),
	}

	if params.Env.enableH2C() {
		s.h2c = cfg.H2CHandler
	}

	return s
}

// Serve accepts connections on ln until the server is shut down. Every connection is served on its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	defer close(s.done)

	var eg errgroup.Group
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.shutdown.Load() {
				break
			}

			_ = eg.Wait()

			return errors.Wrap(err, "accept connection")
		}

		sc := s.track(nc)
		eg.Go(func() error {
			defer s.untrack(sc)
			s.serveConn(ctx, sc)

			return nil
		})
	}

	return eg.Wait() //nolint:wrapcheck
}

// Shutdown stops accepting connections, closes idle connections and waits for active ones to finish their current
// request.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Store(true)

	s.mu.Lock()
	ln := s.listener
	for sc := range s.conns {
		if sc.idle.Load() {
			sc.dl.expire()
		}
	}
	s.mu.Unlock()

	if ln == nil {
		return nil
	}

	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Wrap(err, "close listener")
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for sc := range s.conns {
			sc.dl.expire()
		}
		s.mu.Unlock()

		return errors.Wrap(ctx.Err(), "wait for connections")
	}
}

// serverConn is the server's view of one connection.
type serverConn struct {
	nc   net.Conn
	dl   *deadliner
	idle atomic.Bool
}

func (s *Server) track(nc net.Conn) *serverConn {
	sc := &serverConn{nc: nc, dl: newDeadliner(nc, s.timeouts)}
	sc.idle.Store(true)

	s.mu.Lock()
	s.conns[sc] = struct{}{}
	s.mu.Unlock()

	return sc
}

func (s *Server) untrack(sc *serverConn) {
	s.mu.Lock()
	delete(s.conns, sc)
	s.mu.Unlock()
}

func (s *Server) serveConn(ctx context.Context, sc *serverConn) {
	conn := bwire.NewConn(sc.nc, s.cfg, bwire.WithLogger(s.logs), bwire.WithActivity(sc.dl.activity))
	defer conn.Close()

	logger := s.logger.With(zap.Stringer("remote_addr", sc.nc.RemoteAddr()))

	if s.h2c != nil {
		sc.dl.idle()
		if ok, err := conn.SniffH2(); err != nil {
			return
		} else if ok {
			s.serveH2C(ctx, sc, conn.Buffered())
			return
		}
	}

	for conn.State() < bwire.StateClosing && !s.shutdown.Load() {
		sc.idle.Store(true)
		sc.dl.idle()

		req, err := conn.ReadRequest()
		sc.idle.Store(false)

		switch {
		case errors.Is(err, io.EOF):
			return
		case isTimeout(err):
			logger.Debug("connection timed out", zap.Error(err))
			return
		case err != nil:
			if bwire.IsFatal(err) {
				sc.dl.writing()
				_ = conn.WriteError(err)
			}

			return
		}

		s.serveRequest(ctx, sc, conn, req, logger)
	}
}

func (s *Server) serveRequest(
	ctx context.Context, sc *serverConn, conn *bwire.Conn, req *bwire.Request, logger *zap.Logger,
) {
	ctx, span := startSpan(ctx, s.tracer, s.prop, req)
	ctx = withRequestDep(ctx, &requestDep{logger: logger})

	if req.ExpectsContinue() {
		if err := conn.WriteContinue(req); err != nil {
			endSpan(span, http.StatusInternalServerError, err)
			return
		}
	}

	w := newResponseBuffer()
	err := s.handler.ServeBW(ctx, w, &Request{Request: req, Content: req.Body})
	if err != nil {
		status, expected := statusOf(err)
		if !expected {
			s.logs.LogHandlerError(err)
		}

		writeError(w, status)
	}

	s.finishBody(req.Body)

	sc.dl.writing()
	if werr := conn.WriteResponse(req, w.head(), w.Body()); werr != nil {
		logger.Debug("failed to write response", zap.Error(werr))
		err = errors.CombineErrors(err, werr)
	}

	endSpan(span, w.Status(), err)
}

// finishBody positions the connection at the next request. Small leftovers are drained, larger ones abandon the body
// which closes the connection after the response.
func (s *Server) finishBody(body *bwire.Body) {
	if body.Done() {
		return
	}

	if _, err := io.CopyN(io.Discard, body, maxDrainBytes); errors.Is(err, io.EOF) && body.Done() {
		return
	}

	_ = body.Close()
}

// serveH2C hands the connection to an HTTP/2 server. The bytes already read while sniffing are replayed first.
func (s *Server) serveH2C(ctx context.Context, sc *serverConn, buffered []byte) {
	sc.idle.Store(false)
	_ = sc.nc.SetDeadline(time.Time{})

	h2s := &http2.Server{IdleTimeout: s.timeouts.IdleTimeout}
	h2s.ServeConn(&prefixConn{Conn: sc.nc, r: io.MultiReader(bytes.NewReader(bytes.Clone(buffered)), sc.nc)},
		&http2.ServeConnOpts{Context: ctx, Handler: s.h2c})
}

// prefixConn is a connection whose first bytes were already read.
type prefixConn struct {
	net.Conn
	r io.Reader
}

func (c *prefixConn) Read(p []byte) (int, error) {
	return c.r.Read(p) //nolint:wrapcheck
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// startServerHook registers lifecycle hooks for the server.
func startServerHook(lc fx.Lifecycle, server *Server, env Environment, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var lcfg net.ListenConfig
			ln, err := lcfg.Listen(ctx, "tcp", env.addr())
			if err != nil {
				return errors.Wrap(err, "listen")
			}

			logger.Info("starting server", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := server.Serve(context.Background(), ln); err != nil {
					logger.Error("server error", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping server")
			return server.Shutdown(ctx)
		},
	})
}
