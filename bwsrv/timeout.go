package bwsrv

import (
	"context"
	"net"
	"sync"
	"time"
)

// Timeout handling
//
// The codec does not implement timeouts itself. It reports every successful read or write as activity and leaves
// the policy to the connection driver. The server applies three bounds through connection deadlines:
//
//  1. IdleTimeout: how long a keep-alive connection may sit between requests before it is closed.
//
//  2. HeaderTimeout: once bytes of a request arrive, the longest silence allowed until the next bytes. Every
//     reported activity pushes the deadline forward, so a slow but steady body is fine while a stalled one is not.
//
//  3. WriteTimeout: the longest silence allowed while the response is written.
//
// Handlers that need a bound on their own work use [WithRequestTimeout].

// Default timeouts used when the configuration leaves them zero.
const (
	DefaultIdleTimeout   = 2 * time.Minute
	DefaultHeaderTimeout = 10 * time.Second
	DefaultWriteTimeout  = 30 * time.Second
)

// TimeoutConfig holds timeout configuration for the server.
type TimeoutConfig struct {
	IdleTimeout   time.Duration
	HeaderTimeout time.Duration
	WriteTimeout  time.Duration
}

// withDefaults returns the config with zero values replaced by the defaults.
func (tc TimeoutConfig) withDefaults() TimeoutConfig {
	if tc.IdleTimeout <= 0 {
		tc.IdleTimeout = DefaultIdleTimeout
	}
	if tc.HeaderTimeout <= 0 {
		tc.HeaderTimeout = DefaultHeaderTimeout
	}
	if tc.WriteTimeout <= 0 {
		tc.WriteTimeout = DefaultWriteTimeout
	}

	return tc
}

// deadliner moves the deadlines of a connection forward as the codec reports activity on it.
type deadliner struct {
	nc  net.Conn
	tc  TimeoutConfig
	now func() time.Time

	mu     sync.Mutex
	window time.Duration
}

func newDeadliner(nc net.Conn, tc TimeoutConfig) *deadliner {
	return &deadliner{nc: nc, tc: tc.withDefaults(), now: time.Now}
}

// idle arms the idle timeout while waiting for the next request. The first bytes of the request switch to the
// header timeout.
func (d *deadliner) idle() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.window = d.tc.HeaderTimeout
	_ = d.nc.SetDeadline(d.now().Add(d.tc.IdleTimeout))
}

// writing arms the write timeout.
func (d *deadliner) writing() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.window = d.tc.WriteTimeout
	_ = d.nc.SetDeadline(d.now().Add(d.tc.WriteTimeout))
}

// expire makes blocked reads and writes return immediately.
func (d *deadliner) expire() {
	_ = d.nc.SetDeadline(d.now())
}

// activity is the codec's liveness hook.
func (d *deadliner) activity(int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_ = d.nc.SetDeadline(d.now().Add(d.window))
}

// WithRequestTimeout returns middleware that bounds the handler's context by the given timeout.
func WithRequestTimeout(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, w ResponseWriter, r *Request) error {
			if timeout <= 0 {
				return next.ServeBW(ctx, w, r)
			}

			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			return next.ServeBW(ctx, w, r)
		})
	}
}

// RequestRemainingTime returns the duration until the request context deadline.
// Returns 0 if no deadline is set or if the deadline has passed.
func RequestRemainingTime(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}

	return max(time.Until(deadline), 0)
}
