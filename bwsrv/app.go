package bwsrv

import (
	"context"
	"net/http"

	"github.com/advdv/bwire"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// App wraps an fx.App for lifecycle management.
type App struct {
	app *fx.App
}

// AppConfig holds configuration for the app.
type AppConfig struct {
	ServerConfig
	FxOptions []fx.Option
}

// Option configures the App.
type Option func(*AppConfig)

// WithFx adds fx options for dependency injection.
func WithFx(fxOpts ...fx.Option) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, fxOpts...)
	}
}

// WithMiddleware adds middleware around the handler. The middleware provided first is the outer most.
func WithMiddleware(m ...Middleware) Option {
	return func(c *AppConfig) {
		c.Middleware = append(c.Middleware, m...)
	}
}

// WithH2CHandler sets the handler for connections that speak HTTP/2 with prior knowledge. It is only used when
// BW_ENABLE_H2C is set.
func WithH2CHandler(h http.Handler) Option {
	return func(c *AppConfig) {
		c.H2CHandler = h
	}
}

// Runtime provides access to app-scoped dependencies.
// Inject this into handler constructors via fx instead of pulling from context.
type Runtime[E Environment] struct {
	env     E
	codings *bwire.Codings
}

// NewRuntime creates a new Runtime with the given dependencies.
func NewRuntime[E Environment](env E, codings *bwire.Codings) *Runtime[E] {
	return &Runtime[E]{env: env, codings: codings}
}

// Env returns the environment configuration.
func (r *Runtime[E]) Env() E {
	return r.env
}

// Codings returns the content codings the server supports.
func (r *Runtime[E]) Codings() *bwire.Codings {
	return r.codings
}

// FxOptions returns the options that make up the app's dependency graph. The handler argument is an fx constructor
// whose result is the [Handler] that serves every request.
func FxOptions[E Environment](handler any, opts ...Option) []fx.Option {
	var cfg AppConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	baseOpts := make([]fx.Option, 0, 12+len(cfg.FxOptions))
	baseOpts = append(baseOpts, []fx.Option{
		fx.NopLogger,
		fx.Provide(ParseEnv[E]()),
		fx.Provide(func(e E) Environment { return e }),
		fx.Provide(func(e E) (*zap.Logger, error) { return NewLogger(e) }),
		fx.Provide(NewTracerProvider),
		fx.Provide(NewPropagator),
		fx.Provide(bwire.DefaultCodings),
		fx.Provide(NewRuntime[E]),
		fx.Provide(handler),
		fx.Supply(cfg.ServerConfig),
		fx.Provide(NewServer),
		fx.Invoke(startServerHook),
	}...)

	return append(baseOpts, cfg.FxOptions...)
}

// NewApp creates a batteries-included app with dependency injection.
//
// The handler constructor can request any types that are provided via fx options.
//
// Example:
//
//	bwsrv.NewApp[Env](NewHandler,
//	    bwsrv.WithMiddleware(bwsrv.WithAccessLog()),
//	    bwsrv.WithFx(fx.Provide(NewStore)),
//	).Run()
func NewApp[E Environment](handler any, opts ...Option) *App {
	return &App{
		app: fx.New(FxOptions[E](handler, opts...)...),
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() {
	a.app.Run()
}

// Start starts the application with the given context.
func (a *App) Start(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.app.StopTimeout())
	defer cancel()

	return a.app.Stop(stopCtx)
}
