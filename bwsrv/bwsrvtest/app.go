// Package bwsrvtest provides test helpers for bwsrv applications.
//
// It constructs the identical DI graph as [bwsrv.NewApp] but uses
// [fxtest.App] which fails the test immediately on DI errors.
//
// Example:
//
//	bwsrvtest.SetBaseEnv(t, 18081)
//	app := bwsrvtest.New[TestEnv](t, NewHandler)
//	app.RequireStart()
//	t.Cleanup(app.RequireStop)
package bwsrvtest

import (
	"testing"

	"github.com/advdv/bwire/bwsrv"
	"go.uber.org/fx/fxtest"
)

// App embeds *fxtest.App for testing bwsrv applications.
type App struct {
	*fxtest.App
}

// New creates a test app with the same DI graph as [bwsrv.NewApp].
func New[E bwsrv.Environment](t testing.TB, handler any, opts ...bwsrv.Option) *App {
	return &App{App: fxtest.New(t, bwsrv.FxOptions[E](handler, opts...)...)}
}
