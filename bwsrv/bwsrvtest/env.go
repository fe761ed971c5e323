package bwsrvtest

import (
	"strconv"
	"testing"
)

// Env provides a chainable builder for setting [bwsrv.BaseEnvironment] env vars
// via t.Setenv. Create one with [SetBaseEnv].
type Env struct {
	t testing.TB
}

// SetBaseEnv sets all [bwsrv.BaseEnvironment] env vars to sensible test defaults.
// Port is required because each test must use a unique port to avoid collisions.
//
// Defaults:
//   - BW_ADDR: "127.0.0.1:<port>"
//   - BW_SERVICE_NAME: "test"
//   - BW_LOG_LEVEL: "warn"
//   - BW_OTEL_EXPORTER: "none"
//   - BW_IDLE_TIMEOUT: "5s"
//
// Use the returned [Env] to override individual values:
//
//	bwsrvtest.SetBaseEnv(t, 18085).ServiceName("echo").EnableH2C()
func SetBaseEnv(t testing.TB, port int) *Env {
	t.Helper()
	t.Setenv("BW_ADDR", "127.0.0.1:"+strconv.Itoa(port))
	t.Setenv("BW_SERVICE_NAME", "test")
	t.Setenv("BW_LOG_LEVEL", "warn")
	t.Setenv("BW_OTEL_EXPORTER", "none")
	t.Setenv("BW_IDLE_TIMEOUT", "5s")
	return &Env{t: t}
}

// ServiceName overrides BW_SERVICE_NAME.
func (e *Env) ServiceName(name string) *Env {
	e.t.Helper()
	e.t.Setenv("BW_SERVICE_NAME", name)
	return e
}

// IdleTimeout overrides BW_IDLE_TIMEOUT.
func (e *Env) IdleTimeout(d string) *Env {
	e.t.Helper()
	e.t.Setenv("BW_IDLE_TIMEOUT", d)
	return e
}

// EnableH2C sets BW_ENABLE_H2C.
func (e *Env) EnableH2C() *Env {
	e.t.Helper()
	e.t.Setenv("BW_ENABLE_H2C", "true")
	return e
}

// MaxHeaderBytes overrides BW_MAX_HEADER_BYTES.
func (e *Env) MaxHeaderBytes(n int) *Env {
	e.t.Helper()
	e.t.Setenv("BW_MAX_HEADER_BYTES", strconv.Itoa(n))
	return e
}
