package bwire

import (
	"log"
	"sync/atomic"
	"testing"
)

// Logger can be implemented to get informed about important states.
type Logger interface {
	LogDecodeError(err error)
	LogConnClosing(reason string)
	LogHandlerError(err error)
}

type stdLogger struct{ *log.Logger }

func (l stdLogger) LogDecodeError(err error) {
	l.Logger.Printf("bwire: decode error: %s", err)
}

func (l stdLogger) LogConnClosing(reason string) {
	l.Logger.Printf("bwire: connection closing: %s", reason)
}

func (l stdLogger) LogHandlerError(err error) {
	l.Logger.Printf("bwire: unhandled handler error: %s", err)
}

func NewStdLogger(l *log.Logger) Logger {
	return stdLogger{l}
}

type nopLogger struct{}

func (nopLogger) LogDecodeError(error)  {}
func (nopLogger) LogConnClosing(string) {}
func (nopLogger) LogHandlerError(error) {}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger { return nopLogger{} }

type TestLogger struct {
	tb testing.TB

	NumLogDecodeError  int64
	NumLogConnClosing  int64
	NumLogHandlerError int64
}

func NewTestLogger(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

func (l *TestLogger) LogDecodeError(err error) {
	atomic.AddInt64(&l.NumLogDecodeError, 1)
	l.tb.Logf("bwire: decode error: %s", err)
}

func (l *TestLogger) LogConnClosing(reason string) {
	atomic.AddInt64(&l.NumLogConnClosing, 1)
	l.tb.Logf("bwire: connection closing: %s", reason)
}

func (l *TestLogger) LogHandlerError(err error) {
	atomic.AddInt64(&l.NumLogHandlerError, 1)
	l.tb.Logf("bwire: unhandled handler error: %s", err)
}

var _ Logger = &TestLogger{}
