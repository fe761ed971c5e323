package bwsrv

import (
	"os"

	"github.com/advdv/bwire"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a zap logger configured from the environment.
// Uses JSON encoding on stdout. BW_LOG_LEVEL controls the level (debug, info, warn, error).
// When BW_LOG_FILE is set the output is also written to that file, rotated by size.
func NewLogger(env Environment) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(env.logLevel())
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if env.logFile() == "" {
		return cfg.Build()
	}

	enc := zapcore.NewJSONEncoder(cfg.EncoderConfig)
	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.Lock(os.Stdout), cfg.Level),
		zapcore.NewCore(enc, zapcore.AddSync(&lumberjack.Logger{
			Filename:   env.logFile(),
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}), cfg.Level),
	)

	return zap.New(core, zap.AddCaller()), nil
}

type zapLogger struct{ *zap.Logger }

func (l zapLogger) LogDecodeError(err error) {
	l.Logger.Warn("decode error", zap.Error(err), zap.Stringer("code", bwire.CodeOf(err)))
}

func (l zapLogger) LogConnClosing(reason string) {
	l.Logger.Debug("connection closing", zap.String("reason", reason))
}

func (l zapLogger) LogHandlerError(err error) {
	l.Logger.Error("unhandled handler error", zap.Error(err))
}

func newZapBWireLogger(l *zap.Logger) bwire.Logger {
	return zapLogger{l.Named("bwire").Named("bwsrv")}
}
