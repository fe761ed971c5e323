package bwsrv

import (
	"time"

	"github.com/advdv/bwire"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Environment defines the interface that all environment configurations must implement.
// Embed BaseEnvironment in your struct to satisfy this interface.
type Environment interface {
	addr() string
	serviceName() string
	logLevel() zapcore.Level
	logFile() string
	otelExporter() string
	timeouts() TimeoutConfig
	enableH2C() bool
	codec() bwire.Config
}

// BaseEnvironment contains the environment variables every server reads.
// Embed this in your custom environment struct.
type BaseEnvironment struct {
	Addr         string        `env:"BW_ADDR" envDefault:":8080"`
	ServiceName  string        `env:"BW_SERVICE_NAME,required"`
	LogLevel     zapcore.Level `env:"BW_LOG_LEVEL" envDefault:"info"`
	LogFile      string        `env:"BW_LOG_FILE"`
	OtelExporter string        `env:"BW_OTEL_EXPORTER" envDefault:"stdout"`
	// IdleTimeout bounds how long a keep-alive connection may wait for its next request.
	IdleTimeout time.Duration `env:"BW_IDLE_TIMEOUT" envDefault:"2m"`
	// HeaderTimeout bounds the silence between bytes of a request once it started to arrive.
	HeaderTimeout time.Duration `env:"BW_HEADER_TIMEOUT" envDefault:"10s"`
	WriteTimeout  time.Duration `env:"BW_WRITE_TIMEOUT" envDefault:"30s"`
	EnableH2C     bool          `env:"BW_ENABLE_H2C" envDefault:"false"`
	// Codec holds the limits of the wire codec, read from BW_MAX_HEADER_BYTES and friends.
	Codec bwire.Config `envPrefix:"BW_"`
}

func (e BaseEnvironment) addr() string {
	return e.Addr
}

func (e BaseEnvironment) serviceName() string {
	return e.ServiceName
}

func (e BaseEnvironment) logLevel() zapcore.Level {
	return e.LogLevel
}

func (e BaseEnvironment) logFile() string {
	return e.LogFile
}

func (e BaseEnvironment) otelExporter() string {
	return e.OtelExporter
}

func (e BaseEnvironment) timeouts() TimeoutConfig {
	return TimeoutConfig{IdleTimeout: e.IdleTimeout, HeaderTimeout: e.HeaderTimeout, WriteTimeout: e.WriteTimeout}
}

func (e BaseEnvironment) enableH2C() bool {
	return e.EnableH2C
}

func (e BaseEnvironment) codec() bwire.Config {
	return e.Codec
}

var _ Environment = BaseEnvironment{}

// ParseEnv parses environment variables into the given Environment type.
func ParseEnv[E Environment]() func() (E, error) {
	return func() (e E, err error) {
		if err := env.Parse(&e); err != nil {
			return e, errors.Wrap(err, "failed to parse environment")
		}

		if err := e.codec().Validate(); err != nil {
			return e, errors.Wrap(err, "invalid codec limits")
		}

		return e, nil
	}
}
