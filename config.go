package bwire

import (
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
)

// Config holds the limits and behavioral switches of the codec. It is passed explicitly to every constructor that
// needs it; there is no package-level configuration.
type Config struct {
	// MaxHeaderBytes is the ceiling for a start-line plus header block, and for a chunked trailer block.
	MaxHeaderBytes int `env:"MAX_HEADER_BYTES" envDefault:"8192"`
	// MaxPartHeaderBytes is the ceiling for the header block of a single multipart part.
	MaxPartHeaderBytes int `env:"MAX_PART_HEADER_BYTES" envDefault:"8192"`
	// MaxChunkSize is the largest chunk size a chunked body may declare.
	MaxChunkSize int64 `env:"MAX_CHUNK_SIZE" envDefault:"16777216"`
	// MaxChunkLineBytes bounds a chunk-size line including extensions.
	MaxChunkLineBytes int `env:"MAX_CHUNK_LINE_BYTES" envDefault:"4096"`
	// MaxPipelineDepth is the number of requests that may be decoded ahead of their responses.
	MaxPipelineDepth int `env:"MAX_PIPELINE_DEPTH" envDefault:"16"`
	// MergeTrailers appends chunked trailers to the message's header list once the body is exhausted. When false
	// trailers are only available from [Body.Trailer].
	MergeTrailers bool `env:"MERGE_TRAILERS" envDefault:"false"`
	// ReadSize is the minimum number of bytes requested from the connection per read.
	ReadSize int `env:"READ_SIZE" envDefault:"4096"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		MaxHeaderBytes:     8 << 10,
		MaxPartHeaderBytes: 8 << 10,
		MaxChunkSize:       16 << 20,
		MaxChunkLineBytes:  4 << 10,
		MaxPipelineDepth:   16,
		ReadSize:           4 << 10,
	}
}

// Validate checks that all limits are usable.
func (c Config) Validate() error {
	switch {
	case c.MaxHeaderBytes <= 0:
		return errors.Newf("max header bytes must be positive, got: %d", c.MaxHeaderBytes)
	case c.MaxPartHeaderBytes <= 0:
		return errors.Newf("max part header bytes must be positive, got: %d", c.MaxPartHeaderBytes)
	case c.MaxChunkSize <= 0:
		return errors.Newf("max chunk size must be positive, got: %d", c.MaxChunkSize)
	case c.MaxChunkLineBytes < 3:
		return errors.Newf("max chunk line bytes must be at least 3, got: %d", c.MaxChunkLineBytes)
	case c.MaxPipelineDepth <= 0:
		return errors.Newf("max pipeline depth must be positive, got: %d", c.MaxPipelineDepth)
	case c.ReadSize <= 0:
		return errors.Newf("read size must be positive, got: %d", c.ReadSize)
	}

	return nil
}

// ParseConfig reads the configuration from environment variables, each name prefixed with prefix.
func ParseConfig(prefix string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return cfg, errors.Wrap(err, "failed to parse codec config")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid codec config")
	}

	return cfg, nil
}
