package bqpipeline

import (
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

// Option configures Runner.
type Option interface {
	apply(*runner) error
}

type optionFunc func(*runner) error

func (f optionFunc) apply(r *runner) error {
	return f(r)
}

// WithPrettyLogging configures Runner to print human friendly logs.
func WithPrettyLogging() Option {
	return optionFunc(func(r *runner) error {
		r.prettyLogging = true
		return nil
	})
}

// WithLogLevel configures the log level such as "debug" or "info".
func WithLogLevel(level string) Option {
	return optionFunc(func(r *runner) error {
		lv, err := zerolog.ParseLevel(level)
		if err != nil {
			return xerrors.Errorf("invalid log level %q: %w", level, err)
		}
		r.logLevel = lv
		return nil
	})
}

// WithLogOutput configures the destination of logs. Default is stdout.
func WithLogOutput(w io.Writer) Option {
	return optionFunc(func(r *runner) error {
		r.logOutput = w
		return nil
	})
}
