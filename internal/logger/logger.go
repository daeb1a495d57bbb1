package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Environment selects the handler flavour.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// FromString maps an environment variable value to an Environment,
// defaulting to Production.
func FromString(s string) Environment {
	if strings.EqualFold(s, string(Development)) || strings.EqualFold(s, "dev") {
		return Development
	}
	return Production
}

type options struct {
	level  slog.Level
	file   string
	output io.Writer
	err    error
}

// Option configures the logger.
type Option func(*options)

// WithLevel sets the minimum level ("debug", "info", "warn", "error").
func WithLevel(level string) Option {
	return func(o *options) {
		if err := o.level.UnmarshalText([]byte(level)); err != nil {
			o.err = fmt.Errorf("logger: invalid level %q", level)
		}
	}
}

// WithLogFile tees records into a size-rotated file.
func WithLogFile(path string) Option {
	return func(o *options) {
		o.file = path
	}
}

// WithOutput replaces stderr as the console destination.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// New builds a logger: colored text for development, JSON otherwise.
func New(env Environment, opts ...Option) (*slog.Logger, error) {
	o := &options{level: slog.LevelInfo, output: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}
	if o.err != nil {
		return nil, o.err
	}

	var handler slog.Handler
	if env == Development {
		handler = tint.NewHandler(o.output, &tint.Options{
			Level:      o.level,
			TimeFormat: time.Kitchen,
		})
	} else {
		handler = slog.NewJSONHandler(o.output, &slog.HandlerOptions{Level: o.level})
	}

	if o.file != "" {
		rotated := &lumberjack.Logger{
			Filename:   o.file,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		handler = fanout{handler, slog.NewJSONHandler(rotated, &slog.HandlerOptions{Level: o.level})}
	}

	return slog.New(handler), nil
}
