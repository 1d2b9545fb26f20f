// Defined logger
package webapp

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DevEnv = "dev"
	StgEnv = "stg"
	PrdEnv = "prd"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithPrefix(prefix string) Logger
	DebugEnabled() bool
}

type ZeroLogger struct {
	logger zerolog.Logger
}

// NewZeroLogger builds the process logger. Production writes JSON to stdout,
// other environments a console writer on stderr.
func NewZeroLogger(service, env, level string) *ZeroLogger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var z zerolog.Logger
	switch strings.ToLower(env) {
	case "production", "prod", PrdEnv:
		z = zerolog.New(os.Stdout).With().Timestamp().Logger()
	default:
		z = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339Nano}).With().Timestamp().Logger()
	}
	if service != "" {
		z = z.With().Str("service", service).Logger()
	}
	return &ZeroLogger{logger: z.Level(lvl)}
}

// NewLoggerFrom wraps an existing zerolog logger.
func NewLoggerFrom(z zerolog.Logger) *ZeroLogger {
	return &ZeroLogger{logger: z}
}

// NopLogger discards everything.
func NopLogger() *ZeroLogger {
	return &ZeroLogger{logger: zerolog.New(io.Discard).Level(zerolog.Disabled)}
}

func (l *ZeroLogger) Debug(msg string, args ...any) { l.logger.Debug().Msgf(msg, args...) }
func (l *ZeroLogger) Info(msg string, args ...any)  { l.logger.Info().Msgf(msg, args...) }
func (l *ZeroLogger) Warn(msg string, args ...any)  { l.logger.Warn().Msgf(msg, args...) }
func (l *ZeroLogger) Error(msg string, args ...any) { l.logger.Error().Msgf(msg, args...) }

func (l *ZeroLogger) DebugEnabled() bool {
	return l.logger.GetLevel() <= zerolog.DebugLevel && zerolog.GlobalLevel() <= zerolog.DebugLevel
}

func (l *ZeroLogger) WithPrefix(prefix string) Logger {
	return &ZeroLogger{logger: l.logger.With().Str("prefix", prefix).Logger()}
}
