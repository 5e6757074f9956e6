// Package logutil bridges zerolog to the pion logging interfaces so every
// component in this module, pion internals included, writes to one sink.
package logutil

import (
	"io"
	"os"
	"strings"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// ZerologFactory implements logging.LoggerFactory on top of a zerolog
// logger. Each scope becomes a child logger tagged with a "scope" field.
type ZerologFactory struct {
	base zerolog.Logger
}

// NewFactory returns a factory emitting through logger.
func NewFactory(logger zerolog.Logger) *ZerologFactory {
	return &ZerologFactory{base: logger}
}

// NewConsoleFactory returns a factory writing human-readable output to w
// at the given level. Level accepts zerolog level names ("trace",
// "debug", "info", ...); unknown names select info. A nil w writes to
// stderr.
func NewConsoleFactory(w io.Writer, level string) *ZerologFactory {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(lvl).With().Timestamp().Logger()
	return &ZerologFactory{base: logger}
}

// NewLogger implements logging.LoggerFactory.
func (f *ZerologFactory) NewLogger(scope string) logging.LeveledLogger {
	return &zerologLogger{log: f.base.With().Str("scope", scope).Logger()}
}

type zerologLogger struct {
	log zerolog.Logger
}

func (l *zerologLogger) Trace(msg string)                  { l.log.Trace().Msg(msg) }
func (l *zerologLogger) Tracef(format string, args ...any) { l.log.Trace().Msgf(format, args...) }
func (l *zerologLogger) Debug(msg string)                  { l.log.Debug().Msg(msg) }
func (l *zerologLogger) Debugf(format string, args ...any) { l.log.Debug().Msgf(format, args...) }
func (l *zerologLogger) Info(msg string)                   { l.log.Info().Msg(msg) }
func (l *zerologLogger) Infof(format string, args ...any)  { l.log.Info().Msgf(format, args...) }
func (l *zerologLogger) Warn(msg string)                   { l.log.Warn().Msg(msg) }
func (l *zerologLogger) Warnf(format string, args ...any)  { l.log.Warn().Msgf(format, args...) }
func (l *zerologLogger) Error(msg string)                  { l.log.Error().Msg(msg) }
func (l *zerologLogger) Errorf(format string, args ...any) { l.log.Error().Msgf(format, args...) }

var (
	_ logging.LoggerFactory = (*ZerologFactory)(nil)
	_ logging.LeveledLogger = (*zerologLogger)(nil)
)
