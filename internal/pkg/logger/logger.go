// Package logger adapts zerolog to ports.Logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZeroLogger writes structured log lines through zerolog.
type ZeroLogger struct {
	log zerolog.Logger
}

// New creates a console logger on stderr. Verbose mode enables debug
// output; otherwise only warnings and errors are written.
func New(verbose bool) *ZeroLogger {
	return NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}, verbose)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, verbose bool) *ZeroLogger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return &ZeroLogger{log: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// Nop returns a logger that discards everything.
func Nop() *ZeroLogger {
	return &ZeroLogger{log: zerolog.Nop()}
}

func (l *ZeroLogger) Debug(msg string, fields map[string]interface{}) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *ZeroLogger) Info(msg string, fields map[string]interface{}) {
	l.log.Info().Fields(fields).Msg(msg)
}

func (l *ZeroLogger) Warn(msg string, fields map[string]interface{}) {
	l.log.Warn().Fields(fields).Msg(msg)
}

func (l *ZeroLogger) Error(msg string, err error, fields map[string]interface{}) {
	l.log.Error().Err(err).Fields(fields).Msg(msg)
}
