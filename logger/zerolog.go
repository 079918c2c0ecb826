package logger

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ZerologLogger is a Logger backed by zerolog.
type ZerologLogger struct {
	logger atomic.Pointer[zerolog.Logger]
}

var _ Logger = (*ZerologLogger)(nil)

// NewZerolog creates a zerolog backed Logger writing JSON lines to w.
func NewZerolog(w io.Writer, level LogLevel) Logger {
	zl := zerolog.New(w).With().Timestamp().Logger().Level(toZerologLevel(level))
	return newZerologLogger(zl)
}

func newZerologLogger(zl zerolog.Logger) *ZerologLogger {
	l := &ZerologLogger{}
	l.logger.Store(&zl)

	return l
}

func (l *ZerologLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Load().Debug().Fields(keysAndValues).Msg(msg)
}

func (l *ZerologLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Load().Info().Fields(keysAndValues).Msg(msg)
}

func (l *ZerologLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Load().Warn().Fields(keysAndValues).Msg(msg)
}

func (l *ZerologLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Load().Error().Fields(keysAndValues).Msg(msg)
}

func (l *ZerologLogger) Fatal(msg string, keysAndValues ...any) {
	l.logger.Load().WithLevel(zerolog.FatalLevel).Fields(keysAndValues).Msg(msg)
	os.Exit(1)
}

func (l *ZerologLogger) With(keyValues ...any) Logger {
	return newZerologLogger(l.logger.Load().With().Fields(keyValues).Logger())
}

func (l *ZerologLogger) Level() LogLevel {
	switch l.logger.Load().GetLevel() {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return DebugLevel
	case zerolog.InfoLevel:
		return InfoLevel
	case zerolog.WarnLevel:
		return WarnLevel
	case zerolog.ErrorLevel:
		return ErrorLevel
	default:
		return FatalLevel
	}
}

// SetLevel changes the level of l only; loggers derived with With keep their level.
func (l *ZerologLogger) SetLevel(level LogLevel) {
	zl := l.logger.Load().Level(toZerologLevel(level))
	l.logger.Store(&zl)
}

func toZerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.FatalLevel
	}
}
