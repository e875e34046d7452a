package peer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// levelTrace sits below slog's debug level.
const levelTrace = slog.LevelDebug - 4

// SlogLoggerFactory routes pion's internal logging through slog.
type SlogLoggerFactory struct {
	Logger *slog.Logger
}

var _ logging.LoggerFactory = SlogLoggerFactory{}

func (f SlogLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	l := f.Logger
	if l == nil {
		l = slog.Default()
	}
	return &slogLeveledLogger{l: l.With("component", "pion", "scope", scope)}
}

type slogLeveledLogger struct {
	l *slog.Logger
}

func (s *slogLeveledLogger) log(level slog.Level, msg string) {
	s.l.Log(context.Background(), level, msg)
}

func (s *slogLeveledLogger) Trace(msg string) { s.log(levelTrace, msg) }
func (s *slogLeveledLogger) Tracef(format string, args ...interface{}) {
	s.log(levelTrace, fmt.Sprintf(format, args...))
}
func (s *slogLeveledLogger) Debug(msg string) { s.log(slog.LevelDebug, msg) }
func (s *slogLeveledLogger) Debugf(format string, args ...interface{}) {
	s.log(slog.LevelDebug, fmt.Sprintf(format, args...))
}
func (s *slogLeveledLogger) Info(msg string) { s.log(slog.LevelInfo, msg) }
func (s *slogLeveledLogger) Infof(format string, args ...interface{}) {
	s.log(slog.LevelInfo, fmt.Sprintf(format, args...))
}
func (s *slogLeveledLogger) Warn(msg string) { s.log(slog.LevelWarn, msg) }
func (s *slogLeveledLogger) Warnf(format string, args ...interface{}) {
	s.log(slog.LevelWarn, fmt.Sprintf(format, args...))
}
func (s *slogLeveledLogger) Error(msg string) { s.log(slog.LevelError, msg) }
func (s *slogLeveledLogger) Errorf(format string, args ...interface{}) {
	s.log(slog.LevelError, fmt.Sprintf(format, args...))
}
