package core

import "github.com/hupe1980/agentrun/logging"

// runLogger is the logger carried by an invocation. Every entry it writes is
// tagged with the invocation id (and, for tool contexts, the call id).
type runLogger struct {
	logger logging.Logger
}

func newRunLogger(l logging.Logger, args ...any) *runLogger {
	return &runLogger{logger: logging.With(l, args...)}
}

// with derives a logger carrying additional key/value pairs.
func (l *runLogger) with(args ...any) *runLogger {
	return &runLogger{logger: logging.With(l.logger, args...)}
}

// Logger returns the tagged logger.
func (l *runLogger) Logger() logging.Logger { return l.logger }

func (l *runLogger) LogDebug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *runLogger) LogInfo(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *runLogger) LogWarn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *runLogger) LogError(msg string, args ...any) { l.logger.Error(msg, args...) }
