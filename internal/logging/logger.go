// Package logging wraps logrus with the structured, component-scoped entry
// pattern the rest of the daemon logs through.
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is a thin wrapper around a logrus.Entry that adds the
// single-flight "indexer not healthy" suppression described by the
// degradation discipline (spec §4.9).
type Logger struct {
	entry *logrus.Entry

	mu              sync.Mutex
	indexerDegraded bool
}

// New returns a root logger for the given component, with level parsed from
// the LOG_LEVEL convention (error, warning, info, debug).
func New(component string, level string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(parseLevel(level))

	return &Logger{entry: base.WithField("component", component)}
}

func parseLevel(level string) logrus.Level {
	switch level {
	case "error":
		return logrus.ErrorLevel
	case "warning":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug", "":
		return logrus.DebugLevel
	default:
		return logrus.DebugLevel
	}
}

// With returns a child logger carrying additional fields.
func (l *Logger) With(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// LogWithFields mirrors the teacher's ServiceEngine.LogWithFields, returning
// the raw logrus.Entry for call sites that want the full logrus API.
func (l *Logger) LogWithFields(fields map[string]any) *logrus.Entry {
	return l.entry.WithFields(logrus.Fields(fields))
}

// IndexerUnhealthy logs "Indexer is not healthy" exactly once per outage,
// guarded by a boolean flag per spec §4.9. Returns true if it logged.
func (l *Logger) IndexerUnhealthy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.indexerDegraded {
		return false
	}
	l.indexerDegraded = true
	l.entry.Warn("Indexer is not healthy")
	return true
}

// IndexerHealthy clears the degraded flag, logging "Indexer is healthy"
// exactly once when it transitions from degraded to healthy.
func (l *Logger) IndexerHealthy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.indexerDegraded {
		return false
	}
	l.indexerDegraded = false
	l.entry.Info("Indexer is healthy")
	return true
}
