// Package fabriclog provides the structured logger used across every fabric
// component: a logrus.Logger wrapped with an immutable field set that
// grows via WithField(s), rather than a package-level global.
package fabriclog

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Format selects the logrus formatter.
type Format string

const (
	// FormatText is human-oriented, used in development.
	FormatText Format = "text"
	// FormatJSON is machine-parseable, used in production.
	FormatJSON Format = "json"
)

// Config controls how New builds the underlying logrus.Logger.
type Config struct {
	Service string
	Version string
	Level   logrus.Level
	Format  Format
}

// Logger is a structured logger scoped to a growing, immutable field set.
type Logger struct {
	base   *logrus.Logger
	fields logrus.Fields
}

// New builds a Logger with the service/version baked into every entry.
func New(cfg Config) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetLevel(cfg.Level)

	if cfg.Format == FormatJSON {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		base.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}

	return &Logger{
		base: base,
		fields: logrus.Fields{
			"service": cfg.Service,
			"version": cfg.Version,
		},
	}
}

// NewNop returns a Logger that discards everything; callers that accept an
// optional *Logger should fall back to this instead of nil-checking.
func NewNop() *Logger {
	base := logrus.New()
	base.SetOutput(nopWriter{})
	return &Logger{base: base, fields: logrus.Fields{}}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func (l *Logger) clone(extra logrus.Fields) *Logger {
	merged := make(logrus.Fields, len(l.fields)+len(extra))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return &Logger{base: l.base, fields: merged}
}

// WithField returns a derived Logger carrying one additional field.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.clone(logrus.Fields{key: value})
}

// WithFields returns a derived Logger carrying additional fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	f := make(logrus.Fields, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	return l.clone(f)
}

// WithError returns a derived Logger with the error's message attached.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.clone(logrus.Fields{"error": err.Error()})
}

func (l *Logger) entry() *logrus.Entry { return l.base.WithFields(l.fields) }

func (l *Logger) Debug(msg string)          { l.entry().Debug(msg) }
func (l *Logger) Debugf(f string, a ...any) { l.entry().Debugf(f, a...) }
func (l *Logger) Info(msg string)           { l.entry().Info(msg) }
func (l *Logger) Infof(f string, a ...any)  { l.entry().Infof(f, a...) }
func (l *Logger) Warn(msg string)           { l.entry().Warn(msg) }
func (l *Logger) Warnf(f string, a ...any)  { l.entry().Warnf(f, a...) }
func (l *Logger) Error(msg string)          { l.entry().Error(msg) }
func (l *Logger) Errorf(f string, a ...any) { l.entry().Errorf(f, a...) }
