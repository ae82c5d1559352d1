// Package logger provides context-carried structured logging on top of
// logrus. Pipeline stages attach run, entry and document fields to the
// context so every log line of a worker can be traced back to its input.
package logger

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Field names shared by the pipeline.
const (
	FieldRunID    = "run_id"
	FieldEntry    = "entry"
	FieldDocument = "document"
	FieldStage    = "stage"
)

var (
	// G returns the logger for a context.
	G = GetLogger
	// L is the process-wide fallback logger.
	L = logrus.NewEntry(newLogger())
)

type loggerKey struct{}

// WithLogger stores a logger entry in the context.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger.WithContext(ctx))
}

// GetLogger returns the context logger, falling back to L.
func GetLogger(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return L
	}
	if logger, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
		return logger
	}
	return L.WithContext(ctx)
}

// WithField derives a context whose logger carries an extra field.
func WithField(ctx context.Context, key string, value any) context.Context {
	return WithLogger(ctx, G(ctx).WithField(key, value))
}

// WithRun tags the context logger with a pipeline run id.
func WithRun(ctx context.Context, runID string) context.Context {
	return WithField(ctx, FieldRunID, runID)
}

// WithEntry tags the context logger with a knowledge entry name.
func WithEntry(ctx context.Context, entry string) context.Context {
	return WithField(ctx, FieldEntry, entry)
}

// WithDocument tags the context logger with a source document name.
func WithDocument(ctx context.Context, doc string) context.Context {
	return WithField(ctx, FieldDocument, doc)
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	setLoggerFormat(l, "fmt")
	return l
}

func setLoggerFormat(logger *logrus.Logger, format string) {
	switch format {
	case "json":
		logger.Formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "logLevel",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
	default:
		logger.Formatter = &logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
			FullTimestamp:   true,
		}
	}
}

// Configure applies level and format to the global logger in one call.
// An empty level leaves the current level untouched.
func Configure(level, format string) error {
	if level != "" {
		if err := SetLogLevel(level); err != nil {
			return err
		}
	}
	SetLogFormat(format)
	return nil
}

// SetLogLevel sets the level of the global logger.
func SetLogLevel(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	L.Logger.SetLevel(logLevel)
	return nil
}

// SetLogFormat switches the global logger between "fmt" and "json".
func SetLogFormat(format string) {
	setLoggerFormat(L.Logger, format)
}

// SetLogOutput redirects the global logger.
func SetLogOutput(w io.Writer) {
	L.Logger.SetOutput(w)
}
