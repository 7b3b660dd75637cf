// Package logger wraps logrus with context-scoped fields (request id,
// session id, tenant id), matching every call site already present in the
// teacher (chat_pipline/common.go's pipelineInfo/Warn/Error,
// models/chat/ollama.go's logger.GetLogger(ctx)).
package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const fieldsKey ctxKey = "logger_fields"

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.JSONFormatter{})
}

// SetLevel adjusts the global log level, called once from cmd/server's
// config-loading step.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
}

// CloneContext attaches structured fields to ctx, returning a new context
// that every subsequent logger.* call on it will include automatically.
// kv is an optional list of alternating key/value pairs; called with no
// extra arguments it just stamps a fresh field set onto ctx (matching
// handler/system.go's bare `logger.CloneContext(c.Request.Context())`).
func CloneContext(ctx context.Context, kv ...any) context.Context {
	fields := fieldsFrom(ctx)
	cloned := make(logrus.Fields, len(fields)+len(kv)/2)
	for k, v := range fields {
		cloned[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			cloned[key] = kv[i+1]
		}
	}
	return context.WithValue(ctx, fieldsKey, cloned)
}

func fieldsFrom(ctx context.Context) logrus.Fields {
	if ctx == nil {
		return logrus.Fields{}
	}
	if f, ok := ctx.Value(fieldsKey).(logrus.Fields); ok {
		return f
	}
	return logrus.Fields{}
}

// GetLogger returns a *logrus.Entry carrying ctx's accumulated fields.
func GetLogger(ctx context.Context) *logrus.Entry {
	return base.WithFields(fieldsFrom(ctx))
}

func Info(ctx context.Context, args ...any)  { GetLogger(ctx).Info(args...) }
func Warn(ctx context.Context, args ...any)  { GetLogger(ctx).Warn(args...) }
func Error(ctx context.Context, args ...any) { GetLogger(ctx).Error(args...) }
func Debug(ctx context.Context, args ...any) { GetLogger(ctx).Debug(args...) }

func Infof(ctx context.Context, format string, args ...any)  { GetLogger(ctx).Infof(format, args...) }
func Warnf(ctx context.Context, format string, args ...any)  { GetLogger(ctx).Warnf(format, args...) }
func Errorf(ctx context.Context, format string, args ...any) { GetLogger(ctx).Errorf(format, args...) }
func Debugf(ctx context.Context, format string, args ...any) { GetLogger(ctx).Debugf(format, args...) }

// ErrorWithFields logs err alongside a handful of structured fields, used by
// the orchestrator when a pipeline stage fails but the request continues
// (spec.md §7 propagation policy).
func ErrorWithFields(ctx context.Context, err error, fields map[string]any) {
	entry := GetLogger(ctx)
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.WithError(err).Error("pipeline stage failed")
}
