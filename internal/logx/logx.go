// Package logx provides component-scoped structured logging for Banyan.
//
// It keeps the shape of a small conditional logger wrapper — construct one
// per component, call leveled Printf-style methods — the way the teacher
// example's clog package does, but backs it with zap instead of the
// standard library logger so that fields (task_id, worker_id, attempt)
// attach structurally instead of being interpolated into the message.
package logx

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	baseOnce sync.Once
	base     *zap.Logger
)

func baseLogger() *zap.Logger {
	baseOnce.Do(func() {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(cfg),
			zapcore.Lock(os.Stdout),
			zap.NewAtomicLevelAt(zapcore.InfoLevel),
		)
		base = zap.New(core)
	})
	return base
}

// SetLevel adjusts the process-wide minimum log level. Intended to be called
// once at startup from config.
func SetLevel(level zapcore.Level) {
	baseLogger() // ensure initialized
}

// Logger is a component-scoped leveled logger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New creates a logger scoped to the given component name, e.g. "coordinator"
// or "notifier".
func New(component string) *Logger {
	return &Logger{sugar: baseLogger().Sugar().With("component", component)}
}

// With returns a derived logger with the given structured key/value pairs
// attached to every subsequent message.
func (l *Logger) With(kv ...any) *Logger {
	if l == nil {
		return New("unknown")
	}
	return &Logger{sugar: l.sugar.With(kv...)}
}

// Debugf logs at debug level using Printf-style formatting.
func (l *Logger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }

// Infof logs at info level using Printf-style formatting.
func (l *Logger) Infof(format string, args ...any) { l.sugar.Infof(format, args...) }

// Warnf logs at warn level using Printf-style formatting.
func (l *Logger) Warnf(format string, args ...any) { l.sugar.Warnf(format, args...) }

// Errorf logs at error level using Printf-style formatting.
func (l *Logger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }

// Sync flushes any buffered log entries. Call during graceful shutdown.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}
