// internal/logging/temporal.go
package logging

import (
	"fmt"

	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// TemporalAdapter routes Temporal SDK logs (client, worker, workflow and
// activity loggers) through the dbtflow zap core.
type TemporalAdapter struct {
	zap *zap.Logger
}

var (
	_ log.Logger     = (*TemporalAdapter)(nil)
	_ log.WithLogger = (*TemporalAdapter)(nil)
)

// NewTemporalAdapter wraps l for use as client.Options.Logger.
func NewTemporalAdapter(l *Logger) *TemporalAdapter {
	return &TemporalAdapter{zap: l.Underlying().Named("temporal").WithOptions(zap.AddCallerSkip(1))}
}

func (a *TemporalAdapter) Debug(msg string, keyvals ...interface{}) {
	a.zap.Debug(msg, keyvalFields(keyvals)...)
}

func (a *TemporalAdapter) Info(msg string, keyvals ...interface{}) {
	a.zap.Info(msg, keyvalFields(keyvals)...)
}

func (a *TemporalAdapter) Warn(msg string, keyvals ...interface{}) {
	a.zap.Warn(msg, keyvalFields(keyvals)...)
}

func (a *TemporalAdapter) Error(msg string, keyvals ...interface{}) {
	a.zap.Error(msg, keyvalFields(keyvals)...)
}

// With implements log.WithLogger.
func (a *TemporalAdapter) With(keyvals ...interface{}) log.Logger {
	return &TemporalAdapter{zap: a.zap.With(keyvalFields(keyvals)...)}
}

// keyvalFields converts Temporal's alternating key/value pairs to zap fields.
// Values that are already zap fields pass through unchanged.
func keyvalFields(keyvals []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keyvals)/2+1)
	for i := 0; i < len(keyvals); i++ {
		if f, ok := keyvals[i].(zap.Field); ok {
			fields = append(fields, f)
			continue
		}
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		if i+1 >= len(keyvals) {
			fields = append(fields, zap.Any("extra", key))
			break
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
		i++
	}
	return fields
}
