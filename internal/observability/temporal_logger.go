package observability

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

var (
	_ log.Logger     = (*TemporalLogger)(nil)
	_ log.WithLogger = (*TemporalLogger)(nil)
)

// TemporalLogger routes the Temporal SDK's log lines through zerolog under
// "component":"temporal-sdk".
type TemporalLogger struct {
	logger zerolog.Logger
}

// NewTemporalLogger wraps logger for client.Options.Logger.
func NewTemporalLogger(logger zerolog.Logger) *TemporalLogger {
	return &TemporalLogger{logger: logger.With().Str("component", "temporal-sdk").Logger()}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug().Fields(fieldList(keyvals)).Msg(msg)
}

func (l *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info().Fields(fieldList(keyvals)).Msg(msg)
}

func (l *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn().Fields(fieldList(keyvals)).Msg(msg)
}

func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error().Fields(fieldList(keyvals)).Msg(msg)
}

// With returns a logger that adds keyvals to every line.
func (l *TemporalLogger) With(keyvals ...interface{}) log.Logger {
	return &TemporalLogger{logger: l.logger.With().Fields(fieldList(keyvals)).Logger()}
}

// fieldList keeps the SDK's key order and stringifies non-string keys, which
// zerolog would otherwise drop. A trailing key without a value is ignored.
func fieldList(keyvals []interface{}) []interface{} {
	out := make([]interface{}, 0, len(keyvals)&^1)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		out = append(out, key, keyvals[i+1])
	}
	return out
}
