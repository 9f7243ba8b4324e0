package logging

import (
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// RetryLogger adapts a zerolog.Logger to retryablehttp.LeveledLogger so
// retry attempts show up in the structured log.
type RetryLogger struct {
	Logger zerolog.Logger
}

var _ retryablehttp.LeveledLogger = RetryLogger{}

func (l RetryLogger) Error(msg string, kv ...interface{}) { emit(l.Logger.Error(), msg, kv) }
func (l RetryLogger) Info(msg string, kv ...interface{})  { emit(l.Logger.Debug(), msg, kv) }
func (l RetryLogger) Debug(msg string, kv ...interface{}) { emit(l.Logger.Debug(), msg, kv) }
func (l RetryLogger) Warn(msg string, kv ...interface{})  { emit(l.Logger.Warn(), msg, kv) }

func emit(e *zerolog.Event, msg string, kv []interface{}) {
	e.Fields(kv).Msg(msg)
}
