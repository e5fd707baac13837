// Package telemetry provides the structured logging interface shared by all
// six components, grounded on the teacher's telemetry.Logger shape
// (runtime/agent/telemetry/clue.go) but implemented directly over
// go.uber.org/zap rather than goa.design/clue: clue is an HTTP/gRPC service
// observability harness (metrics middleware, trace propagation over a Goa
// transport) and this engine has no HTTP/gRPC service layer of its own to
// instrument, so only the zap-backed logger half of that file is kept (see
// DESIGN.md).
package telemetry

import "go.uber.org/zap"

// Logger is the structured logging contract used throughout the engine.
// Key-value pairs follow zap's SugaredLogger convention (alternating
// key, value).
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	With(kv ...any) Logger
}

// ZapLogger adapts *zap.SugaredLogger to Logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZap builds a Logger backed by a production zap configuration.
func NewZap() (*ZapLogger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{sugar: z.Sugar()}, nil
}

// NewNop builds a Logger that discards everything, for tests.
func NewNop() *ZapLogger {
	return &ZapLogger{sugar: zap.NewNop().Sugar()}
}

func (l *ZapLogger) Debug(msg string, kv ...any) { l.sugar.Debugw(msg, kv...) }
func (l *ZapLogger) Info(msg string, kv ...any)  { l.sugar.Infow(msg, kv...) }
func (l *ZapLogger) Warn(msg string, kv ...any)  { l.sugar.Warnw(msg, kv...) }
func (l *ZapLogger) Error(msg string, kv ...any) { l.sugar.Errorw(msg, kv...) }

// With returns a Logger with kv pairs attached to every subsequent entry.
func (l *ZapLogger) With(kv ...any) Logger {
	return &ZapLogger{sugar: l.sugar.With(kv...)}
}
