// Package zap adapts a *zap.Logger to recstore.Logger.
package zap

import (
	"go.uber.org/zap"

	"github.com/unkn0wn-root/recstore"
)

var _ recstore.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

// New names the logger "recstore"; a nil logger yields zap.NewNop.
func New(l *zap.Logger) ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return ZapLogger{L: l.Named("recstore")}
}

func (z ZapLogger) Debug(msg string, f recstore.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f recstore.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f recstore.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f recstore.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f recstore.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
