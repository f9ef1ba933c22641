package observability

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/requestctx"
)

// EventLogger adapts zap to the (ctx, event, fields) hook taken by the
// domain services. The request logger is preferred; fallback covers work that
// runs outside a request, such as live listeners.
func EventLogger(fallback *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = fallback
		}

		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		zfields := make([]zap.Field, 0, len(keys)+1)
		zfields = append(zfields, zap.String("event", event))
		for _, key := range keys {
			zfields = append(zfields, zap.Any(key, fields[key]))
		}

		logger.Log(eventLevel(event), event, zfields...)
	}
}

func eventLevel(event string) zapcore.Level {
	switch {
	case strings.HasSuffix(event, ".failed"):
		return zapcore.ErrorLevel
	case strings.HasSuffix(event, ".orphaned"):
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
