package observability

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorReporter receives failures that are swallowed into result values.
type ErrorReporter interface {
	Report(ctx context.Context, err error, fields map[string]string)
}

// LogReporter logs the error and marks the active span as failed.
type LogReporter struct {
	logger zerolog.Logger
}

func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: Component(logger, "error_reporter")}
}

func (r *LogReporter) Report(ctx context.Context, err error, fields map[string]string) {
	if err == nil {
		return
	}

	ev := r.logger.Error().Err(err)
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for k, v := range fields {
		ev = ev.Str(k, v)
		attrs = append(attrs, attribute.String(k, v))
	}
	ev.Msg("reported error")

	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// NopReporter discards reports.
type NopReporter struct{}

func (NopReporter) Report(context.Context, error, map[string]string) {}
