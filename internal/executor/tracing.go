// Tracing instrumentation for the executor.
package executor

import (
	"context"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// startDirectiveSpan starts a span for one directive dispatch.
func (e *Executor) startDirectiveSpan(ctx context.Context, action string) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "directive."+action)
	span.SetAttributes(
		attribute.String("directive.action", action),
	)
	return ctx, span
}

// endDirectiveSpan ends the directive span with result info.
func (e *Executor) endDirectiveSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
