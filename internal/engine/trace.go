package engine

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer is package-scoped; with no SDK/exporter configured by the caller,
// go.opentelemetry.io/otel's global tracer provider is a no-op, so spans
// opened here cost a struct allocation and nothing more. Wiring an actual
// exporter is the out-of-scope "telemetry backend" concern (see
// SPEC_FULL.md DOMAIN STACK).
var tracer = otel.Tracer("github.com/haasonsaas/agentcore/internal/engine")

// startCycleSpan opens a span around one cycle when telemetry is enabled;
// otherwise it returns a no-op span via the context's (no-op by default)
// tracer.
func startCycleSpan(ctx context.Context, enabled bool, runID, cycleID uuid.UUID) (context.Context, trace.Span) {
	if !enabled {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, "agent.cycle", trace.WithAttributes(
		attribute.String("run_id", runID.String()),
		attribute.String("cycle_id", cycleID.String()),
	))
}

func startEvaluationSpan(ctx context.Context, enabled bool, runID, cycleID uuid.UUID, strategy string) (context.Context, trace.Span) {
	if !enabled {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, "agent.evaluate", trace.WithAttributes(
		attribute.String("run_id", runID.String()),
		attribute.String("cycle_id", cycleID.String()),
		attribute.String("evaluation_strategy", strategy),
	))
}

func endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}
