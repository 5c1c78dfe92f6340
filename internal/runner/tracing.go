package runner

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceScope = "runcontrol.runner"

	traceSpanIteration = "runcontrol.runner.iteration"

	traceAttrRunID     = "runcontrol.run_id"
	traceAttrTaskID    = "runcontrol.task_id"
	traceAttrIteration = "runcontrol.iteration"
	traceAttrStatus    = "runcontrol.status"
)

func startIterationSpan(ctx context.Context, runID, taskID string, iteration int) (context.Context, trace.Span) {
	return otel.Tracer(traceScope).Start(ctx, traceSpanIteration, trace.WithAttributes(
		attribute.String(traceAttrRunID, runID),
		attribute.String(traceAttrTaskID, taskID),
		attribute.Int(traceAttrIteration, iteration),
	))
}

func endIterationSpan(span trace.Span, status string) {
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.String(traceAttrStatus, status))
	span.End()
}
