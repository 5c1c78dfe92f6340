package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceScope = "runcontrol.orchestrator"

	traceSpanDispatchStep = "runcontrol.orchestrator.dispatch_step"

	traceAttrTaskID = "runcontrol.task_id"
	traceAttrAction = "runcontrol.action"
	traceAttrStatus = "runcontrol.status"
)

func startDispatchSpan(ctx context.Context, taskID string, action string) (context.Context, trace.Span) {
	return otel.Tracer(traceScope).Start(ctx, traceSpanDispatchStep, trace.WithAttributes(
		attribute.String(traceAttrTaskID, taskID),
		attribute.String(traceAttrAction, action),
	))
}

func endDispatchSpan(span trace.Span, ok bool, errMsg string) {
	if ok {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.String(traceAttrStatus, "succeeded"))
		span.End()
		return
	}
	span.SetStatus(codes.Error, errMsg)
	span.SetAttributes(attribute.String(traceAttrStatus, "failed"))
	span.End()
}
