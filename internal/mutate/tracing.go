package mutate

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func startMutationSpan(ctx context.Context, name, model string) (context.Context, trace.Span) {
	tracer := otel.Tracer("ormcore/mutate")
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(attribute.String("db.model", model))
	return ctx, span
}

func finishMutationSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("orm.mutation.outcome", "error"))
		return
	}
	span.SetAttributes(attribute.String("orm.mutation.outcome", "success"))
}
