package observability

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// End, span'i kapatır; hata varsa span'e işler.
//
//	ctx, span := tracer.Start(ctx, "Ledger.Consume")
//	defer observability.End(span, &err)
func End(span trace.Span, errp *error) {
	if errp != nil && *errp != nil {
		span.RecordError(*errp)
		span.SetStatus(codes.Error, (*errp).Error())
	}
	span.End()
}
