package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer scope used for transaction spans.
const InstrumentationName = "github.com/nimburion/dbext"

// TransactionSpanOption configures a transaction span.
type TransactionSpanOption func(*transactionSpanOptions)

type transactionSpanOptions struct {
	attributes []attribute.KeyValue
}

// WithDBSystem sets the database system (e.g., "postgresql", "mysql", "memory").
func WithDBSystem(system string) TransactionSpanOption {
	return func(opts *transactionSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.system", system))
	}
}

// WithAttemptID tags the span with the transaction attempt ID.
func WithAttemptID(id string) TransactionSpanOption {
	return func(opts *transactionSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.transaction.attempt_id", id))
	}
}

// StartTransactionSpan starts a span covering one transaction attempt. A nil
// tracer falls back to the globally installed provider.
func StartTransactionSpan(ctx context.Context, tracer trace.Tracer, opts ...TransactionSpanOption) (context.Context, trace.Span) {
	spanOpts := &transactionSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("db.operation", "transaction"),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	if tracer == nil {
		tracer = otel.Tracer(InstrumentationName)
	}
	ctx, span := tracer.Start(ctx, "DB transaction", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// RecordError marks the span as failed.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSuccess marks the span as successful.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
