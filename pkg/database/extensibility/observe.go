package extensibility

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/dbext/pkg/database"
	"github.com/nimburion/dbext/pkg/observability/logger"
	"github.com/nimburion/dbext/pkg/observability/metrics"
	"github.com/nimburion/dbext/pkg/observability/tracing"
)

// ObservedHooks logs, traces and measures every transaction attempt. Each
// attempt, retries included, gets its own ID, span and metrics sample.
type ObservedHooks struct {
	logger logger.Logger
	system string
	tracer trace.Tracer
}

// NewObservedHooks returns hooks that observe attempts against the named
// database system.
func NewObservedHooks(log logger.Logger, system string) *ObservedHooks {
	if log == nil {
		log = logger.NewNop()
	}
	return &ObservedHooks{logger: log, system: system}
}

// WithTracer starts attempt spans from tracer instead of the global provider.
func (h *ObservedHooks) WithTracer(tracer trace.Tracer) *ObservedHooks {
	h.tracer = tracer
	return h
}

type observedContext struct {
	*ContextBase
	attemptID string
	traceCtx  context.Context
	span      trace.Span
	start     time.Time
}

func findObserved(db database.Context) *observedContext {
	for db != nil {
		if oc, ok := db.(*observedContext); ok {
			return oc
		}
		inner, ok := db.(interface{ Inner() database.Context })
		if !ok {
			return nil
		}
		db = inner.Inner()
	}
	return nil
}

// AttemptID returns the ID of the attempt db belongs to, if db was entered by
// ObservedHooks.
func AttemptID(db database.Context) string {
	if oc := findObserved(db); oc != nil {
		return oc.attemptID
	}
	return ""
}

// TraceContext returns parent carrying the span and attempt ID of the attempt
// db belongs to, so work done inside the unit of work can start child spans
// and log with the attempt ID. It returns parent unchanged when db was not
// entered by ObservedHooks.
func TraceContext(parent context.Context, db database.Context) context.Context {
	oc := findObserved(db)
	if oc == nil {
		return parent
	}
	return logger.ContextWithAttemptID(trace.ContextWithSpan(parent, oc.span), oc.attemptID)
}

func (h *ObservedHooks) EnterContext(ctx context.Context, db database.Context) (database.Context, error) {
	base, err := NewContextBase(db)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	spanCtx, span := tracing.StartTransactionSpan(ctx, h.tracer, tracing.WithDBSystem(h.system), tracing.WithAttemptID(id))
	spanCtx = logger.ContextWithAttemptID(spanCtx, id)
	metrics.IncrementInFlight()

	h.logger.WithContext(spanCtx).Debug("transaction attempt started", "db_system", h.system)
	return &observedContext{ContextBase: base, attemptID: id, traceCtx: spanCtx, span: span, start: time.Now()}, nil
}

func (h *ObservedHooks) LeaveContext(_ context.Context, db database.Context, cause error) error {
	oc, ok := db.(*observedContext)
	if !ok {
		return fmt.Errorf("observe: unexpected context %T", db)
	}
	defer oc.span.End()
	metrics.DecrementInFlight()

	elapsed := time.Since(oc.start)
	log := h.logger.WithContext(oc.traceCtx)
	if cause != nil {
		metrics.RecordAttempt(metrics.OutcomeFailed, elapsed)
		tracing.RecordError(oc.span, cause)
		log.Warn("transaction attempt failed", "duration", elapsed, "error", cause)
		return nil
	}

	metrics.RecordAttempt(metrics.OutcomeSucceeded, elapsed)
	tracing.RecordSuccess(oc.span)
	log.Debug("transaction attempt finished", "duration", elapsed, "changes", len(oc.ChangeTracker().Changes()))
	return nil
}
