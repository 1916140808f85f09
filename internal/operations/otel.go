package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName = "asyncops.operations"
	MeterName  = "asyncops.operations"
)

// Instrumentation records traces and metrics for the orchestrator.
// A nil *Instrumentation is valid and records nothing.
type Instrumentation struct {
	tracer trace.Tracer

	registered     metric.Int64Counter
	completed      metric.Int64Counter
	pollTicks      metric.Int64Counter
	pollSkips      metric.Int64Counter
	batchItems     metric.Int64Counter
	listenerPanics metric.Int64Counter
	duration       metric.Float64Histogram
	active         metric.Int64ObservableGauge
}

// NewInstrumentation creates the instruments from the given providers.
// Nil providers fall back to the otel globals.
func NewInstrumentation(tp trace.TracerProvider, mp metric.MeterProvider) (*Instrumentation, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(MeterName)
	in := &Instrumentation{tracer: tp.Tracer(TracerName)}

	var err error
	if in.registered, err = meter.Int64Counter("asyncops_operations_registered_total",
		metric.WithDescription("Operations registered")); err != nil {
		return nil, fmt.Errorf("create registered counter: %w", err)
	}
	if in.completed, err = meter.Int64Counter("asyncops_operations_completed_total",
		metric.WithDescription("Operations that reached a terminal state, by status")); err != nil {
		return nil, fmt.Errorf("create completed counter: %w", err)
	}
	if in.pollTicks, err = meter.Int64Counter("asyncops_poll_ticks_total",
		metric.WithDescription("Probe invocations")); err != nil {
		return nil, fmt.Errorf("create poll tick counter: %w", err)
	}
	if in.pollSkips, err = meter.Int64Counter("asyncops_poll_ticks_skipped_total",
		metric.WithDescription("Ticks skipped because the previous probe was still running")); err != nil {
		return nil, fmt.Errorf("create poll skip counter: %w", err)
	}
	if in.batchItems, err = meter.Int64Counter("asyncops_batch_items_total",
		metric.WithDescription("Batch items executed, by outcome")); err != nil {
		return nil, fmt.Errorf("create batch item counter: %w", err)
	}
	if in.listenerPanics, err = meter.Int64Counter("asyncops_listener_panics_total",
		metric.WithDescription("Event listeners that panicked")); err != nil {
		return nil, fmt.Errorf("create listener panic counter: %w", err)
	}
	if in.duration, err = meter.Float64Histogram("asyncops_operation_duration_seconds",
		metric.WithDescription("Time from registration to terminal state"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	if in.active, err = meter.Int64ObservableGauge("asyncops_operations_active",
		metric.WithDescription("Operations currently pending or running")); err != nil {
		return nil, fmt.Errorf("create active gauge: %w", err)
	}
	return in, nil
}

// observeActive registers the callback feeding the active gauge.
func (in *Instrumentation) observeActive(mp metric.MeterProvider, count func() int64) error {
	if in == nil {
		return nil
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	_, err := mp.Meter(MeterName).RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(in.active, count())
		return nil
	}, in.active)
	return err
}

func (in *Instrumentation) recordRegistered(ctx context.Context) {
	if in == nil {
		return
	}
	in.registered.Add(ctx, 1)
}

func (in *Instrumentation) recordCompleted(ctx context.Context, status Status, d time.Duration) {
	if in == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	in.completed.Add(ctx, 1, attrs)
	in.duration.Record(ctx, d.Seconds(), attrs)
}

func (in *Instrumentation) recordPollTick(ctx context.Context) {
	if in == nil {
		return
	}
	in.pollTicks.Add(ctx, 1)
}

func (in *Instrumentation) recordPollSkip(ctx context.Context) {
	if in == nil {
		return
	}
	in.pollSkips.Add(ctx, 1)
}

func (in *Instrumentation) recordBatchItem(ctx context.Context, outcome string) {
	if in == nil {
		return
	}
	in.batchItems.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (in *Instrumentation) recordListenerPanic(ctx context.Context, event string) {
	if in == nil {
		return
	}
	in.listenerPanics.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// startSpan opens a span; with nil instrumentation the span is a no-op.
func (in *Instrumentation) startSpan(ctx context.Context, name, operationID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if in == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	attrs = append(attrs, attribute.String("operation.id", operationID))
	return in.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
