package observability

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

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartRemoteSpan starts a client span for a call to the remote data service
func StartRemoteSpan(ctx context.Context, method, table string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("remote %s %s", method, table),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgrest"),
			attribute.String("http.method", method),
			TableName(table),
		),
	)
}

// StartServiceSpan starts a span for service operations
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.component", service),
			attribute.String("service.operation", operation),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Replay outcomes used as metric attribute values
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeDropped = "dropped"
)

// SyncGauges is read by the observable gauges on every collection
type SyncGauges func() (pending int, online bool, syncing bool)

// SyncMetrics holds replay metrics
type SyncMetrics struct {
	replayCount    metric.Int64Counter
	replayDuration metric.Float64Histogram
	enqueueCount   metric.Int64Counter
	persistErrors  metric.Int64Counter
}

// NewSyncMetrics creates sync metrics instruments. gauges may be nil.
func NewSyncMetrics(gauges SyncGauges) (*SyncMetrics, error) {
	meter := otel.Meter(instrumentationName)

	replayCount, err := meter.Int64Counter(
		"fonosync.replay.count",
		metric.WithDescription("Queued operations replayed against the remote service"),
		metric.WithUnit("{operations}"),
	)
	if err != nil {
		return nil, err
	}

	replayDuration, err := meter.Float64Histogram(
		"fonosync.replay.duration",
		metric.WithDescription("Replay duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	enqueueCount, err := meter.Int64Counter(
		"fonosync.queue.enqueued",
		metric.WithDescription("Writes deferred to the offline queue"),
		metric.WithUnit("{operations}"),
	)
	if err != nil {
		return nil, err
	}

	persistErrors, err := meter.Int64Counter(
		"fonosync.queue.persist_errors",
		metric.WithDescription("Failed writes of the queue to local storage"),
		metric.WithUnit("{errors}"),
	)
	if err != nil {
		return nil, err
	}

	if gauges != nil {
		pending, err := meter.Int64ObservableGauge("fonosync.queue.pending",
			metric.WithDescription("Operations waiting to be replayed"))
		if err != nil {
			return nil, err
		}
		online, err := meter.Int64ObservableGauge("fonosync.online",
			metric.WithDescription("1 when the remote service is reachable"))
		if err != nil {
			return nil, err
		}
		syncing, err := meter.Int64ObservableGauge("fonosync.syncing",
			metric.WithDescription("1 while the queue is being drained"))
		if err != nil {
			return nil, err
		}

		_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			p, on, s := gauges()
			o.ObserveInt64(pending, int64(p))
			o.ObserveInt64(online, boolToInt(on))
			o.ObserveInt64(syncing, boolToInt(s))
			return nil
		}, pending, online, syncing)
		if err != nil {
			return nil, err
		}
	}

	return &SyncMetrics{
		replayCount:    replayCount,
		replayDuration: replayDuration,
		enqueueCount:   enqueueCount,
		persistErrors:  persistErrors,
	}, nil
}

// RecordReplay records one replay attempt
func (m *SyncMetrics) RecordReplay(ctx context.Context, table, kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		TableName(table),
		OperationKind(kind),
		attribute.String("outcome", outcome),
	)
	m.replayCount.Add(ctx, 1, attrs)
	m.replayDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordEnqueue records a write deferred while offline
func (m *SyncMetrics) RecordEnqueue(ctx context.Context, table, kind string) {
	if m == nil {
		return
	}
	m.enqueueCount.Add(ctx, 1, metric.WithAttributes(TableName(table), OperationKind(kind)))
}

// RecordPersistError records a failed queue save
func (m *SyncMetrics) RecordPersistError(ctx context.Context) {
	if m == nil {
		return
	}
	m.persistErrors.Add(ctx, 1)
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
