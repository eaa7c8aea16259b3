package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// Metrics holds the migration instruments.
type Metrics struct {
	PagesFetched     metric.Int64Counter
	ItemsDiscovered  metric.Int64Counter
	ItemsTransferred metric.Int64Counter
	ItemsFailed      metric.Int64Counter
	ItemsSkipped     metric.Int64Counter
	Retries          metric.Int64Counter
	ActiveTransfers  metric.Int64UpDownCounter
	TransferDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.PagesFetched, err = meter.Int64Counter("yt2pt.catalog.pages",
		metric.WithDescription("Catalog pages fetched from the source"),
	); err != nil {
		return nil, err
	}

	if m.ItemsDiscovered, err = meter.Int64Counter("yt2pt.catalog.items",
		metric.WithDescription("Catalog entries upserted into the journal"),
	); err != nil {
		return nil, err
	}

	if m.ItemsTransferred, err = meter.Int64Counter("yt2pt.items.transferred",
		metric.WithDescription("Items that reached done"),
	); err != nil {
		return nil, err
	}

	if m.ItemsFailed, err = meter.Int64Counter("yt2pt.items.failed",
		metric.WithDescription("Items marked failed"),
	); err != nil {
		return nil, err
	}

	if m.ItemsSkipped, err = meter.Int64Counter("yt2pt.items.skipped",
		metric.WithDescription("Items skipped because another transfer held them"),
	); err != nil {
		return nil, err
	}

	if m.Retries, err = meter.Int64Counter("yt2pt.transfer.retries",
		metric.WithDescription("Remote calls retried after a transient failure"),
	); err != nil {
		return nil, err
	}

	if m.ActiveTransfers, err = meter.Int64UpDownCounter("yt2pt.transfer.active",
		metric.WithDescription("Transfers currently in flight"),
	); err != nil {
		return nil, err
	}

	if m.TransferDuration, err = meter.Float64Histogram("yt2pt.transfer.duration",
		metric.WithDescription("Item transfer duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// NoopMetrics returns instruments that record nothing.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(ScopeName))
	return m
}

// RecordOutcome counts a finished transfer and its duration.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	switch outcome {
	case "done":
		m.ItemsTransferred.Add(ctx, 1)
	case "failed":
		m.ItemsFailed.Add(ctx, 1)
	case "skipped":
		m.ItemsSkipped.Add(ctx, 1)
	}
	m.TransferDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// StartSpan starts a span named name with the given attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
