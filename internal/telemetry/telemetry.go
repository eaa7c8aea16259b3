// Package telemetry wires OpenTelemetry traces and metrics for migration runs.
//
// When disabled every instrument is a no-op.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/desertthunder/yt2pt/internal/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const (
	// ScopeName is the instrumentation scope for yt2pt traces and metrics.
	ScopeName = "yt2pt"
	Version   = "v0.1.0"
)

// Provider bundles a tracer and a meter with their shutdown.
type Provider struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	reader   *sdkmetric.ManualReader
	shutdown func(context.Context) error
}

// Init builds a Provider from cfg. Spans go to w when the stdout exporter is selected (default [os.Stderr]).
func Init(ctx context.Context, cfg shared.TelemetryConfig, w io.Writer) (*Provider, error) {
	if !cfg.Enabled {
		return Disabled(), nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = ScopeName
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", name),
		attribute.String("service.version", Version),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	switch cfg.Exporter {
	case "", "none":
	case "stdout":
		if w == nil {
			w = os.Stderr
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	default:
		return nil, fmt.Errorf("%w: unknown telemetry exporter %q", shared.ErrInvalidConfig, cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))

	return &Provider{
		Tracer: tp.Tracer(ScopeName),
		Meter:  mp.Meter(ScopeName),
		reader: reader,
		shutdown: func(ctx context.Context) error {
			terr := tp.Shutdown(ctx)
			merr := mp.Shutdown(ctx)
			if terr != nil {
				return terr
			}
			return merr
		},
	}, nil
}

// Disabled returns a Provider whose tracer and meter do nothing.
func Disabled() *Provider {
	return &Provider{
		Tracer:   nooptrace.NewTracerProvider().Tracer(ScopeName),
		Meter:    noop.NewMeterProvider().Meter(ScopeName),
		shutdown: func(context.Context) error { return nil },
	}
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}

// Totals returns the current value of every integer sum instrument, keyed by instrument name.
//
// Disabled providers return an empty map.
func (p *Provider) Totals(ctx context.Context) (map[string]int64, error) {
	totals := map[string]int64{}
	if p.reader == nil {
		return totals, nil
	}

	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				var total int64
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
				totals[m.Name] = total
			}
		}
	}
	return totals, nil
}
