package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/yt2pt/internal/shared"
	"go.opentelemetry.io/otel/attribute"
)

func TestInit(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		p, err := Init(context.Background(), shared.TelemetryConfig{}, nil)
		if err != nil {
			t.Fatalf("Init: %v", err)
		}
		defer p.Shutdown(context.Background())

		m, err := NewMetrics(p.Meter)
		if err != nil {
			t.Fatalf("NewMetrics with noop: %v", err)
		}
		m.RecordOutcome(context.Background(), "done", time.Second)

		totals, err := p.Totals(context.Background())
		if err != nil || len(totals) != 0 {
			t.Errorf("expected empty totals, got %v, %v", totals, err)
		}
	})

	t.Run("unknown exporter", func(t *testing.T) {
		_, err := Init(context.Background(), shared.TelemetryConfig{Enabled: true, Exporter: "zipkin"}, nil)
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("stdout exporter writes spans", func(t *testing.T) {
		var buf bytes.Buffer
		p, err := Init(context.Background(), shared.TelemetryConfig{Enabled: true, Exporter: "stdout"}, &buf)
		if err != nil {
			t.Fatalf("Init: %v", err)
		}

		_, span := StartSpan(context.Background(), p.Tracer, "transfer", attribute.String("item.id", "abc"))
		span.End()

		if err := p.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
		if !strings.Contains(buf.String(), `"Name":"transfer"`) {
			t.Errorf("expected exported span, got %q", buf.String())
		}
	})
}

func TestMetricsTotals(t *testing.T) {
	ctx := context.Background()
	p, err := Init(ctx, shared.TelemetryConfig{Enabled: true}, nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(ctx)

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.RecordOutcome(ctx, "done", time.Second)
	m.RecordOutcome(ctx, "done", 2*time.Second)
	m.RecordOutcome(ctx, "failed", time.Second)
	m.PagesFetched.Add(ctx, 3)

	totals, err := p.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals["yt2pt.items.transferred"] != 2 {
		t.Errorf("expected 2 transferred, got %d", totals["yt2pt.items.transferred"])
	}
	if totals["yt2pt.items.failed"] != 1 {
		t.Errorf("expected 1 failed, got %d", totals["yt2pt.items.failed"])
	}
	if totals["yt2pt.catalog.pages"] != 3 {
		t.Errorf("expected 3 pages, got %d", totals["yt2pt.catalog.pages"])
	}
}

func TestNoopMetrics(t *testing.T) {
	m := NoopMetrics()
	if m == nil || m.ItemsTransferred == nil || m.TransferDuration == nil {
		t.Fatal("expected all noop instruments")
	}
	m.RecordOutcome(context.Background(), "skipped", 0)
}
