package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/supsol/poreview/internal/service"

// reviewMetrics records through the given meter provider, or the global one,
// which is a no-op until an SDK is installed.
type reviewMetrics struct {
	results       metric.Int64Counter
	runDuration   metric.Float64Histogram
	notifications metric.Int64Counter
}

func newReviewMetrics(mp metric.MeterProvider) *reviewMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &reviewMetrics{}
	var err error
	if m.results, err = meter.Int64Counter("poreview.review.results",
		metric.WithDescription("Per-PO outcomes of review runs"),
		metric.WithUnit("{po}"),
	); err != nil {
		otel.Handle(err)
	}
	if m.runDuration, err = meter.Float64Histogram("poreview.review.duration",
		metric.WithDescription("Review run duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		otel.Handle(err)
	}
	if m.notifications, err = meter.Int64Counter("poreview.notifications.sent",
		metric.WithDescription("WhatsApp notifications by result"),
		metric.WithUnit("{message}"),
	); err != nil {
		otel.Handle(err)
	}
	return m
}

func (m *reviewMetrics) result(ctx context.Context, result string, auditTypeID int) {
	if m == nil || m.results == nil {
		return
	}
	m.results.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.Int("audit_type_id", auditTypeID),
	))
}

func (m *reviewMetrics) run(ctx context.Context, d time.Duration, status string) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

func (m *reviewMetrics) notification(ctx context.Context, ok bool) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}
