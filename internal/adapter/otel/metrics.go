package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "dealwatch"

// Metrics holds all DealWatch metric instruments.
type Metrics struct {
	JobRuns           metric.Int64Counter
	JobFailures       metric.Int64Counter
	DealsFound        metric.Int64Counter
	NotificationsSent metric.Int64Counter
	PushSent          metric.Int64Counter
	OfferSearches     metric.Int64Counter
	JobDuration       metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.JobRuns, err = meter.Int64Counter("dealwatch.job.runs",
		metric.WithDescription("Number of deal job runs started"))
	if err != nil {
		return nil, err
	}

	m.JobFailures, err = meter.Int64Counter("dealwatch.job.failures",
		metric.WithDescription("Number of deal job runs that ended in error"))
	if err != nil {
		return nil, err
	}

	m.DealsFound, err = meter.Int64Counter("dealwatch.deals.found",
		metric.WithDescription("Number of qualifying deals persisted"))
	if err != nil {
		return nil, err
	}

	m.NotificationsSent, err = meter.Int64Counter("dealwatch.notifications.sent",
		metric.WithDescription("Number of rule notifications delivered"))
	if err != nil {
		return nil, err
	}

	m.PushSent, err = meter.Int64Counter("dealwatch.push.sent",
		metric.WithDescription("Number of browser pushes handed to the broadcaster"))
	if err != nil {
		return nil, err
	}

	m.OfferSearches, err = meter.Int64Counter("dealwatch.offers.searches",
		metric.WithDescription("Number of offer source searches"))
	if err != nil {
		return nil, err
	}

	m.JobDuration, err = meter.Float64Histogram("dealwatch.job.duration_seconds",
		metric.WithDescription("Deal job duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordJob records the outcome of one job run. A nil receiver is a no-op.
func (m *Metrics) RecordJob(ctx context.Context, status string, dealsFound, notificationsSent, pushSent int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.JobRuns.Add(ctx, 1, attrs)
	if status == "error" {
		m.JobFailures.Add(ctx, 1)
	}
	m.DealsFound.Add(ctx, int64(dealsFound))
	m.NotificationsSent.Add(ctx, int64(notificationsSent))
	m.PushSent.Add(ctx, int64(pushSent))
	m.JobDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordSearch counts one offer source search. A nil receiver is a no-op.
func (m *Metrics) RecordSearch(ctx context.Context, kind string, ok bool) {
	if m == nil {
		return
	}
	m.OfferSearches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", kind),
		attribute.Bool("ok", ok),
	))
}
