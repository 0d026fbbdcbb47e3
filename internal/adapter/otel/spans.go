package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "dealwatch"

// StartJobSpan starts a span for a deal job run.
func StartJobSpan(ctx context.Context, runID string, jobID int64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "job.daily_deals",
		trace.WithAttributes(
			attribute.String("job.run_id", runID),
			attribute.Int64("job.id", jobID),
		),
	)
}

// StartRuleSpan starts a span for processing one monitoring rule.
func StartRuleSpan(ctx context.Context, ruleID int64, offerType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "rule.process",
		trace.WithAttributes(
			attribute.Int64("rule.id", ruleID),
			attribute.String("rule.type", offerType),
		),
	)
}

// StartNotifySpan starts a span for delivering one rule notification.
func StartNotifySpan(ctx context.Context, ruleID int64, channel string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "notify",
		trace.WithAttributes(
			attribute.Int64("rule.id", ruleID),
			attribute.String("notify.channel", channel),
		),
	)
}
