package coordinator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kalambet/steptrace/internal/telemetry"
)

type metrics struct {
	created      metric.Int64Counter
	finalized    metric.Int64Counter
	abandoned    metric.Int64Counter
	postDuration metric.Float64Histogram
}

func newMetrics() metrics {
	meter := telemetry.Meter("steptrace/coordinator")
	created, _ := meter.Int64Counter("steptrace.steps.created",
		metric.WithDescription("Pending steps persisted"),
	)
	finalized, _ := meter.Int64Counter("steptrace.steps.finalized",
		metric.WithDescription("Steps completed with a post-observation"),
	)
	abandoned, _ := meter.Int64Counter("steptrace.steps.abandoned",
		metric.WithDescription("Post-captures dropped because the episode changed"),
	)
	postDur, _ := meter.Float64Histogram("steptrace.post_capture.duration_ms",
		metric.WithDescription("Time to observe the page after an action (ms)"),
		metric.WithUnit("ms"),
	)
	return metrics{created: created, finalized: finalized, abandoned: abandoned, postDuration: postDur}
}

func (m metrics) stepCreated(ctx context.Context, action string) {
	if m.created != nil {
		m.created.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
	}
}

func (m metrics) stepFinalized(ctx context.Context, action string, took time.Duration) {
	if m.finalized != nil {
		m.finalized.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
	}
	if m.postDuration != nil {
		m.postDuration.Record(ctx, float64(took.Milliseconds()))
	}
}

func (m metrics) stepAbandoned(ctx context.Context, reason string) {
	if m.abandoned != nil {
		m.abandoned.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}
