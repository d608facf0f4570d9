package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/doeshing/oncomn/internal/ports"
)

var meter = otel.Meter("oncomn/generation")

// GenerationMetrics records generation outcomes through the global OpenTelemetry meter.
type GenerationMetrics struct {
	startedCounter    metric.Int64Counter
	completedCounter  metric.Int64Counter
	failedCounter     metric.Int64Counter
	cancelledCounter  metric.Int64Counter
	durationHistogram metric.Float64Histogram
	activeGauge       metric.Int64UpDownCounter
}

// NewGenerationMetrics creates a new generation metrics collector
func NewGenerationMetrics() (*GenerationMetrics, error) {
	startedCounter, err := meter.Int64Counter(
		"oncomn.generation.started",
		metric.WithDescription("Total number of generations started"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	completedCounter, err := meter.Int64Counter(
		"oncomn.generation.completed",
		metric.WithDescription("Total number of generations that finished"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	failedCounter, err := meter.Int64Counter(
		"oncomn.generation.failed",
		metric.WithDescription("Total number of generations that failed"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	cancelledCounter, err := meter.Int64Counter(
		"oncomn.generation.cancelled",
		metric.WithDescription("Total number of generations cancelled by the user"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	durationHistogram, err := meter.Float64Histogram(
		"oncomn.generation.duration",
		metric.WithDescription("Duration of a generation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	activeGauge, err := meter.Int64UpDownCounter(
		"oncomn.generation.active",
		metric.WithDescription("Number of generations currently streaming"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	return &GenerationMetrics{
		startedCounter:    startedCounter,
		completedCounter:  completedCounter,
		failedCounter:     failedCounter,
		cancelledCounter:  cancelledCounter,
		durationHistogram: durationHistogram,
		activeGauge:       activeGauge,
	}, nil
}

// RecordStarted records a new generation
func (gm *GenerationMetrics) RecordStarted(ctx context.Context, model string) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	gm.startedCounter.Add(ctx, 1, attrs)
	gm.activeGauge.Add(ctx, 1, attrs)
}

// RecordCompleted records a generation that reached the done state
func (gm *GenerationMetrics) RecordCompleted(ctx context.Context, model string, duration time.Duration) {
	gm.completedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
	gm.finish(ctx, model, "completed", duration)
}

// RecordCancelled records a generation stopped by its consumer
func (gm *GenerationMetrics) RecordCancelled(ctx context.Context, model string, duration time.Duration) {
	gm.cancelledCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
	gm.finish(ctx, model, "cancelled", duration)
}

// RecordFailed records a failed generation; kind is the error category
func (gm *GenerationMetrics) RecordFailed(ctx context.Context, model string, kind string, duration time.Duration) {
	gm.failedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("error.type", kind),
		),
	)
	gm.finish(ctx, model, "failed", duration)
}

func (gm *GenerationMetrics) finish(ctx context.Context, model string, status string, duration time.Duration) {
	gm.durationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("status", status),
		),
	)
	gm.activeGauge.Add(ctx, -1, metric.WithAttributes(attribute.String("model", model)))
}

var _ ports.GenerationMetrics = (*GenerationMetrics)(nil)
