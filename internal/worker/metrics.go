package worker

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/kiranshivaraju/medialens/internal/worker"

type instruments struct {
	claimed   metric.Int64Counter
	completed metric.Int64Counter
	retried   metric.Int64Counter
	failed    metric.Int64Counter
	reclaimed metric.Int64Counter
	duration  metric.Float64Histogram
}

// newInstruments registers the job instruments on the global MeterProvider.
// An instrument that fails to register is replaced by a no-op.
func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			slog.Warn("metric registration failed", "metric", name, "error", err)
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	duration, err := meter.Float64Histogram("medialens.job.duration",
		metric.WithDescription("Wall time from claim to finalize"),
		metric.WithUnit("s"))
	if err != nil {
		slog.Warn("metric registration failed", "metric", "medialens.job.duration", "error", err)
		duration, _ = fallback.Float64Histogram("medialens.job.duration")
	}

	return &instruments{
		claimed:   counter("medialens.jobs.claimed", "Jobs claimed from the queue"),
		completed: counter("medialens.jobs.completed", "Jobs finalized as completed"),
		retried:   counter("medialens.jobs.retried", "Jobs returned to pending after a retryable failure"),
		failed:    counter("medialens.jobs.failed", "Jobs finalized as failed"),
		reclaimed: counter("medialens.jobs.reclaimed", "Jobs recovered by the lease sweep"),
		duration:  duration,
	}
}
