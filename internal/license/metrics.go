package license

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OpenTelemetry instruments for license operations.
// A nil *Metrics is safe to record against; metric errors never fail a
// license operation.
type Metrics struct {
	ActivationAttempts    metric.Int64Counter
	ActivationFailures    metric.Int64Counter
	VerificationAttempts  metric.Int64Counter
	VerificationFailures  metric.Int64Counter
	VerificationFallbacks metric.Int64Counter
	VerificationDuration  metric.Float64Histogram
	CacheHits             metric.Int64Counter
	CacheMisses           metric.Int64Counter
	LicensePurges         metric.Int64Counter
}

// NewMetrics registers the license instruments on the given meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.ActivationAttempts, err = meter.Int64Counter("license.activation.attempts",
		metric.WithDescription("Number of license activation attempts")); err != nil {
		return nil, err
	}
	if m.ActivationFailures, err = meter.Int64Counter("license.activation.failures",
		metric.WithDescription("Number of failed license activations")); err != nil {
		return nil, err
	}
	if m.VerificationAttempts, err = meter.Int64Counter("license.verification.attempts",
		metric.WithDescription("Number of license verification attempts")); err != nil {
		return nil, err
	}
	if m.VerificationFailures, err = meter.Int64Counter("license.verification.failures",
		metric.WithDescription("Number of failed license verifications")); err != nil {
		return nil, err
	}
	if m.VerificationFallbacks, err = meter.Int64Counter("license.verification.fallbacks",
		metric.WithDescription("Number of verifications served from the last known record")); err != nil {
		return nil, err
	}
	if m.VerificationDuration, err = meter.Float64Histogram("license.verification.duration",
		metric.WithDescription("License verification round-trip duration"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.CacheHits, err = meter.Int64Counter("license.cache.hits",
		metric.WithDescription("Number of license cache hits")); err != nil {
		return nil, err
	}
	if m.CacheMisses, err = meter.Int64Counter("license.cache.misses",
		metric.WithDescription("Number of license cache misses")); err != nil {
		return nil, err
	}
	if m.LicensePurges, err = meter.Int64Counter("license.purges",
		metric.WithDescription("Number of times local license state was removed")); err != nil {
		return nil, err
	}

	return m, nil
}

var noopMetrics = &Metrics{}

func (m *Manager) metricsOrNil() *Metrics {
	if m.metrics == nil {
		return noopMetrics
	}
	return m.metrics
}

func (m *Manager) count(ctx context.Context, counter metric.Int64Counter) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1)
}

func (m *Manager) observe(ctx context.Context, hist metric.Float64Histogram, d time.Duration) {
	if hist == nil {
		return
	}
	hist.Record(ctx, d.Seconds())
}
