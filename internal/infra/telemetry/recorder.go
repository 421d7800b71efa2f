package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder is the §4.13 instrument registry. It is passed by reference
// into C10/C11/C12 call sites rather than each component importing the
// global OTel API directly. Recorder is a concrete type, not an interface;
// tests leave it nil (or zero-valued), and every method degrades to a
// no-op.
type Recorder struct {
	duration           metric.Float64Histogram
	failures           metric.Int64Counter
	queueDepth         metric.Int64Gauge
	retries            metric.Int64Counter
	templateCacheHit   metric.Int64Counter
	templateCacheMiss  metric.Int64Counter
	conversionActive   metric.Int64Gauge
	conversionQueued   metric.Int64Gauge
	idempotencyCacheHit metric.Int64Counter
}

// NewRecorder builds a Recorder against otel.Meter("docgen"), i.e. the
// globally registered MeterProvider — a no-op recorder if Init was never
// called with a non-empty endpoint.
func NewRecorder() *Recorder {
	meter := otel.Meter(meterName)

	r := &Recorder{}
	var err error

	r.duration, err = meter.Float64Histogram("docgen_duration_ms",
		metric.WithDescription("end-to-end generation latency, per request"),
		metric.WithUnit("ms"))
	logInstrumentErr(err, "docgen_duration_ms")

	r.failures, err = meter.Int64Counter("docgen_failures_total",
		metric.WithDescription("terminal generation failures, by error kind"))
	logInstrumentErr(err, "docgen_failures_total")

	r.queueDepth, err = meter.Int64Gauge("queue_depth",
		metric.WithDescription("QUEUED tracking rows observed at the start of a poll cycle"))
	logInstrumentErr(err, "queue_depth")

	r.retries, err = meter.Int64Counter("retries_total",
		metric.WithDescription("worker task retries scheduled, by attempt number"))
	logInstrumentErr(err, "retries_total")

	r.templateCacheHit, err = meter.Int64Counter("template_cache_hit")
	logInstrumentErr(err, "template_cache_hit")

	r.templateCacheMiss, err = meter.Int64Counter("template_cache_miss")
	logInstrumentErr(err, "template_cache_miss")

	r.conversionActive, err = meter.Int64Gauge("conversion_pool_active",
		metric.WithDescription("conversion pool slots currently occupied"))
	logInstrumentErr(err, "conversion_pool_active")

	r.conversionQueued, err = meter.Int64Gauge("conversion_pool_queued",
		metric.WithDescription("conversion requests waiting for a pool slot"))
	logInstrumentErr(err, "conversion_pool_queued")

	r.idempotencyCacheHit, err = meter.Int64Counter("idempotency_cache_hit")
	logInstrumentErr(err, "idempotency_cache_hit")

	return r
}

func logInstrumentErr(err error, name string) {
	if err != nil {
		slog.Error("telemetry: failed to create instrument", slog.String("instrument", name), slog.String("error", err.Error()))
	}
}

// RecordDuration records one generation's wall-clock latency.
func (r *Recorder) RecordDuration(ctx context.Context, templateID, outputFormat, mode string, ms float64) {
	if r == nil || r.duration == nil {
		return
	}
	r.duration.Record(ctx, ms, metric.WithAttributes(
		attribute.String("templateId", templateID),
		attribute.String("outputFormat", outputFormat),
		attribute.String("mode", mode),
	))
}

// IncFailure records one terminal failure, classified by error kind and
// by which surface (interactive|batch) observed it.
func (r *Recorder) IncFailure(ctx context.Context, reason, mode string) {
	if r == nil || r.failures == nil {
		return
	}
	r.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
		attribute.String("mode", mode),
	))
}

// SetQueueDepth reports the QUEUED row count observed at poll time.
func (r *Recorder) SetQueueDepth(ctx context.Context, depth int64) {
	if r == nil || r.queueDepth == nil {
		return
	}
	r.queueDepth.Record(ctx, depth)
}

// IncRetry records one scheduled retry at the given attempt number.
func (r *Recorder) IncRetry(ctx context.Context, attempt int) {
	if r == nil || r.retries == nil {
		return
	}
	r.retries.Add(ctx, 1, metric.WithAttributes(attribute.Int("attempt", attempt)))
}

// IncTemplateCacheHit records one C3 cache hit.
func (r *Recorder) IncTemplateCacheHit(ctx context.Context) {
	if r == nil || r.templateCacheHit == nil {
		return
	}
	r.templateCacheHit.Add(ctx, 1)
}

// IncTemplateCacheMiss records one C3 cache miss.
func (r *Recorder) IncTemplateCacheMiss(ctx context.Context) {
	if r == nil || r.templateCacheMiss == nil {
		return
	}
	r.templateCacheMiss.Add(ctx, 1)
}

// ObservePoolGauges samples the C6 conversion pool's current occupancy.
func (r *Recorder) ObservePoolGauges(ctx context.Context, active, queued int64) {
	if r == nil {
		return
	}
	if r.conversionActive != nil {
		r.conversionActive.Record(ctx, active)
	}
	if r.conversionQueued != nil {
		r.conversionQueued.Record(ctx, queued)
	}
}

// IncIdempotencyCacheHit records one C9 guard hit.
func (r *Recorder) IncIdempotencyCacheHit(ctx context.Context) {
	if r == nil || r.idempotencyCacheHit == nil {
		return
	}
	r.idempotencyCacheHit.Add(ctx, 1)
}
