package observability

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the client's instruments:
//   - API requests: latency, traffic and errors per catalog operation
//   - Job polling: attempts by observed state, failed polls
//   - Job outcomes: submissions, active jobs and run duration
//   - Notifications: webhook deliveries and failures
type Metrics struct {
	meter metric.Meter

	APIRequestDuration metric.Float64Histogram
	APIRequestsTotal   metric.Int64Counter
	APIErrorsTotal     metric.Int64Counter
	APITransportErrors metric.Int64Counter

	JobsSubmitted     metric.Int64Counter
	JobsActive        metric.Int64UpDownCounter
	JobDuration       metric.Float64Histogram
	JobOutcomes       metric.Int64Counter
	PollAttempts      metric.Int64Counter
	PollFailuresTotal metric.Int64Counter

	NotifyDelivered metric.Int64Counter
	NotifyFailed    metric.Int64Counter
}

// NewMetrics creates all instruments and a handler serving them in Prometheus
// text format. Each call gets its own registry.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m := &Metrics{meter: provider.Meter("iriclient")}
	if err := m.init(); err != nil {
		return nil, nil, err
	}
	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

func (m *Metrics) init() error {
	var err error
	meter := m.meter

	if m.APIRequestDuration, err = meter.Float64Histogram(
		"iri_api_request_duration_seconds",
		metric.WithDescription("IRI API request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	); err != nil {
		return err
	}
	if m.APIRequestsTotal, err = meter.Int64Counter(
		"iri_api_requests_total",
		metric.WithDescription("Total number of IRI API requests that received a response"),
	); err != nil {
		return err
	}
	if m.APIErrorsTotal, err = meter.Int64Counter(
		"iri_api_errors_total",
		metric.WithDescription("Total number of IRI API responses with status 4xx or 5xx"),
	); err != nil {
		return err
	}
	if m.APITransportErrors, err = meter.Int64Counter(
		"iri_api_transport_errors_total",
		metric.WithDescription("Total number of IRI API requests that failed before a response"),
	); err != nil {
		return err
	}

	if m.JobsSubmitted, err = meter.Int64Counter(
		"iri_jobs_submitted_total",
		metric.WithDescription("Total number of jobs launched"),
	); err != nil {
		return err
	}
	if m.JobsActive, err = meter.Int64UpDownCounter(
		"iri_jobs_active",
		metric.WithDescription("Number of jobs currently being polled"),
	); err != nil {
		return err
	}
	if m.JobDuration, err = meter.Float64Histogram(
		"iri_job_duration_seconds",
		metric.WithDescription("Time from launch to final outcome in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(5, 10, 30, 60, 120, 300, 600, 1800, 3600),
	); err != nil {
		return err
	}
	if m.JobOutcomes, err = meter.Int64Counter(
		"iri_job_outcomes_total",
		metric.WithDescription("Total number of finished job runs by outcome"),
	); err != nil {
		return err
	}
	if m.PollAttempts, err = meter.Int64Counter(
		"iri_job_poll_attempts_total",
		metric.WithDescription("Total number of successful status polls by observed state"),
	); err != nil {
		return err
	}
	if m.PollFailuresTotal, err = meter.Int64Counter(
		"iri_job_poll_failures_total",
		metric.WithDescription("Total number of status polls that failed"),
	); err != nil {
		return err
	}

	if m.NotifyDelivered, err = meter.Int64Counter(
		"iri_notify_delivered_total",
		metric.WithDescription("Total job events delivered to the callback URL"),
	); err != nil {
		return err
	}
	if m.NotifyFailed, err = meter.Int64Counter(
		"iri_notify_failed_total",
		metric.WithDescription("Total job events that could not be delivered"),
	); err != nil {
		return err
	}
	return nil
}

// RecordAPIRequest records a request that received an HTTP response.
func (m *Metrics) RecordAPIRequest(ctx context.Context, operation, method string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(operationAttr(operation), methodAttr(method), statusAttr(statusCode))

	m.APIRequestDuration.Record(ctx, durationSeconds, attrs)
	m.APIRequestsTotal.Add(ctx, 1, attrs)
	if statusCode >= 400 {
		m.APIErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordAPITransportError records a request that failed before a response.
func (m *Metrics) RecordAPITransportError(ctx context.Context, operation string) {
	m.APITransportErrors.Add(ctx, 1, metric.WithAttributes(operationAttr(operation)))
}

// RecordJobSubmitted records a successful launch.
func (m *Metrics) RecordJobSubmitted(ctx context.Context) {
	m.JobsSubmitted.Add(ctx, 1)
	m.JobsActive.Add(ctx, 1)
}

// RecordPoll records one poll attempt. Failed polls carry no state.
func (m *Metrics) RecordPoll(ctx context.Context, state string, failed bool) {
	if failed {
		m.PollFailuresTotal.Add(ctx, 1)
		return
	}
	m.PollAttempts.Add(ctx, 1, metric.WithAttributes(stateAttr(state)))
}

// RecordJobFinished records the final outcome of a run. submitted reports
// whether the launch succeeded, so the active gauge is only decremented for
// jobs that were counted in.
func (m *Metrics) RecordJobFinished(ctx context.Context, outcome string, submitted bool, durationSeconds float64) {
	attrs := metric.WithAttributes(outcomeAttr(outcome))
	m.JobOutcomes.Add(ctx, 1, attrs)
	if submitted {
		m.JobsActive.Add(ctx, -1)
		m.JobDuration.Record(ctx, durationSeconds, attrs)
	}
}

// RecordNotifyDelivered records a delivered lifecycle event.
func (m *Metrics) RecordNotifyDelivered(ctx context.Context, eventType string) {
	m.NotifyDelivered.Add(ctx, 1, metric.WithAttributes(eventTypeAttr(eventType)))
}

// RecordNotifyFailed records an event that was given up on.
func (m *Metrics) RecordNotifyFailed(ctx context.Context, eventType string) {
	m.NotifyFailed.Add(ctx, 1, metric.WithAttributes(eventTypeAttr(eventType)))
}
