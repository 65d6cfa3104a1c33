package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the call-lifecycle instruments a running bridge exposes to
// Prometheus: active-call gauge, admission denials, barge-ins, utterances
// emitted by the pipeline, and collaborator call counts and latency.
type Metrics struct {
	provider *sdkmetric.MeterProvider

	activeCalls       metric.Int64UpDownCounter
	admissionDenied   metric.Int64Counter
	bargeIns          metric.Int64Counter
	utterancesTotal   metric.Int64Counter
	collaboratorCalls metric.Int64Counter
	collaboratorTime  metric.Float64Histogram
}

// NewMetrics registers a Prometheus exporter as the process's OpenTelemetry
// meter provider and defines the bridge's instruments. Mount Handler() at
// /metrics to let a Prometheus server scrape it. promOpts lets tests point
// the exporter at a throwaway prometheus.Registerer instead of the global
// default.
func NewMetrics(serviceName string, promOpts ...prometheus.Option) (*Metrics, error) {
	exporter, err := prometheus.New(promOpts...)
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	activeCalls, err := meter.Int64UpDownCounter("callbridge_active_calls",
		metric.WithDescription("Number of calls currently in progress"))
	if err != nil {
		return nil, err
	}
	admissionDenied, err := meter.Int64Counter("callbridge_admission_denied_total",
		metric.WithDescription("Total number of calls rejected by the rate limiter"))
	if err != nil {
		return nil, err
	}
	bargeIns, err := meter.Int64Counter("callbridge_barge_ins_total",
		metric.WithDescription("Total number of caller barge-ins during agent speech"))
	if err != nil {
		return nil, err
	}
	utterancesTotal, err := meter.Int64Counter("callbridge_utterances_total",
		metric.WithDescription("Total number of utterances emitted by the audio pipeline"),
	)
	if err != nil {
		return nil, err
	}
	collaboratorCalls, err := meter.Int64Counter("callbridge_collaborator_calls_total",
		metric.WithDescription("Total number of STT/LLM/TTS collaborator calls, by outcome"))
	if err != nil {
		return nil, err
	}
	collaboratorTime, err := meter.Float64Histogram("callbridge_collaborator_duration_seconds",
		metric.WithDescription("Collaborator round-trip latency in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		provider:          provider,
		activeCalls:       activeCalls,
		admissionDenied:   admissionDenied,
		bargeIns:          bargeIns,
		utterancesTotal:   utterancesTotal,
		collaboratorCalls: collaboratorCalls,
		collaboratorTime:  collaboratorTime,
	}, nil
}

func (m *Metrics) CallStarted(ctx context.Context)   { m.activeCalls.Add(ctx, 1) }
func (m *Metrics) CallEnded(ctx context.Context)     { m.activeCalls.Add(ctx, -1) }
func (m *Metrics) AdmissionDenied(ctx context.Context) {
	m.admissionDenied.Add(ctx, 1)
}

func (m *Metrics) BargeIn(ctx context.Context) { m.bargeIns.Add(ctx, 1) }

func (m *Metrics) UtteranceEmitted(ctx context.Context) { m.utterancesTotal.Add(ctx, 1) }

// CollaboratorCall records one STT/LLM/TTS round trip: kind is "stt", "llm",
// or "tts"; ok is false for any error, including rate-limit denials.
func (m *Metrics) CollaboratorCall(ctx context.Context, kind string, ok bool, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("ok", ok),
	)
	m.collaboratorCalls.Add(ctx, 1, attrs)
	m.collaboratorTime.Record(ctx, seconds, attrs)
}

// Shutdown flushes and stops the meter provider. Call it on process exit.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// Handler returns the HTTP handler a Prometheus server scrapes. It serves
// the global default Prometheus registry, which is where NewMetrics
// registers the exporter unless promOpts supplied another registerer;
// instruments exported into such a registerer do not appear here.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
