// Package telemetry wires OpenTelemetry metrics to a Prometheus exporter.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	contribruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the instruments recorded by the HTTP middleware and the
// ingestion pipeline.
type Metrics struct {
	Requests        metric.Int64Counter
	ErrorCount      metric.Int64Counter
	RequestDuration metric.Float64Histogram
	IngestRuns      metric.Int64Counter
	ProbesTotal     metric.Int64Counter

	registry *prometheus.Registry
}

// InitMetrics sets up a meter provider backed by a dedicated Prometheus
// registry and returns a shutdown function alongside the instruments.
func InitMetrics(version string) (func(context.Context) error, *Metrics, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	if err := contribruntime.Start(contribruntime.WithMeterProvider(provider)); err != nil {
		return nil, nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	meter := provider.Meter("github.com/ragmap-dev/ragmap",
		metric.WithInstrumentationVersion(version),
	)

	requests, err := meter.Int64Counter("ragmap_http_requests",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create requests counter: %w", err)
	}

	errorCount, err := meter.Int64Counter("ragmap_http_errors",
		metric.WithDescription("Total number of HTTP responses with status >= 400"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create errors counter: %w", err)
	}

	requestDuration, err := meter.Float64Histogram("ragmap_http_request_duration",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	ingestRuns, err := meter.Int64Counter("ragmap_ingest_runs",
		metric.WithDescription("Total number of ingestion runs by mode and outcome"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create ingest runs counter: %w", err)
	}

	probesTotal, err := meter.Int64Counter("ragmap_reachability_probes",
		metric.WithDescription("Total number of reachability probes by outcome"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create probes counter: %w", err)
	}

	metrics := &Metrics{
		Requests:        requests,
		ErrorCount:      errorCount,
		RequestDuration: requestDuration,
		IngestRuns:      ingestRuns,
		ProbesTotal:     probesTotal,
		registry:        registry,
	}

	return provider.Shutdown, metrics, nil
}

// PrometheusHandler exposes the metrics registry in Prometheus text format.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
