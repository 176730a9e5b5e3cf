package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"

	"github.com/earshotlabs/earshot/internal/config"
)

// telemetry owns the trace and metric providers, the listener's phrase
// counter, and the standalone Prometheus listener on telemetry.prometheus_bind.
type telemetry struct {
	phrasesRecognized metric.Int64Counter
	tracerProvider    *sdktrace.TracerProvider
	meterProvider     *sdkmetric.MeterProvider
	metricsServer     *http.Server
	log               *slog.Logger
}

func initTelemetry(cfg config.Config, logger *slog.Logger) (*telemetry, error) {
	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	t := &telemetry{log: logger}
	if err := t.initTracing(ctx, cfg.Telemetry, res); err != nil {
		return nil, err
	}
	if err := t.initMetrics(cfg.Telemetry, res); err != nil {
		return nil, err
	}

	counter, err := otel.Meter("earshot").Int64Counter(
		"earshot.phrases.recognized",
		metric.WithDescription("Recognized phrases delivered downstream."),
	)
	if err != nil {
		return nil, err
	}
	t.phrasesRecognized = counter
	return t, nil
}

func (t *telemetry) initTracing(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) error {
	var exporter sdktrace.SpanExporter
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		otlp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return err
		}
		exporter = otlp
		t.log.Info("exporting traces via otlp", slog.String("endpoint", endpoint))
	} else {
		stdout, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return err
		}
		exporter = stdout
		t.log.Info("exporting traces to stdout")
	}

	t.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(t.tracerProvider)
	return nil
}

func (t *telemetry) initMetrics(cfg config.TelemetryConfig, res *resource.Resource) error {
	exporter, err := prometheus.New()
	if err != nil {
		t.log.Warn("prometheus exporter unavailable, metrics disabled", slog.String("error", err.Error()))
		t.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		otel.SetMeterProvider(t.meterProvider)
		return nil
	}
	t.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(t.meterProvider)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	t.metricsServer = &http.Server{
		Addr:              cfg.PrometheusBind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := t.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.log.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	t.log.Info("serving prometheus metrics", slog.String("bind", cfg.PrometheusBind))
	return nil
}

// CountPhrase records one recognized phrase.
func (t *telemetry) CountPhrase(ctx context.Context) {
	t.phrasesRecognized.Add(ctx, 1)
}

// Shutdown stops the metrics listener and flushes both providers.
func (t *telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.metricsServer != nil {
		if err := t.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
