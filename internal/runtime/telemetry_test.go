package runtime

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/earshotlabs/earshot/internal/config"
)

func TestInitTelemetryServesMetricsOnConfiguredBind(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.PrometheusBind = "127.0.0.1:0"
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

	tel, err := initTelemetry(cfg, logger)
	if err != nil {
		t.Fatalf("init telemetry: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	if tel.phrasesRecognized == nil {
		t.Fatal("expected phrase counter to be created")
	}
	if tel.metricsServer == nil {
		t.Fatal("expected metrics server on telemetry.prometheus_bind")
	}
	if tel.metricsServer.Addr != "127.0.0.1:0" {
		t.Fatalf("expected metrics server bound to configured address, got %s", tel.metricsServer.Addr)
	}

	// Counting must not panic even before any scrape.
	tel.CountPhrase(context.Background())
}
