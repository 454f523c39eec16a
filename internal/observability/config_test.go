package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/tugas/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"LOG_LEVEL", "LOG_FORMAT", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_PROTOCOL", "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "OTEL_SAMPLING_RATIO", "DB_SLOW_QUERY_THRESHOLD", "DEPLOYMENT_ENV"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig(config.Config{Environment: "production", AppVersion: "1.2.3", OTLPEndpoint: "collector:4317"})
	if cfg.ServiceName != "tugas" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.Environment != "production" || cfg.Version != "1.2.3" {
		t.Fatalf("expected app identity, got %q %q", cfg.Environment, cfg.Version)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected log defaults %q %q", cfg.LogLevel, cfg.LogFormat)
	}
	if !cfg.OtelEnabled || cfg.OtelExporterProtocol != "grpc" || cfg.OtelExporterEndpoint != "collector:4317" {
		t.Fatalf("unexpected otel defaults %+v", cfg)
	}
	if cfg.OtelSamplingRatio != 0.1 || cfg.DBSlowQueryThreshold != 200*time.Millisecond {
		t.Fatalf("unexpected sampling or slow query defaults %+v", cfg)
	}
	if cfg.Debug() {
		t.Fatal("expected production info logging to be non-debug")
	}
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP/protobuf")
	t.Setenv("OTEL_SAMPLING_RATIO", "4")
	t.Setenv("DB_SLOW_QUERY_THRESHOLD", "1s")

	cfg := LoadConfig(config.Config{AppName: "verifier"})
	if cfg.ServiceName != "verifier" {
		t.Fatalf("expected app name, got %q", cfg.ServiceName)
	}
	if cfg.LogLevel != "debug" || !cfg.Debug() {
		t.Fatalf("expected debug logging, got %q", cfg.LogLevel)
	}
	if cfg.OtelEnabled {
		t.Fatal("expected otel disabled")
	}
	if cfg.OtelExporterProtocol != "http/protobuf" {
		t.Fatalf("expected traces protocol override, got %q", cfg.OtelExporterProtocol)
	}
	if cfg.OtelSamplingRatio != 0.1 {
		t.Fatalf("expected out of range ratio to fall back, got %v", cfg.OtelSamplingRatio)
	}
	if cfg.DBSlowQueryThreshold != time.Second {
		t.Fatalf("expected 1s slow threshold, got %v", cfg.DBSlowQueryThreshold)
	}
}
