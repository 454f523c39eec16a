package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/tugas/internal/config"
	"github.com/spf13/viper"
)

const (
	defaultSamplingRatio = 0.1
	defaultSlowQuery     = 200 * time.Millisecond
)

// Config holds the logging, tracing and query-logging settings shared by
// every binary.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	DBLogLevel           string
	DBSlowQueryThreshold time.Duration
}

// LoadConfig reads the OTEL_*, LOG_* and DB_* environment, falling back to
// the application config for identity and exporter endpoint.
func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DEPLOYMENT_ENV", cfg.Environment)
	v.SetDefault("SERVICE_VERSION", cfg.AppVersion)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_ENABLED", true)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", defaultSamplingRatio)
	v.SetDefault("DB_LOG_LEVEL", "warn")
	v.SetDefault("DB_SLOW_QUERY_THRESHOLD", defaultSlowQuery)

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "tugas"
	}

	protocol := lower(v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL"))
	if traces := lower(v.GetString("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}

	ratio := v.GetFloat64("OTEL_SAMPLING_RATIO")
	if ratio < 0 || ratio > 1 {
		ratio = defaultSamplingRatio
	}
	slow := v.GetDuration("DB_SLOW_QUERY_THRESHOLD")
	if slow <= 0 {
		slow = defaultSlowQuery
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(v.GetString("DEPLOYMENT_ENV")),
		Version:              strings.TrimSpace(v.GetString("SERVICE_VERSION")),
		LogLevel:             lower(v.GetString("LOG_LEVEL")),
		LogFormat:            lower(v.GetString("LOG_FORMAT")),
		OtelEnabled:          v.GetBool("OTEL_ENABLED"),
		OtelExporterEndpoint: strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    ratio,
		DBLogLevel:           lower(v.GetString("DB_LOG_LEVEL")),
		DBSlowQueryThreshold: slow,
	}
}

// Debug is true for debug logging or a development environment.
func (c Config) Debug() bool {
	if lower(c.LogLevel) == "debug" {
		return true
	}
	switch lower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func lower(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
