package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/essink"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/extapi"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/ingest"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"ELASTIC_CLOUD_ID", "TRACES_EXPORTER", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(key, "")
	}
	t.Setenv("ELASTIC_ENDPOINTS", "https://es-1:9200,https://es-2:9200")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, []string{"https://es-1:9200", "https://es-2:9200"}, cfg.Endpoints)
	require.Equal(t, config.TracesExporterNone, cfg.TracesExporter)
	require.Equal(t, "info", cfg.LogLevel)
	require.True(t, cfg.FlushOnReport)
	require.False(t, cfg.InstallPipelines)
	require.Equal(t, &extapi.TelemetryBufferingCfg{MaxItems: 1000, MaxBytes: 262144, TimeoutMS: 1000}, cfg.BufferingCfg())

	want := essink.DefaultConfig()
	want.Endpoints = []string{"https://es-1:9200", "https://es-2:9200"}
	require.Equal(t, want, cfg.Sink())

	table, err := cfg.Table()
	require.NoError(t, err)
	require.Len(t, table, len(ingest.DefaultTable()))
}

func TestLoad_Overrides(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte(`
rules:
  - kind: metric
    pipeline: metrics-aws.lambda@custom
    set:
      field: service.name
      copy_from: aws.dimensions.FunctionName
`), 0o600))

	t.Setenv("ELASTIC_CLOUD_ID", "deployment:abc")
	t.Setenv("ELASTIC_API_KEY", "a2V5")
	t.Setenv("ELASTIC_HEADERS", "X-Tenant:orders")
	t.Setenv("ELASTIC_FLUSH_INTERVAL", "250ms")
	t.Setenv("ELASTIC_RETRY_ENABLED", "false")
	t.Setenv("ELASTIC_RULES_FILE", rules)
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://apm:443")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "Authorization=Bearer%20secret")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, config.TracesExporterOTLP, cfg.TracesExporter)
	require.Equal(t, "https://apm:443", cfg.OTLPEndpoint)
	require.Equal(t, "Authorization=Bearer%20secret", cfg.OTLPHeaders)
	require.Equal(t, "debug", cfg.LogLevel)

	sink := cfg.Sink()
	require.Empty(t, sink.Endpoints)
	require.Equal(t, "deployment:abc", sink.CloudID)
	require.Equal(t, "a2V5", sink.APIKey)
	require.Equal(t, map[string]string{"X-Tenant": "orders"}, sink.Headers)
	require.Equal(t, 250*time.Millisecond, sink.FlushInterval)
	require.False(t, sink.Retry.Enabled)

	table, err := cfg.Table()
	require.NoError(t, err)
	require.Len(t, table, 1)
	require.Equal(t, ingest.KindMetric, table[0].Kind)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name              string
		env               map[string]string
		wantErrorContains string
	}{
		{
			name:              "no elasticsearch",
			env:               map[string]string{},
			wantErrorContains: "invalid elasticsearch configuration",
		},
		{
			name:              "malformed duration",
			env:               map[string]string{"ELASTIC_ENDPOINTS": "http://es:9200", "ELASTIC_FLUSH_INTERVAL": "soon"},
			wantErrorContains: "could not read configuration",
		},
		{
			name:              "unknown exporter",
			env:               map[string]string{"ELASTIC_ENDPOINTS": "http://es:9200", "TRACES_EXPORTER": "zipkin"},
			wantErrorContains: "unknown traces exporter",
		},
		{
			name:              "unknown log level",
			env:               map[string]string{"ELASTIC_ENDPOINTS": "http://es:9200", "LOG_LEVEL": "trace"},
			wantErrorContains: "unknown log level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"ELASTIC_ENDPOINTS", "ELASTIC_CLOUD_ID", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load()
			require.ErrorContains(t, err, tt.wantErrorContains)
		})
	}
}
