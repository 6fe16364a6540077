// Package config loads the extension configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/essink"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/extapi"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/ingest"
)

// Traces exporters.
const (
	TracesExporterAuto   = ""
	TracesExporterOTLP   = "otlp"
	TracesExporterStdout = "stdout"
	TracesExporterNone   = "none"
)

// Config holds the extension settings. Field tags name the environment variables.
type Config struct {
	Endpoints []string          `envconfig:"ELASTIC_ENDPOINTS"`
	CloudID   string            `envconfig:"ELASTIC_CLOUD_ID"`
	Username  string            `envconfig:"ELASTIC_USERNAME"`
	Password  string            `envconfig:"ELASTIC_PASSWORD"`
	APIKey    string            `envconfig:"ELASTIC_API_KEY"`
	Headers   map[string]string `envconfig:"ELASTIC_HEADERS"`
	Index     string            `envconfig:"ELASTIC_INDEX" default:"lambda-telemetry"`
	Namespace string            `envconfig:"ELASTIC_NAMESPACE" default:"default"`

	NumWorkers    int           `envconfig:"ELASTIC_NUM_WORKERS" default:"1"`
	FlushBytes    int           `envconfig:"ELASTIC_FLUSH_BYTES" default:"1048576"`
	FlushInterval time.Duration `envconfig:"ELASTIC_FLUSH_INTERVAL" default:"1s"`
	FlushOnReport bool          `envconfig:"ELASTIC_FLUSH_ON_REPORT" default:"true"`

	RetryEnabled         bool          `envconfig:"ELASTIC_RETRY_ENABLED" default:"true"`
	RetryMaxRequests     int           `envconfig:"ELASTIC_RETRY_MAX_REQUESTS" default:"3"`
	RetryInitialInterval time.Duration `envconfig:"ELASTIC_RETRY_INITIAL_INTERVAL" default:"100ms"`
	RetryMaxInterval     time.Duration `envconfig:"ELASTIC_RETRY_MAX_INTERVAL" default:"1s"`

	// InstallPipelines puts the ingest pipelines of the rule table during Init.
	InstallPipelines bool `envconfig:"ELASTIC_INSTALL_PIPELINES" default:"false"`
	// RulesFile is a YAML rule table replacing ingest.DefaultTable.
	RulesFile string `envconfig:"ELASTIC_RULES_FILE"`

	TracesExporter string `envconfig:"TRACES_EXPORTER"`
	OTLPEndpoint   string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPHeaders    string `envconfig:"OTEL_EXPORTER_OTLP_HEADERS"`

	TelemetryMaxItems  uint32 `envconfig:"TELEMETRY_MAX_ITEMS" default:"1000"`
	TelemetryMaxBytes  uint32 `envconfig:"TELEMETRY_MAX_BYTES" default:"262144"`
	TelemetryTimeoutMS uint32 `envconfig:"TELEMETRY_TIMEOUT_MS" default:"1000"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads and validates the configuration.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("could not read configuration: %w", err)
	}
	if cfg.TracesExporter == TracesExporterAuto {
		cfg.TracesExporter = TracesExporterNone
		if cfg.OTLPEndpoint != "" {
			cfg.TracesExporter = TracesExporterOTLP
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (cfg Config) Validate() error {
	switch cfg.TracesExporter {
	case TracesExporterOTLP, TracesExporterStdout, TracesExporterNone:
	default:
		return fmt.Errorf("unknown traces exporter %q", cfg.TracesExporter)
	}
	switch cfg.LogLevel {
	case "debug", "info":
	default:
		return fmt.Errorf("unknown log level %q, want debug or info", cfg.LogLevel)
	}
	if err := cfg.Sink().Validate(); err != nil {
		return fmt.Errorf("invalid elasticsearch configuration: %w", err)
	}

	return nil
}

// Sink returns the Elasticsearch settings.
func (cfg Config) Sink() essink.Config {
	sink := essink.DefaultConfig()
	sink.Endpoints = cfg.Endpoints
	sink.CloudID = cfg.CloudID
	sink.Username = cfg.Username
	sink.Password = cfg.Password
	sink.APIKey = cfg.APIKey
	sink.Headers = cfg.Headers
	sink.Index = cfg.Index
	sink.NumWorkers = cfg.NumWorkers
	sink.FlushBytes = cfg.FlushBytes
	sink.FlushInterval = cfg.FlushInterval
	sink.Retry.Enabled = cfg.RetryEnabled
	sink.Retry.MaxRequests = cfg.RetryMaxRequests
	sink.Retry.InitialInterval = cfg.RetryInitialInterval
	sink.Retry.MaxInterval = cfg.RetryMaxInterval

	return sink
}

// Table returns the rule table of RulesFile, or ingest.DefaultTable when it is not set.
func (cfg Config) Table() (ingest.Table, error) {
	if cfg.RulesFile == "" {
		return ingest.DefaultTable(), nil
	}

	return ingest.LoadTableFile(cfg.RulesFile)
}

// BufferingCfg returns the Telemetry API buffering settings.
func (cfg Config) BufferingCfg() *extapi.TelemetryBufferingCfg {
	return &extapi.TelemetryBufferingCfg{
		MaxItems:  cfg.TelemetryMaxItems,
		MaxBytes:  cfg.TelemetryMaxBytes,
		TimeoutMS: cfg.TelemetryTimeoutMS,
	}
}
