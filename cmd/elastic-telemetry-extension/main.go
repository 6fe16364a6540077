// Command elastic-telemetry-extension is a Lambda extension shipping function logs, invocation metrics
// and traces to Elastic with service.name set to the function name.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/essink"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/ingest"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/internal/config"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/telemetryapi"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/telemetryapi/elastic"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/telemetryapi/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const installPipelinesTimeout = 3 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	zl, err := newZapLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()
	log := zapr.NewLogger(zl)

	ctx := logr.NewContext(context.Background(), log)
	if err := run(ctx, cfg); err != nil {
		log.Error(err, "extension failed")
		_ = zl.Sync()
		os.Exit(1)
	}
}

// newZapLogger writes JSON lines to stderr, which Lambda forwards to CloudWatch.
// The debug level enables V(1) messages of the libraries.
func newZapLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Sampling = nil
	zcfg.EncoderConfig.TimeKey = "@timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level == "debug" {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	return zcfg.Build()
}

func run(ctx context.Context, cfg config.Config) error {
	log := logr.FromContextOrDiscard(ctx)

	table, err := cfg.Table()
	if err != nil {
		return err
	}
	client, err := essink.NewClient(cfg.Sink(), log.WithName("elasticsearch"))
	if err != nil {
		return err
	}

	sink, err := essink.New(client, cfg.Sink(), essink.WithLogger(log.WithName("sink")))
	if err != nil {
		return err
	}
	router := ingest.NewRouter(table, ingest.WithLogger(log.WithName("router")))
	if cfg.InstallPipelines {
		installCtx, cancel := context.WithTimeout(ctx, installPipelinesTimeout)
		// the router enriches documents itself, the pipelines serve other shippers
		if err := essink.InstallPipelines(installCtx, client, router.Table()); err != nil {
			log.Error(err, "could not install ingest pipelines")
		}
		cancel()
	}

	opts := []elastic.Option{
		elastic.WithLogger(log.WithName("elastic")),
		elastic.WithNamespace(cfg.Namespace),
		elastic.WithFlushOnReport(cfg.FlushOnReport),
	}
	spans, err := newSpanProcessor(ctx, cfg, log.WithName("otel"))
	if err != nil {
		return err
	}
	if spans != nil {
		opts = append(opts, elastic.WithSpanProcessor(spans))
	}
	proc := elastic.NewProcessor(ctx, sink, router, opts...)

	return telemetryapi.Run(
		ctx,
		proc,
		telemetryapi.WithLogger(log.WithName("telemetryapi")),
		telemetryapi.WithBufferingCfg(cfg.BufferingCfg()),
	)
}

// newSpanProcessor returns nil when traces are disabled.
func newSpanProcessor(ctx context.Context, cfg config.Config, log logr.Logger) (*otel.Processor, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.TracesExporter {
	case config.TracesExporterOTLP:
		exporter, err = otel.NewOTLPExporter(ctx, cfg.OTLPEndpoint, cfg.OTLPHeaders)
	case config.TracesExporterStdout:
		exporter, err = otel.NewStdoutExporter(os.Stdout)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not create %s span exporter: %w", cfg.TracesExporter, err)
	}

	return otel.NewProcessor(ctx, exporter, otel.WithLogger(log)), nil
}
