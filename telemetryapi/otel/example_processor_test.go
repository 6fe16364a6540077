package otel_test

import (
	"context"
	"log"
	"os"

	"github.com/zakharovvi/aws-lambda-elastic-telemetry/telemetryapi"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/telemetryapi/otel"
)

func ExampleProcessor() {
	ctx := context.Background()
	exporter, err := otel.NewOTLPExporter(ctx, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	if err != nil {
		log.Panic(err)
	}

	processor := otel.NewProcessor(ctx, exporter)
	if err := telemetryapi.Run(ctx, processor); err != nil {
		log.Panic(err)
	}
}
