// Package otel converts Telemetry API events into OpenTelemetry trace spans.
// https://docs.aws.amazon.com/lambda/latest/dg/telemetry-otel-spans.html
//
// Spans carry service.name set to the function name, the same value the ingest rules
// derive for logs and metrics, so all three signals correlate in Elastic APM.
// NewOTLPExporter sends them to an OTLP/HTTP endpoint such as the Elastic APM server.
package otel
