package otel

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewOTLPExporter creates an OTLP/HTTP span exporter.
// endpoint is a base URL such as https://apm.example.com:443, the /v1/traces path is appended.
// headers uses the OTEL_EXPORTER_OTLP_HEADERS format, for example "Authorization=Bearer%20secret".
// An empty endpoint leaves the exporter to the OTEL_EXPORTER_OTLP_* environment variables.
func NewOTLPExporter(ctx context.Context, endpoint, headers string) (sdktrace.SpanExporter, error) {
	var opts []otlptracehttp.Option
	if endpoint != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("could not parse otlp endpoint: %w", err)
		}
		u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/traces"
		opts = append(opts, otlptracehttp.WithEndpointURL(u.String()))
	}
	if headers != "" {
		h, err := ParseHeaders(headers)
		if err != nil {
			return nil, err
		}
		opts = append(opts, otlptracehttp.WithHeaders(h))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create otlp exporter: %w", err)
	}

	return exporter, nil
}

// NewStdoutExporter creates an exporter writing spans to w as JSON.
func NewStdoutExporter(w io.Writer) (sdktrace.SpanExporter, error) {
	return stdouttrace.New(stdouttrace.WithWriter(w))
}

// ParseHeaders parses comma separated key=value pairs with URL encoded values.
// https://opentelemetry.io/docs/specs/otel/protocol/exporter/#specifying-headers-via-environment-variables
func ParseHeaders(s string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed otlp header %q: want key=value", pair)
		}
		value, err := url.PathUnescape(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("malformed otlp header %q: %w", key, err)
		}
		headers[key] = value
	}

	return headers, nil
}
