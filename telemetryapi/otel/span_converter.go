package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	lambdaext "github.com/zakharovvi/aws-lambda-elastic-telemetry"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/extapi"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/telemetryapi"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/telemetryapi/otel/internal"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of produced spans.
const TracerName = "github.com/zakharovvi/aws-lambda-elastic-telemetry/telemetryapi/otel"

var ErrOutOfOrder = errors.New("triplet is not consistent: events were received out of order")

// SpanConverter creates OpenTelemetry spans from Telemetry API events.
// SpanConverter is low-level, consider using Processor instead.
type SpanConverter struct {
	tracer       trace.Tracer
	gen          *internal.IDGenerator
	log          logr.Logger
	functionName string
}

type Option interface {
	apply(*options)
}

type options struct {
	log logr.Logger
}

type loggerOption struct {
	log logr.Logger
}

func (o loggerOption) apply(opts *options) {
	opts.log = o.log
}

func WithLogger(log logr.Logger) Option {
	return loggerOption{log}
}

// NewSpanConverter creates SpanConverter. The resource describes the function from registerResp and
// the Lambda environment. service.name is the function name, matching the service.name of log and metric documents.
func NewSpanConverter(ctx context.Context, registerResp *extapi.RegisterResponse, opts ...Option) *SpanConverter {
	options := options{
		log: logr.FromContextOrDiscard(ctx),
	}
	for _, o := range opts {
		o.apply(&options)
	}

	otel.SetLogger(options.log)
	gen := &internal.IDGenerator{
		Gen: xray.NewIDGenerator(),
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithIDGenerator(gen),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(registerResp.FunctionName),
			semconv.CloudProviderAWS,
			semconv.CloudPlatformAWSLambda,
			semconv.CloudAccountID(registerResp.AccountID),
			semconv.CloudRegion(extapi.EnvAWSRegion()),
			semconv.FaaSName(registerResp.FunctionName),
			semconv.FaaSVersion(string(registerResp.FunctionVersion)),
			semconv.FaaSMaxMemory(extapi.EnvAWSLambdaFunctionMemorySizeMB()),
		)),
	)

	return &SpanConverter{
		tracer:       tp.Tracer(TracerName),
		gen:          gen,
		log:          options.log,
		functionName: registerResp.FunctionName,
	}
}

// EventTriplet is the chain of start, runtimeDone and report events of one init phase or invocation.
type EventTriplet struct {
	Type        telemetryapi.Phase
	Start       telemetryapi.Event
	RuntimeDone telemetryapi.Event
	Report      telemetryapi.Event
	// PrevSC is the span of the previous triplet. The new span links to it.
	PrevSC trace.SpanContext
}

// IsValid checks that the events match the phase and were received in order.
func (t EventTriplet) IsValid() bool {
	var want [3]telemetryapi.Type
	switch t.Type {
	case telemetryapi.PhaseInit:
		want = [3]telemetryapi.Type{
			telemetryapi.TypePlatformInitStart,
			telemetryapi.TypePlatformInitRuntimeDone,
			telemetryapi.TypePlatformInitReport,
		}
	case telemetryapi.PhaseInvoke:
		want = [3]telemetryapi.Type{
			telemetryapi.TypePlatformStart,
			telemetryapi.TypePlatformRuntimeDone,
			telemetryapi.TypePlatformReport,
		}
	default:
		return false
	}

	return [3]telemetryapi.Type{t.Start.Type, t.RuntimeDone.Type, t.Report.Type} == want
}

// ConvertIntoSpans creates the phase span and its response spans from the triplet.
// The phase span is the last one in the returned slice and its context is returned for linking the next triplet.
// https://docs.aws.amazon.com/lambda/latest/dg/telemetry-otel-spans.html
func (sc *SpanConverter) ConvertIntoSpans(triplet EventTriplet) ([]sdktrace.ReadOnlySpan, trace.SpanContext, error) {
	if !triplet.IsValid() {
		return nil, trace.SpanContext{}, ErrOutOfOrder
	}

	parentCtx := sc.parentContext(triplet)

	var links []trace.Link
	if triplet.PrevSC.HasSpanID() {
		sc.log.V(1).Info("link previous trace", "prevTraceID", triplet.PrevSC.TraceID(), "prevSpanID", triplet.PrevSC.SpanID())
		links = append(links, trace.Link{
			SpanContext: triplet.PrevSC,
			Attributes:  []attribute.KeyValue{attribute.String("aws.lambda.link_type", "previous-trace")},
		})
	}

	status, err := getStatus(triplet.RuntimeDone)
	if err != nil {
		return nil, trace.SpanContext{}, err
	}

	spanName := fmt.Sprintf("%s/%s", sc.functionName, triplet.Type)
	curCtx, span := sc.tracer.Start(
		parentCtx,
		spanName,
		trace.WithTimestamp(triplet.Start.Time),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(getAttributes(triplet)...),
		trace.WithLinks(links...),
	)
	span.SetStatus(status.Code, status.Description)
	sc.log.V(1).Info(
		"created span",
		"name", spanName,
		"traceID", span.SpanContext().TraceID(),
		"spanID", span.SpanContext().SpanID(),
	)

	var spans []sdktrace.ReadOnlySpan
	if record, ok := triplet.RuntimeDone.Record.(telemetryapi.RecordPlatformRuntimeDone); ok {
		spans, err = sc.createChildSpans(curCtx, record.Spans)
		if err != nil {
			return nil, trace.SpanContext{}, err
		}
	}

	span.End(trace.WithTimestamp(triplet.Report.Time))
	roSpan, ok := span.(sdktrace.ReadOnlySpan)
	if !ok {
		return nil, trace.SpanContext{}, errors.New("could not cast span to ReadOnlySpan")
	}

	return append(spans, roSpan), trace.SpanContextFromContext(curCtx), nil
}

// parentContext extracts the X-Ray parent of an invocation and pins the span ID Lambda assigned to it.
func (sc *SpanConverter) parentContext(triplet EventTriplet) context.Context {
	record, ok := triplet.Start.Record.(telemetryapi.RecordPlatformStart)
	if !ok || record.Tracing.Type != lambdaext.TracingTypeAWSXRay {
		return context.Background()
	}

	carrier := propagation.MapCarrier{
		string(record.Tracing.Type): string(record.Tracing.Value),
	}
	parentCtx := xray.Propagator{}.Extract(context.Background(), carrier)
	traceID := trace.SpanContextFromContext(parentCtx).TraceID()
	spanID, err := trace.SpanIDFromHex(record.Tracing.SpanID)
	if err != nil {
		sc.log.V(1).Info("invocation span id is missing, generating a new one", "traceID", traceID)

		return parentCtx
	}
	sc.log.V(1).Info("found xray tracing context", "traceID", traceID, "spanID", spanID)
	sc.gen.Pin(traceID, spanID)

	return parentCtx
}

func (sc *SpanConverter) createChildSpans(ctx context.Context, recordSpans []telemetryapi.Span) ([]sdktrace.ReadOnlySpan, error) {
	spans := make([]sdktrace.ReadOnlySpan, 0, len(recordSpans))
	for _, recordSpan := range recordSpans {
		spanName := fmt.Sprintf("%s/%s", sc.functionName, recordSpan.Name)
		_, childSpan := sc.tracer.Start(
			ctx,
			spanName,
			trace.WithTimestamp(recordSpan.Start),
			trace.WithSpanKind(trace.SpanKindServer),
		)
		childSpan.End(trace.WithTimestamp(recordSpan.Start.Add(time.Duration(recordSpan.Duration))))

		span, ok := childSpan.(sdktrace.ReadOnlySpan)
		if !ok {
			return nil, errors.New("could not cast child span to ReadOnlySpan")
		}
		spans = append(spans, span)
	}

	return spans, nil
}

func getAttributes(triplet EventTriplet) []attribute.KeyValue {
	var attrs []attribute.KeyValue

	switch record := triplet.Start.Record.(type) {
	case telemetryapi.RecordPlatformInitStart:
		attrs = append(attrs, semconv.FaaSColdstart(record.InitType == lambdaext.InitTypeOnDemand))
		if record.RuntimeVersion != "" {
			attrs = append(attrs, attribute.String("aws.lambda.runtime_version", record.RuntimeVersion))
		}
		if record.RuntimeVersionARN != "" {
			attrs = append(attrs, attribute.String("aws.lambda.runtime_version_arn", record.RuntimeVersionARN))
		}
	case telemetryapi.RecordPlatformStart:
		attrs = append(attrs, semconv.FaaSInvocationID(string(record.RequestID)))
	}

	switch record := triplet.Report.Record.(type) {
	case telemetryapi.RecordPlatformInitReport:
		attrs = append(attrs, attribute.Float64("aws.lambda.init_duration_ms", record.Metrics.Duration.Milliseconds()))
	case telemetryapi.RecordPlatformReport:
		if rd, ok := triplet.RuntimeDone.Record.(telemetryapi.RecordPlatformRuntimeDone); ok {
			attrs = append(attrs, attribute.Int("aws.lambda.produced_bytes", rd.Metrics.ProducedBytes))
		}
		attrs = append(
			attrs,
			attribute.Int("aws.lambda.memory_size_mb", record.Metrics.MemorySizeMB),
			attribute.Int("aws.lambda.max_memory_used_mb", record.Metrics.MaxMemoryUsedMB),
			attribute.Int64("aws.lambda.billed_duration_ms", time.Duration(record.Metrics.BilledDuration).Milliseconds()),
		)
		if record.Metrics.RestoreDuration != 0 {
			attrs = append(attrs, attribute.Int64("aws.lambda.restore_duration_ms", time.Duration(record.Metrics.RestoreDuration).Milliseconds()))
		}
	}

	return attrs
}

func getStatus(event telemetryapi.Event) (sdktrace.Status, error) {
	var eventStatus telemetryapi.Status
	status := sdktrace.Status{}

	switch record := event.Record.(type) {
	case telemetryapi.RecordPlatformInitRuntimeDone:
		eventStatus = record.Status
		status.Description = record.ErrorType
	case telemetryapi.RecordPlatformRuntimeDone:
		eventStatus = record.Status
		status.Description = record.ErrorType
	default:
		return status, fmt.Errorf("unexpected record type %T of the runtimeDone event", event.Record)
	}

	if eventStatus == telemetryapi.StatusSuccess {
		status.Code = codes.Ok
		status.Description = ""
	} else {
		status.Code = codes.Error
	}

	return status, nil
}
