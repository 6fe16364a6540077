package otel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/telemetryapi"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/telemetryapi/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestEventTriplet_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		triplet otel.EventTriplet
		want    bool
	}{
		{
			"init",
			otel.EventTriplet{
				Type:        telemetryapi.PhaseInit,
				Start:       telemetryapi.Event{Type: telemetryapi.TypePlatformInitStart},
				RuntimeDone: telemetryapi.Event{Type: telemetryapi.TypePlatformInitRuntimeDone},
				Report:      telemetryapi.Event{Type: telemetryapi.TypePlatformInitReport},
			},
			true,
		},
		{
			"invoke",
			otel.EventTriplet{
				Type:        telemetryapi.PhaseInvoke,
				Start:       telemetryapi.Event{Type: telemetryapi.TypePlatformStart},
				RuntimeDone: telemetryapi.Event{Type: telemetryapi.TypePlatformRuntimeDone},
				Report:      telemetryapi.Event{Type: telemetryapi.TypePlatformReport},
			},
			true,
		},
		{
			"unknown type",
			otel.EventTriplet{
				Type:        "unknown type",
				Start:       telemetryapi.Event{Type: telemetryapi.TypePlatformInitStart},
				RuntimeDone: telemetryapi.Event{Type: telemetryapi.TypePlatformInitRuntimeDone},
				Report:      telemetryapi.Event{Type: telemetryapi.TypePlatformInitReport},
			},
			false,
		},
		{
			"mismatched events",
			otel.EventTriplet{
				Type:        telemetryapi.PhaseInit,
				Start:       telemetryapi.Event{Type: telemetryapi.TypePlatformInitStart},
				RuntimeDone: telemetryapi.Event{Type: telemetryapi.TypePlatformInitRuntimeDone},
				Report:      telemetryapi.Event{Type: telemetryapi.TypePlatformReport},
			},
			false,
		},
		{
			"missing start",
			otel.EventTriplet{
				Type:        telemetryapi.PhaseInvoke,
				RuntimeDone: telemetryapi.Event{Type: telemetryapi.TypePlatformRuntimeDone},
				Report:      telemetryapi.Event{Type: telemetryapi.TypePlatformReport},
			},
			false,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.triplet.IsValid())
		})
	}
}

func TestSpanConverter_ConvertIntoSpans_Invoke(t *testing.T) {
	t.Parallel()

	sc := otel.NewSpanConverter(context.Background(), registerResp)
	triplet := getInvokeTriplet()

	spans, spanContext, err := sc.ConvertIntoSpans(triplet)
	require.NoError(t, err)
	stubs := tracetest.SpanStubsFromReadOnlySpans(spans)
	require.Len(t, stubs, 3)

	latency, duration, invoke := stubs[0], stubs[1], stubs[2]
	require.Equal(t, "OrderService/responseLatency", latency.Name)
	require.Equal(t, "OrderService/responseDuration", duration.Name)
	require.Equal(t, "OrderService/invoke", invoke.Name)

	wantTraceID, err := trace.TraceIDFromHex("637e16f01fbed7cb2ea0e5d7537a6258")
	require.NoError(t, err)
	wantSpanID, err := trace.SpanIDFromHex("7cd833ab5300d004")
	require.NoError(t, err)
	wantParentID, err := trace.SpanIDFromHex("5ac36eec7a279fc5")
	require.NoError(t, err)

	require.Equal(t, invoke.SpanContext, spanContext)
	require.Equal(t, wantTraceID, invoke.SpanContext.TraceID())
	require.Equal(t, wantSpanID, invoke.SpanContext.SpanID())
	require.Equal(t, wantParentID, invoke.Parent.SpanID())
	require.True(t, invoke.Parent.IsRemote())
	require.Equal(t, trace.SpanKindServer, invoke.SpanKind)
	require.True(t, at(86).Equal(invoke.StartTime))
	require.True(t, at(258).Equal(invoke.EndTime))
	require.Equal(t, codes.Ok, invoke.Status.Code)

	for _, child := range []tracetest.SpanStub{latency, duration} {
		require.Equal(t, wantTraceID, child.SpanContext.TraceID())
		require.Equal(t, wantSpanID, child.Parent.SpanID())
		require.NotEqual(t, wantSpanID, child.SpanContext.SpanID())
	}
	require.True(t, at(233).Equal(duration.StartTime))
	require.True(t, at(255).Equal(duration.EndTime))

	got := attrs(invoke.Attributes)
	require.Equal(t, "cfa3c5e3-4441-42cc-86d0-404768d42e1b", got["faas.invocation_id"].AsString())
	require.Equal(t, int64(16), got["aws.lambda.produced_bytes"].AsInt64())
	require.Equal(t, int64(128), got["aws.lambda.memory_size_mb"].AsInt64())
	require.Equal(t, int64(84), got["aws.lambda.max_memory_used_mb"].AsInt64())
	require.Equal(t, int64(694), got["aws.lambda.billed_duration_ms"].AsInt64())
	require.Equal(t, int64(123), got["aws.lambda.restore_duration_ms"].AsInt64())

	require.Len(t, invoke.Links, 1)
	require.Equal(t, triplet.PrevSC, invoke.Links[0].SpanContext)
	require.Equal(t, []attribute.KeyValue{attribute.String("aws.lambda.link_type", "previous-trace")}, invoke.Links[0].Attributes)
}

func TestSpanConverter_ConvertIntoSpans_Init(t *testing.T) {
	t.Parallel()

	sc := otel.NewSpanConverter(context.Background(), registerResp)

	spans, _, err := sc.ConvertIntoSpans(getInitTriplet())
	require.NoError(t, err)
	stubs := tracetest.SpanStubsFromReadOnlySpans(spans)
	require.Len(t, stubs, 1)

	span := stubs[0]
	require.Equal(t, "OrderService/init", span.Name)
	require.False(t, span.Parent.IsValid())
	require.Empty(t, span.Links)
	require.Equal(t, codes.Error, span.Status.Code)
	require.Equal(t, "init-error", span.Status.Description)

	got := attrs(span.Attributes)
	require.True(t, got["faas.coldstart"].AsBool())
	require.Equal(t, "provided:al2.v20", got["aws.lambda.runtime_version"].AsString())
	require.Equal(t, "arn", got["aws.lambda.runtime_version_arn"].AsString())
	require.InDelta(t, 125.5, got["aws.lambda.init_duration_ms"].AsFloat64(), 0.001)
}

func TestSpanConverter_ConvertIntoSpans_TracingNotEnabled(t *testing.T) {
	t.Parallel()

	sc := otel.NewSpanConverter(context.Background(), registerResp)

	triplet := getInvokeTriplet()
	record := triplet.Start.Record.(telemetryapi.RecordPlatformStart)
	record.Tracing = telemetryapi.TraceContext{}
	triplet.Start.Record = record

	spans, spanContext, err := sc.ConvertIntoSpans(triplet)
	require.NoError(t, err)
	require.Len(t, spans, 3)
	require.False(t, spans[2].Parent().TraceID().IsValid())
	require.True(t, spanContext.IsValid())
}

func TestSpanConverter_ConvertIntoSpans_OutOfOrder(t *testing.T) {
	t.Parallel()

	sc := otel.NewSpanConverter(context.Background(), registerResp)

	triplet := getInvokeTriplet()
	triplet.Start = telemetryapi.Event{}

	spans, _, err := sc.ConvertIntoSpans(triplet)
	require.ErrorIs(t, err, otel.ErrOutOfOrder)
	require.Nil(t, spans)
}

func TestSpanConverter_Resource(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE", "128")

	sc := otel.NewSpanConverter(context.Background(), registerResp)
	spans, _, err := sc.ConvertIntoSpans(getInitTriplet())
	require.NoError(t, err)

	got := attrs(spans[0].Resource().Attributes())
	require.Equal(t, "OrderService", got["service.name"].AsString())
	require.Equal(t, "aws", got["cloud.provider"].AsString())
	require.Equal(t, "aws_lambda", got["cloud.platform"].AsString())
	require.Equal(t, "0123456789", got["cloud.account.id"].AsString())
	require.Equal(t, "eu-west-1", got["cloud.region"].AsString())
	require.Equal(t, "OrderService", got["faas.name"].AsString())
	require.Equal(t, "$LATEST", got["faas.version"].AsString())
	require.Equal(t, int64(128), got["faas.max_memory"].AsInt64())
	require.Equal(t, otel.TracerName, spans[0].InstrumentationScope().Name)
}
