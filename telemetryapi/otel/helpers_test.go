package otel_test

import (
	"time"

	lambdaext "github.com/zakharovvi/aws-lambda-elastic-telemetry"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/extapi"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/telemetryapi"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/telemetryapi/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var registerResp = &extapi.RegisterResponse{
	FunctionName:    "OrderService",
	FunctionVersion: "$LATEST",
	Handler:         "bootstrap",
	AccountID:       "0123456789",
}

func at(ms int) time.Time {
	return time.Date(2022, 11, 23, 12, 49, 53, ms*int(time.Millisecond), time.UTC)
}

func attrs(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}

	return m
}

func getInitTriplet() otel.EventTriplet {
	return otel.EventTriplet{
		Type: telemetryapi.PhaseInit,
		Start: telemetryapi.Event{
			Type: telemetryapi.TypePlatformInitStart,
			Time: at(86),
			Record: telemetryapi.RecordPlatformInitStart{
				InitType:          lambdaext.InitTypeOnDemand,
				Phase:             telemetryapi.PhaseInit,
				RuntimeVersion:    "provided:al2.v20",
				RuntimeVersionARN: "arn",
			},
		},
		RuntimeDone: telemetryapi.Event{
			Type: telemetryapi.TypePlatformInitRuntimeDone,
			Time: at(256),
			Record: telemetryapi.RecordPlatformInitRuntimeDone{
				InitType:  lambdaext.InitTypeOnDemand,
				Phase:     telemetryapi.PhaseInit,
				Status:    telemetryapi.StatusError,
				ErrorType: "init-error",
			},
		},
		Report: telemetryapi.Event{
			Type: telemetryapi.TypePlatformInitReport,
			Time: at(258),
			Record: telemetryapi.RecordPlatformInitReport{
				InitType: lambdaext.InitTypeOnDemand,
				Phase:    telemetryapi.PhaseInit,
				Metrics: telemetryapi.InitReportMetrics{
					Duration: lambdaext.DurationMs(125500 * time.Microsecond),
				},
			},
		},
	}
}

func getInvokeTriplet() otel.EventTriplet {
	requestID := lambdaext.RequestID("cfa3c5e3-4441-42cc-86d0-404768d42e1b")

	return otel.EventTriplet{
		Type: telemetryapi.PhaseInvoke,
		Start: telemetryapi.Event{
			Type: telemetryapi.TypePlatformStart,
			Time: at(86),
			Record: telemetryapi.RecordPlatformStart{
				RequestID: requestID,
				Version:   "$LATEST",
				Tracing: telemetryapi.TraceContext{
					SpanID: "7cd833ab5300d004",
					Type:   lambdaext.TracingTypeAWSXRay,
					Value:  "Root=1-637e16f0-1fbed7cb2ea0e5d7537a6258;Parent=5ac36eec7a279fc5;Sampled=1",
				},
			},
		},
		RuntimeDone: telemetryapi.Event{
			Type: telemetryapi.TypePlatformRuntimeDone,
			Time: at(256),
			Record: telemetryapi.RecordPlatformRuntimeDone{
				RequestID: requestID,
				Status:    telemetryapi.StatusSuccess,
				Metrics:   telemetryapi.RuntimeDoneMetrics{ProducedBytes: 16},
				Spans: []telemetryapi.Span{
					{Name: telemetryapi.SpanResponseLatency, Start: at(86), Duration: lambdaext.DurationMs(time.Millisecond)},
					{Name: telemetryapi.SpanResponseDuration, Start: at(233), Duration: lambdaext.DurationMs(22 * time.Millisecond)},
				},
			},
		},
		Report: telemetryapi.Event{
			Type: telemetryapi.TypePlatformReport,
			Time: at(258),
			Record: telemetryapi.RecordPlatformReport{
				RequestID: requestID,
				Status:    telemetryapi.StatusSuccess,
				Metrics: telemetryapi.ReportMetrics{
					BilledDuration:  lambdaext.DurationMs(694 * time.Millisecond),
					Duration:        lambdaext.DurationMs(693920 * time.Microsecond),
					MaxMemoryUsedMB: 84,
					MemorySizeMB:    128,
					RestoreDuration: lambdaext.DurationMs(123 * time.Millisecond),
				},
			},
		},
		PrevSC: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: [16]byte{1},
			SpanID:  [8]byte{2},
		}),
	}
}
