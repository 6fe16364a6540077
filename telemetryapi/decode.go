package telemetryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	lambdaext "github.com/zakharovvi/aws-lambda-elastic-telemetry"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/extapi"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/internal"
)

// Type is the Telemetry API event type.
// https://docs.aws.amazon.com/lambda/latest/dg/telemetry-schema-reference.html
type Type string

const (
	TypePlatformInitStart       Type = "platform.initStart"
	TypePlatformInitRuntimeDone Type = "platform.initRuntimeDone"
	TypePlatformInitReport      Type = "platform.initReport"
	TypePlatformStart           Type = "platform.start"
	// TypePlatformRuntimeDone is emitted when the runtime finished the invocation with either success or failure.
	TypePlatformRuntimeDone Type = "platform.runtimeDone"
	// TypePlatformReport carries the invocation metrics. It is the source of Lambda metric documents.
	TypePlatformReport                Type = "platform.report"
	TypePlatformExtension             Type = "platform.extension"
	TypePlatformTelemetrySubscription Type = "platform.telemetrySubscription"
	// TypePlatformLogsDropped is emitted when Lambda dropped events because the subscriber was too slow.
	TypePlatformLogsDropped Type = "platform.logsDropped"
	// TypeFunction is a log line written by the function code.
	TypeFunction Type = "function"
	// TypeExtension is a log line written by an extension.
	TypeExtension Type = "extension"
)

// Event is a single Telemetry API message.
// https://docs.aws.amazon.com/lambda/latest/dg/telemetry-api.html#telemetry-api-messages
type Event struct {
	Type Type `json:"type"`
	// Time is when Lambda generated the event, not when it happened.
	Time      time.Time       `json:"time"`
	RawRecord json.RawMessage `json:"record"`
	// Record is the decoded RawRecord: one of Record* types depending on Type.
	// It is nil for event types unknown to this package.
	Record any `json:"decodedRecord,omitempty"`
}

type RecordPlatformInitStart struct {
	InitType          lambdaext.InitType `json:"initializationType"`
	Phase             Phase              `json:"phase"`
	RuntimeVersion    string             `json:"runtimeVersion,omitempty"`
	RuntimeVersionARN string             `json:"runtimeVersionArn,omitempty"`
}

type RecordPlatformInitRuntimeDone struct {
	InitType  lambdaext.InitType `json:"initializationType"`
	Phase     Phase              `json:"phase"`
	Status    Status             `json:"status"`
	ErrorType string             `json:"errorType,omitempty"`
	Spans     []Span             `json:"spans,omitempty"`
}

type RecordPlatformInitReport struct {
	InitType  lambdaext.InitType `json:"initializationType"`
	Phase     Phase              `json:"phase"`
	Status    Status             `json:"status,omitempty"`
	ErrorType string             `json:"errorType,omitempty"`
	Metrics   InitReportMetrics  `json:"metrics"`
	Spans     []Span             `json:"spans,omitempty"`
}

type RecordPlatformStart struct {
	RequestID lambdaext.RequestID       `json:"requestId"`
	Version   lambdaext.FunctionVersion `json:"version,omitempty"`
	Tracing   TraceContext              `json:"tracing,omitempty"`
}

type RecordPlatformRuntimeDone struct {
	RequestID lambdaext.RequestID `json:"requestId"`
	Status    Status              `json:"status"`
	ErrorType string              `json:"errorType,omitempty"`
	Metrics   RuntimeDoneMetrics  `json:"metrics,omitempty"`
	Tracing   TraceContext        `json:"tracing,omitempty"`
	Spans     []Span              `json:"spans,omitempty"`
}

// RecordPlatformReport is the invocation report, the REPORT line of CloudWatch logs.
type RecordPlatformReport struct {
	RequestID lambdaext.RequestID `json:"requestId"`
	Status    Status              `json:"status"`
	ErrorType string              `json:"errorType,omitempty"`
	Metrics   ReportMetrics       `json:"metrics"`
	Tracing   TraceContext        `json:"tracing,omitempty"`
	Spans     []Span              `json:"spans,omitempty"`
}

type RecordPlatformExtension struct {
	Name   lambdaext.ExtensionName `json:"name"`
	State  string                  `json:"state"`
	Events []extapi.EventType      `json:"events"`
}

type RecordPlatformTelemetrySubscription struct {
	Name  lambdaext.ExtensionName            `json:"name"`
	State string                             `json:"state"`
	Types []extapi.TelemetrySubscriptionType `json:"types"`
}

type RecordPlatformLogsDropped struct {
	DroppedBytes   int    `json:"droppedBytes"`
	DroppedRecords int    `json:"droppedRecords"`
	Reason         string `json:"reason"`
}

// LogRecord is a log line. Lambda sends text formatted lines as JSON strings and
// JSON formatted lines as objects with timestamp, level, message and requestId keys.
type LogRecord struct {
	Message   string
	Level     string
	RequestID lambdaext.RequestID
	// Fields holds the whole JSON formatted line. It is nil for text lines.
	Fields map[string]any
}

func (l *LogRecord) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		*l = LogRecord{}

		return json.Unmarshal(b, &l.Message)
	}

	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("log record is neither a string nor an object: %w", err)
	}
	if fields == nil {
		return errors.New("log record is null")
	}
	*l = LogRecord{Fields: fields}
	switch msg := fields["message"].(type) {
	case string:
		l.Message = msg
	case nil:
	default:
		m, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("could not encode log message: %w", err)
		}
		l.Message = string(m)
	}
	l.Level, _ = fields["level"].(string)
	if id, ok := fields["requestId"].(string); ok {
		l.RequestID = lambdaext.RequestID(id)
	}

	return nil
}

// RecordFunction is a log line of the function code.
type RecordFunction struct {
	LogRecord
}

// RecordExtension is a log line of an extension.
type RecordExtension struct {
	LogRecord
}

// Phase is the phase in which initialization happened.
type Phase string

const (
	PhaseInit Phase = "init"
	// PhaseInvoke is a suppressed init re-run during the invoke phase after an error.
	PhaseInvoke Phase = "invoke"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

type SpanName string

const (
	// SpanResponseLatency is the time until the function started sending the response.
	SpanResponseLatency SpanName = "responseLatency"
	// SpanResponseDuration is the time to send the whole response.
	SpanResponseDuration SpanName = "responseDuration"
)

type Span struct {
	Name     SpanName             `json:"name"`
	Start    time.Time            `json:"start"`
	Duration lambdaext.DurationMs `json:"durationMs"`
}

type InitReportMetrics struct {
	Duration lambdaext.DurationMs `json:"durationMs"`
}

type TraceContext struct {
	SpanID string                 `json:"spanId,omitempty"`
	Type   lambdaext.TracingType  `json:"type"`
	Value  lambdaext.TracingValue `json:"value"`
}

type RuntimeDoneMetrics struct {
	Duration      lambdaext.DurationMs `json:"durationMs"`
	ProducedBytes int                  `json:"producedBytes,omitempty"`
}

type ReportMetrics struct {
	BilledDuration  lambdaext.DurationMs `json:"billedDurationMs"`
	Duration        lambdaext.DurationMs `json:"durationMs"`
	InitDuration    lambdaext.DurationMs `json:"initDurationMs,omitempty"`
	MaxMemoryUsedMB int                  `json:"maxMemoryUsedMB"`
	MemorySizeMB    int                  `json:"memorySizeMB"`
	RestoreDuration lambdaext.DurationMs `json:"restoreDurationMs,omitempty"`
}

var recordDecoders = map[Type]func(json.RawMessage) (any, error){
	TypePlatformInitStart:             decodeRecord[RecordPlatformInitStart],
	TypePlatformInitRuntimeDone:       decodeRecord[RecordPlatformInitRuntimeDone],
	TypePlatformInitReport:            decodeRecord[RecordPlatformInitReport],
	TypePlatformStart:                 decodeRecord[RecordPlatformStart],
	TypePlatformRuntimeDone:           decodeRecord[RecordPlatformRuntimeDone],
	TypePlatformReport:                decodeRecord[RecordPlatformReport],
	TypePlatformExtension:             decodeRecord[RecordPlatformExtension],
	TypePlatformTelemetrySubscription: decodeRecord[RecordPlatformTelemetrySubscription],
	TypePlatformLogsDropped:           decodeRecord[RecordPlatformLogsDropped],
	TypeFunction:                      decodeRecord[RecordFunction],
	TypeExtension:                     decodeRecord[RecordExtension],
}

func decodeRecord[T any](raw json.RawMessage) (any, error) {
	var record T
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}

	return record, nil
}

// Decode reads a JSON array of events from r and sends them to the channel one by one.
// It drains and closes r. Most extensions should use Run instead.
func Decode(ctx context.Context, r io.ReadCloser, events chan<- Event) error {
	return internal.Decode(ctx, r, events, decodeNext)
}

func decodeNext(d *json.Decoder) (Event, error) {
	event := Event{}
	if err := d.Decode(&event); err != nil {
		return event, fmt.Errorf("could not decode event from json array: %w", err)
	}

	decode, ok := recordDecoders[event.Type]
	if !ok {
		// new platform event types are passed through undecoded
		return event, nil
	}
	record, err := decode(event.RawRecord)
	if err != nil {
		return event, fmt.Errorf("could not decode record %s of event type %s: %w", event.RawRecord, event.Type, err)
	}
	event.Record = record

	return event, nil
}
