package otel

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/extapi"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/telemetryapi"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Processor implements telemetryapi.Processor. It exports init phases and invocations as spans
// through the given exporter.
type Processor struct {
	exporter      sdktrace.SpanExporter
	log           logr.Logger
	spanConverter *SpanConverter
	opts          []Option
	curTriplet    EventTriplet
}

// NewProcessor creates Processor with the provided sdktrace.SpanExporter.
func NewProcessor(ctx context.Context, exporter sdktrace.SpanExporter, opts ...Option) *Processor {
	options := options{
		log: logr.FromContextOrDiscard(ctx),
	}
	for _, o := range opts {
		o.apply(&options)
	}

	return &Processor{exporter: exporter, log: options.log, opts: append([]Option{WithLogger(options.log)}, opts...)}
}

func (proc *Processor) Init(ctx context.Context, registerResp *extapi.RegisterResponse) error {
	proc.spanConverter = NewSpanConverter(ctx, registerResp, proc.opts...)

	return nil
}

// Process collects the events of a triplet and exports the spans when the report event arrives.
// Events of other types are ignored.
func (proc *Processor) Process(ctx context.Context, event telemetryapi.Event) error {
	switch event.Record.(type) {
	case telemetryapi.RecordPlatformInitStart:
		proc.curTriplet.Type = telemetryapi.PhaseInit
		proc.curTriplet.Start = event
	case telemetryapi.RecordPlatformStart:
		proc.curTriplet.Type = telemetryapi.PhaseInvoke
		proc.curTriplet.Start = event
	case telemetryapi.RecordPlatformInitRuntimeDone, telemetryapi.RecordPlatformRuntimeDone:
		proc.curTriplet.RuntimeDone = event
	case telemetryapi.RecordPlatformInitReport, telemetryapi.RecordPlatformReport:
		proc.curTriplet.Report = event

		return proc.exportTriplet(ctx)
	}

	return nil
}

// exportTriplet resets the current triplet in any case, so a broken triplet doesn't break the next ones.
func (proc *Processor) exportTriplet(ctx context.Context) error {
	triplet := proc.curTriplet
	proc.curTriplet = EventTriplet{PrevSC: triplet.PrevSC}

	spans, spanContext, err := proc.spanConverter.ConvertIntoSpans(triplet)
	if err != nil {
		return err
	}
	proc.curTriplet.PrevSC = spanContext

	proc.log.V(1).Info(
		"sending spans to exporter",
		"traceID", spanContext.TraceID(),
		"count", len(spans),
	)

	return proc.exporter.ExportSpans(ctx, spans)
}

func (proc *Processor) Shutdown(ctx context.Context, reason extapi.ShutdownReason, err error) error {
	proc.log.V(1).Info("shutting down span exporter", "reason", reason)

	return proc.exporter.Shutdown(ctx)
}
