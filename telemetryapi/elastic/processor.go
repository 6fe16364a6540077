package elastic

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/extapi"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/ingest"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/record"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/telemetryapi"
)

// Sink receives routed documents. essink.Sink implements it.
type Sink interface {
	Add(ctx context.Context, rec record.Record) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

type options struct {
	log           logr.Logger
	env           *Environment
	namespace     string
	spans         telemetryapi.Processor
	flushOnReport bool
}

type Option interface {
	apply(*options)
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

type environmentOption Environment

func (o environmentOption) apply(opts *options) {
	env := Environment(o)
	opts.env = &env
}

// WithEnvironment overrides EnvironmentFromEnv.
func WithEnvironment(env Environment) Option {
	return environmentOption(env)
}

type namespaceOption string

func (o namespaceOption) apply(opts *options) {
	opts.namespace = string(o)
}

// WithNamespace sets the data stream namespace, DefaultNamespace by default.
func WithNamespace(namespace string) Option {
	return namespaceOption(namespace)
}

type spanProcessorOption struct {
	proc telemetryapi.Processor
}

func (o spanProcessorOption) apply(opts *options) {
	opts.spans = o.proc
}

// WithSpanProcessor also feeds every event to proc, usually an otel.Processor.
// Its Process errors are logged and don't stop the extension.
func WithSpanProcessor(proc telemetryapi.Processor) Option {
	return spanProcessorOption{proc}
}

type flushOnReportOption bool

func (o flushOnReportOption) apply(opts *options) {
	opts.flushOnReport = bool(o)
}

// WithFlushOnReport flushes the sink after every invocation report, before the environment may be frozen.
func WithFlushOnReport(flush bool) Option {
	return flushOnReportOption(flush)
}

// Processor implements telemetryapi.Processor. It converts events into documents,
// derives their fields with the router and adds them to the sink.
type Processor struct {
	sink   Sink
	router *ingest.Router
	opts   options
	conv   *DocumentConverter
	log    logr.Logger
}

func NewProcessor(ctx context.Context, sink Sink, router *ingest.Router, opts ...Option) *Processor {
	options := options{
		log: logr.FromContextOrDiscard(ctx),
	}
	for _, o := range opts {
		o.apply(&options)
	}

	return &Processor{sink: sink, router: router, opts: options, log: options.log}
}

func (proc *Processor) Init(ctx context.Context, registerResp *extapi.RegisterResponse) error {
	env := EnvironmentFromEnv()
	if proc.opts.env != nil {
		env = *proc.opts.env
	}
	proc.conv = NewDocumentConverter(registerResp, env, proc.opts.namespace)
	proc.log.V(1).Info("initialized document converter", "function", registerResp.FunctionName, "logGroup", env.LogGroup)

	if proc.opts.spans != nil {
		if err := proc.opts.spans.Init(ctx, registerResp); err != nil {
			return fmt.Errorf("span processor Init failed: %w", err)
		}
	}

	return nil
}

func (proc *Processor) Process(ctx context.Context, event telemetryapi.Event) error {
	if proc.opts.spans != nil {
		if err := proc.opts.spans.Process(ctx, event); err != nil {
			proc.log.Error(err, "could not export spans", "type", event.Type)
		}
	}

	if dropped, ok := event.Record.(telemetryapi.RecordPlatformLogsDropped); ok {
		proc.log.Info(
			"Telemetry API dropped events",
			"reason", dropped.Reason,
			"droppedRecords", dropped.DroppedRecords,
			"droppedBytes", dropped.DroppedBytes,
		)

		return nil
	}

	doc, ok := proc.conv.Convert(event)
	if !ok {
		return nil
	}
	res := proc.router.Route(doc)
	proc.log.V(1).Info("routed document", "type", event.Type, "kind", res.Kind, "pipeline", res.Pipeline, "applied", res.Applied)

	if err := proc.sink.Add(ctx, doc); err != nil {
		return fmt.Errorf("could not add document to sink: %w", err)
	}

	if proc.opts.flushOnReport && event.Type == telemetryapi.TypePlatformReport {
		if err := proc.sink.Flush(ctx); err != nil {
			return fmt.Errorf("could not flush sink: %w", err)
		}
	}

	return nil
}

func (proc *Processor) Shutdown(ctx context.Context, reason extapi.ShutdownReason, err error) error {
	stats := proc.router.Stats()
	proc.log.V(1).Info(
		"shutting down",
		"reason", reason,
		"logs", stats.Logs,
		"metrics", stats.Metrics,
		"unknown", stats.Unknown,
		"applied", stats.Applied,
	)

	var errs []error
	if proc.opts.spans != nil {
		if spanErr := proc.opts.spans.Shutdown(ctx, reason, err); spanErr != nil {
			errs = append(errs, fmt.Errorf("span processor Shutdown failed: %w", spanErr))
		}
	}
	if sinkErr := proc.sink.Close(ctx); sinkErr != nil {
		errs = append(errs, fmt.Errorf("could not close sink: %w", sinkErr))
	}

	return errors.Join(errs...)
}
