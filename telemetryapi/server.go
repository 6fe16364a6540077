package telemetryapi

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/extapi"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/internal"
)

// DefaultDestinationAddr is the receiver listen address. Lambda accepts only the sandbox.localdomain host;
// port 0 picks a free port.
const DefaultDestinationAddr = "sandbox.localdomain:0"

// Processor consumes decoded Telemetry API events.
type Processor interface {
	// Init is called once before the first Process call. Open connections and allocate buffers here.
	Init(ctx context.Context, registerResp *extapi.RegisterResponse) error
	// Process is called sequentially for every event. An error stops the extension.
	Process(ctx context.Context, event Event) error
	// Shutdown is called once after the last Process call. Buffered events must be flushed here.
	Shutdown(ctx context.Context, reason extapi.ShutdownReason, err error) error
}

type options struct {
	log               logr.Logger
	subscriptionTypes []extapi.TelemetrySubscriptionType
	bufferingCfg      *extapi.TelemetryBufferingCfg
	clientOptions     []extapi.Option
	destinationAddr   string
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

type subscriptionTypesOption []extapi.TelemetrySubscriptionType

func (o subscriptionTypesOption) apply(opts *options) {
	opts.subscriptionTypes = o
}

// WithSubscriptionTypes overrides the default platform and function streams.
func WithSubscriptionTypes(types []extapi.TelemetrySubscriptionType) Option {
	return subscriptionTypesOption(types)
}

type bufferingCfgOption struct {
	bufferingCfg *extapi.TelemetryBufferingCfg
}

func (o bufferingCfgOption) apply(opts *options) {
	opts.bufferingCfg = o.bufferingCfg
}

func WithBufferingCfg(bufferingCfg *extapi.TelemetryBufferingCfg) Option {
	return bufferingCfgOption{bufferingCfg}
}

type clientOptionsOption []extapi.Option

func (o clientOptionsOption) apply(opts *options) {
	opts.clientOptions = o
}

// WithClientOptions passes options to extapi.Run.
func WithClientOptions(clientOptions ...extapi.Option) Option {
	return clientOptionsOption(clientOptions)
}

type destinationAddrOption string

func (o destinationAddrOption) apply(opts *options) {
	opts.destinationAddr = string(o)
}

// WithDestinationAddr overrides DefaultDestinationAddr.
func WithDestinationAddr(addr string) Option {
	return destinationAddrOption(addr)
}

// Run registers the extension, subscribes to the Telemetry API and feeds received events to proc.
// Run blocks until the SHUTDOWN event or a failure.
func Run(ctx context.Context, proc Processor, opts ...Option) error {
	options := options{
		destinationAddr: DefaultDestinationAddr,
		log:             logr.FromContextOrDiscard(ctx),
	}
	for _, o := range opts {
		o.apply(&options)
	}

	subscribe := func(ctx context.Context, client *extapi.Client, destinationURL string) error {
		req := extapi.NewTelemetrySubscribeRequest(destinationURL, options.subscriptionTypes, options.bufferingCfg)

		return client.TelemetrySubscribe(ctx, req)
	}
	rcv := internal.NewReceiver[Event](ctx, proc, options.destinationAddr, options.log, Decode, subscribe)

	// the logger goes first so WithClientOptions can override it; SHUTDOWN goes last so it can't
	clientOptions := append([]extapi.Option{extapi.WithLogger(options.log)}, options.clientOptions...)
	clientOptions = append(clientOptions, extapi.WithEventTypes([]extapi.EventType{extapi.Shutdown}))
	options.log.V(1).Info("starting telemetry extension", "addr", options.destinationAddr)

	return extapi.Run(ctx, rcv, clientOptions...)
}
