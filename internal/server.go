// Package internal implements the HTTP receiver shared by the telemetry extensions.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/extapi"
)

type eventProcessor[T any] interface {
	Init(ctx context.Context, registerResp *extapi.RegisterResponse) error
	Process(ctx context.Context, event T) error
	Shutdown(ctx context.Context, reason extapi.ShutdownReason, err error) error
}

// Decoder reads a request body and sends decoded events to the channel.
type Decoder[T any] func(ctx context.Context, r io.ReadCloser, events chan<- T) error

// Subscriber subscribes destinationURL to the event stream during the Init phase.
type Subscriber func(ctx context.Context, client *extapi.Client, destinationURL string) error

// Receiver is an extapi.Extension which receives pushed events over HTTP and hands them
// to a processor on a single goroutine.
type Receiver[T any] struct {
	proc         eventProcessor[T]
	srv          *http.Server
	events       chan T
	errCh        chan error
	done         chan struct{}
	cancelDecode context.CancelFunc
	log          logr.Logger
	decode       Decoder[T]
	subscribe    Subscriber
}

func NewReceiver[T any](
	ctx context.Context,
	proc eventProcessor[T],
	addr string,
	log logr.Logger,
	decode Decoder[T],
	subscribe Subscriber,
) *Receiver[T] {
	decodeCtx, cancelDecode := context.WithCancel(ctx)
	rcv := &Receiver[T]{
		proc:         proc,
		events:       make(chan T),
		errCh:        make(chan error, 1),
		done:         make(chan struct{}),
		cancelDecode: cancelDecode,
		log:          log,
		decode:       decode,
		subscribe:    subscribe,
	}
	rcv.srv = &http.Server{
		Addr:    addr,
		Handler: rcv,
		BaseContext: func(_ net.Listener) context.Context {
			return decodeCtx
		},
		ReadHeaderTimeout: time.Second,
	}

	return rcv
}

func (rcv *Receiver[T]) Init(ctx context.Context, client *extapi.Client) error {
	// processing must run before proc.Init: a failed Init calls Shutdown, which waits for rcv.done
	go rcv.processEvents(ctx)

	if err := rcv.proc.Init(ctx, client.RegisterResponse()); err != nil {
		return fmt.Errorf("processor Init failed: %w", err)
	}

	ln, err := net.Listen("tcp", rcv.srv.Addr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", rcv.srv.Addr, err)
	}
	rcv.log.V(1).Info("receiver listening", "addr", ln.Addr().String())

	go func() {
		if err := rcv.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			rcv.fail(fmt.Errorf("receiver HTTP server failed: %w", err))

			return
		}
		rcv.log.V(1).Info("receiver HTTP server stopped")
	}()

	url, err := rcv.destinationURL(ln.Addr())
	if err != nil {
		return fmt.Errorf("could not build destination url: %w", err)
	}

	return rcv.subscribe(ctx, client, url)
}

// destinationURL keeps the configured host, as Lambda accepts only sandbox.localdomain,
// and takes the port from the listener in case port 0 was configured.
func (rcv *Receiver[T]) destinationURL(listenerAddr net.Addr) (string, error) {
	host, _, err := net.SplitHostPort(rcv.srv.Addr)
	if err != nil {
		return "", err
	}
	_, port, err := net.SplitHostPort(listenerAddr.String())
	if err != nil {
		return "", err
	}

	return "http://" + net.JoinHostPort(host, port), nil
}

func (rcv *Receiver[T]) HandleInvokeEvent(ctx context.Context, event *extapi.NextEventResponse) error {
	return fmt.Errorf("unexpected %s event: receiver subscribes only to SHUTDOWN", event.EventType)
}

func (rcv *Receiver[T]) Shutdown(ctx context.Context, reason extapi.ShutdownReason, err error) error {
	// in-flight handlers stop decoding, otherwise srv.Shutdown could wait for them forever
	rcv.cancelDecode()

	srvErr := rcv.srv.Shutdown(ctx)
	if srvErr != nil {
		srvErr = fmt.Errorf("could not gracefully shut down receiver HTTP server: %w", srvErr)
		rcv.log.Error(srvErr, "")
	}

	// no handler writes to events after srv.Shutdown returned
	close(rcv.events)
	<-rcv.done

	rcv.log.V(1).Info("calling processor Shutdown", "reason", reason)
	if procErr := rcv.proc.Shutdown(ctx, reason, err); procErr != nil {
		procErr = fmt.Errorf("processor Shutdown failed: %w", procErr)
		rcv.log.Error(procErr, "")

		return procErr
	}

	return srvErr
}

func (rcv *Receiver[T]) Err() <-chan error {
	return rcv.errCh
}

func (rcv *Receiver[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sequenceID := r.Header.Get("Sequence-Id")

	if r.Method != http.MethodPost {
		err := fmt.Errorf("got HTTP method %s, want POST", r.Method)
		http.Error(w, err.Error(), http.StatusMethodNotAllowed)
		rcv.fail(err, "sequenceID", sequenceID)

		return
	}

	rcv.log.V(1).Info("decoding events", "bytes", r.ContentLength, "sequenceID", sequenceID)
	if err := rcv.decode(r.Context(), r.Body, rcv.events); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		rcv.fail(fmt.Errorf("decoding failed or interrupted: %w", err), "sequenceID", sequenceID)

		return
	}
}

func (rcv *Receiver[T]) processEvents(ctx context.Context) {
	defer close(rcv.done)

	for event := range rcv.events {
		if err := rcv.proc.Process(ctx, event); err != nil {
			rcv.fail(fmt.Errorf("processor Process failed: %w", err))
			// keep draining, so blocked handlers can finish
			for range rcv.events {
			}

			return
		}
	}
	rcv.log.V(1).Info("event processing stopped")
}

// fail logs the error and signals it to extapi.Run without blocking. Only the first error is kept.
func (rcv *Receiver[T]) fail(err error, keysAndValues ...any) {
	rcv.log.Error(err, "", keysAndValues...)
	select {
	case rcv.errCh <- err:
	default:
	}
}
