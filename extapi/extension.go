package extapi

import (
	"context"
	"fmt"
	"time"
)

// Extension is the extension logic driven by Run.
// Telemetry API extensions should implement telemetryapi.Processor and use telemetryapi.Run instead.
type Extension interface {
	// Init is called once after Register and before the first invocation.
	Init(ctx context.Context, client *Client) error
	// HandleInvokeEvent is called for every INVOKE event with the invocation deadline set on the context.
	HandleInvokeEvent(ctx context.Context, event *NextEventResponse) error
	// Shutdown is called once on SHUTDOWN or after a failure, with the shutdown deadline set on the context.
	// HandleInvokeEvent is not called after Shutdown. Buffered data must be flushed here.
	Shutdown(ctx context.Context, reason ShutdownReason, err error) error
	// Err reports asynchronous failures which stop the extension. Only the first error is read.
	// A nil channel is allowed.
	Err() <-chan error
}

// Run registers the extension and drives it through the Lambda lifecycle.
// Run blocks until SHUTDOWN is received, an error occurs or ctx is cancelled.
func Run(ctx context.Context, ext Extension, opts ...Option) error {
	client, err := Register(ctx, opts...)
	if err != nil {
		return err
	}
	log := client.log

	log.V(1).Info("calling Extension.Init")
	if initErr := ext.Init(ctx, client); initErr != nil {
		log.Error(initErr, "Extension.Init failed")
		if _, err := client.InitError(ctx, "Extension.Init", initErr); err != nil {
			log.Error(err, "could not report init error")
		}
		if err := ext.Shutdown(ctx, ExtensionError, initErr); err != nil {
			log.Error(err, "Extension.Shutdown failed")
		}

		return fmt.Errorf("Extension.Init failed: %w", initErr)
	}

	log.V(1).Info("extension initialized, polling events")
	shutdownEvent, loopErr := loop(ctx, client, ext)
	if loopErr != nil {
		loopErr = fmt.Errorf("extension loop failed: %w", loopErr)
	}
	shutdownErr := shutdown(ctx, client, ext, shutdownEvent, loopErr)
	if loopErr != nil {
		return loopErr
	}

	return shutdownErr
}

// shutdown calls Extension.Shutdown and reports the first error to exit/error.
func shutdown(ctx context.Context, client *Client, ext Extension, event *NextEventResponse, loopErr error) error {
	reason := ExtensionError
	if event != nil {
		reason = event.ShutdownReason

		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, time.UnixMilli(event.DeadlineMs))
		defer cancel()
	}

	client.log.V(1).Info("calling Extension.Shutdown", "reason", reason)
	shutdownErr := ext.Shutdown(ctx, reason, loopErr)
	if shutdownErr != nil {
		shutdownErr = fmt.Errorf("Extension.Shutdown failed: %w", shutdownErr)
		client.log.Error(shutdownErr, "")
	}

	reportErr := loopErr
	if reportErr == nil {
		reportErr = shutdownErr
	}
	if reportErr != nil {
		if _, err := client.ExitError(ctx, "Extension.Exit", reportErr); err != nil {
			client.log.Error(err, "could not report exit error")
		}
	}

	return shutdownErr
}

// loop polls NextEvent until SHUTDOWN, a failure or ctx cancellation.
func loop(ctx context.Context, client *Client, ext Extension) (*NextEventResponse, error) {
	defer client.log.V(1).Info("event loop stopped")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type next struct {
		event *NextEventResponse
		err   error
	}
	// buffered, so the polling goroutine never leaks after loop returned
	nextCh := make(chan next, 1)

	for {
		// NextEvent runs in a goroutine: it blocks while the environment is frozen,
		// and extensions subscribed only to SHUTDOWN still have to watch ext.Err()
		go func() {
			event, err := client.NextEvent(ctx)
			nextCh <- next{event, err}
		}()

		select {
		case n := <-nextCh:
			if n.err != nil {
				return nil, fmt.Errorf("Client.NextEvent failed: %w", n.err)
			}
			if n.event.EventType == Shutdown {
				client.log.Info("shutdown event received", "reason", n.event.ShutdownReason)

				return n.event, nil
			}

			invokeCtx, invokeCancel := context.WithDeadline(ctx, time.UnixMilli(n.event.DeadlineMs))
			err := ext.HandleInvokeEvent(invokeCtx, n.event)
			invokeCancel()
			if err != nil {
				return nil, fmt.Errorf("Extension.HandleInvokeEvent failed: %w", err)
			}
		case err := <-ext.Err():
			return nil, fmt.Errorf("extension signaled an error: %w", err)
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled while waiting for the next event: %w", ctx.Err())
		}
	}
}
