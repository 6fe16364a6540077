package extapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// TelemetrySubscriptionType is a telemetry stream the extension subscribes to.
type TelemetrySubscriptionType string

const (
	// TelemetrySubscriptionTypePlatform is runtime and extension lifecycle events, invocation phases and reports.
	TelemetrySubscriptionTypePlatform TelemetrySubscriptionType = "platform"
	// TelemetrySubscriptionTypeFunction is function log lines.
	TelemetrySubscriptionTypeFunction TelemetrySubscriptionType = "function"
	// TelemetrySubscriptionTypeExtension is extension log lines, including the subscriber's own.
	TelemetrySubscriptionTypeExtension TelemetrySubscriptionType = "extension"
)

// TelemetryBufferingCfg controls batching. A batch is sent when the first limit is reached.
type TelemetryBufferingCfg struct {
	// MaxItems is 1000..10000, default 10000.
	MaxItems uint32 `json:"maxItems"`
	// MaxBytes is 262144..1048576, default 262144.
	MaxBytes uint32 `json:"maxBytes"`
	// TimeoutMS is 25..30000, default 1000.
	TimeoutMS uint32 `json:"timeoutMs"`
}

type TelemetryDestination struct {
	Protocol string `json:"protocol"`
	URI      string `json:"URI"`
}

type TelemetrySchemaVersion string

const TelemetrySchemaVersion20220701 TelemetrySchemaVersion = "2022-07-01"

// TelemetrySubscribeRequest is the body of PUT /2022-07-01/telemetry.
type TelemetrySubscribeRequest struct {
	SchemaVersion TelemetrySchemaVersion      `json:"schemaVersion,omitempty"`
	Types         []TelemetrySubscriptionType `json:"types"`
	BufferingCfg  *TelemetryBufferingCfg      `json:"buffering,omitempty"`
	Destination   *TelemetryDestination       `json:"destination"`
}

// NewTelemetrySubscribeRequest creates an HTTP subscription for the url.
// Empty types subscribe to platform and function streams.
func NewTelemetrySubscribeRequest(url string, types []TelemetrySubscriptionType, bufferingCfg *TelemetryBufferingCfg) *TelemetrySubscribeRequest {
	if len(types) == 0 {
		// the extension stream would feed our own logs back to us
		types = []TelemetrySubscriptionType{TelemetrySubscriptionTypePlatform, TelemetrySubscriptionTypeFunction}
	}

	return &TelemetrySubscribeRequest{
		SchemaVersion: TelemetrySchemaVersion20220701,
		Types:         types,
		BufferingCfg:  bufferingCfg,
		Destination: &TelemetryDestination{
			Protocol: "HTTP",
			URI:      url,
		},
	}
}

// TelemetrySubscribe subscribes the destination to the telemetry streams.
// It must be called during the Init phase.
// https://docs.aws.amazon.com/lambda/latest/dg/telemetry-api-reference.html
func (c *Client) TelemetrySubscribe(ctx context.Context, subscribeReq *TelemetrySubscribeRequest) error {
	body, err := json.Marshal(subscribeReq)
	if err != nil {
		err = fmt.Errorf("could not json encode telemetry subscribe request: %w", err)
		c.log.Error(err, "")

		return err
	}
	if _, err := c.call(ctx, http.MethodPut, pathTelemetry, bytes.NewReader(body), nil, http.StatusOK, nil); err != nil {
		err = fmt.Errorf("telemetry subscribe http call failed: %w", err)
		c.log.Error(err, "")

		return err
	}
	c.log.V(1).Info("subscribed to telemetry", "types", subscribeReq.Types, "uri", subscribeReq.Destination.URI)

	return nil
}
