// Package lambdaext holds scalar types shared by the Lambda API clients, the telemetry decoders
// and the document converters.
package lambdaext

import (
	"encoding/json"
	"fmt"
	"time"
)

type AWSLambdaRuntimeAPI string

type RequestID string

type ExtensionName string

type FunctionVersion string

// FunctionVersionLatest is reported for unpublished function code.
const FunctionVersionLatest FunctionVersion = "$LATEST"

// https://docs.aws.amazon.com/lambda/latest/dg/telemetry-schema-reference.html#InitType
type InitType string

const (
	InitTypeOnDemand               InitType = "on-demand"
	InitTypeProvisionedConcurrency InitType = "provisioned-concurrency"
	InitTypeSnapStart              InitType = "snap-start"
)

// https://docs.aws.amazon.com/lambda/latest/dg/telemetry-schema-reference.html#TracingType
type TracingType string

const TracingTypeAWSXRay TracingType = "X-Amzn-Trace-Id"

type TracingValue string

// DurationMs is a duration reported by Lambda as a (possibly fractional) number of milliseconds.
type DurationMs time.Duration

func (d *DurationMs) UnmarshalJSON(b []byte) error {
	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("could not decode duration in milliseconds from %s: %w", b, err)
	}
	*d = DurationMs(ms * float64(time.Millisecond))

	return nil
}

// Milliseconds returns the duration as a floating point number of milliseconds.
func (d DurationMs) Milliseconds() float64 {
	return float64(time.Duration(d)) / float64(time.Millisecond)
}

// LogGroupName returns the default CloudWatch log group of a function.
func LogGroupName(functionName string) string {
	return "/aws/lambda/" + functionName
}
