// Package items is the sample HTTP API function instrumented by the telemetry extension.
// It serves API Gateway HTTP API routes and stores items in DynamoDB.
package items
