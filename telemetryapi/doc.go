// Package telemetryapi receives and decodes Lambda Telemetry API events.
// Implement Processor and call Run from the main package of the extension.
// Decode can be used directly for custom receivers.
package telemetryapi
