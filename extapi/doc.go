// Package extapi is a client for the Lambda Extensions API.
// Run drives the register, event/next and error reporting loop for an Extension implementation;
// Client exposes the raw calls, including the Telemetry API subscription.
package extapi
