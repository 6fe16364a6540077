package extapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	jsoniter "github.com/json-iterator/go"
	lambdaext "github.com/zakharovvi/aws-lambda-elastic-telemetry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventType is the type of event returned by event/next.
type EventType string

const (
	Invoke   EventType = "INVOKE"
	Shutdown EventType = "SHUTDOWN"
)

// ShutdownReason is the reason of the SHUTDOWN event.
type ShutdownReason string

const (
	Spindown ShutdownReason = "spindown"
	Timeout  ShutdownReason = "timeout"
	// Failure covers any other shutdown cause, e.g. out of memory.
	Failure ShutdownReason = "failure"
	// ExtensionError is never sent by Lambda. Run passes it to Extension.Shutdown when the extension itself failed.
	ExtensionError ShutdownReason = "extension_error"
)

const (
	pathRegister  = "/2020-01-01/extension/register"
	pathNextEvent = "/2020-01-01/extension/event/next"
	pathTelemetry = "/2022-07-01/telemetry"

	headerName          = "Lambda-Extension-Name"
	headerID            = "Lambda-Extension-Identifier"
	headerErrorType     = "Lambda-Extension-Function-Error-Type"
	headerAcceptFeature = "Lambda-Extension-Accept-Feature"
)

type RegisterRequest struct {
	EventTypes []EventType `json:"events"`
}

// RegisterResponse describes the function the extension runs next to.
type RegisterResponse struct {
	FunctionName    string                    `json:"functionName"`
	FunctionVersion lambdaext.FunctionVersion `json:"functionVersion"`
	Handler         string                    `json:"handler"`
	// AccountID is returned only when the accountId feature is requested, which Register always does.
	AccountID string `json:"accountId"`
}

// NextEventResponse is an INVOKE or SHUTDOWN event.
type NextEventResponse struct {
	EventType EventType `json:"eventType"`
	// DeadlineMs is the invocation or shutdown deadline in epoch milliseconds.
	DeadlineMs     int64               `json:"deadlineMs"`
	RequestID      lambdaext.RequestID `json:"requestId"`
	ShutdownReason ShutdownReason      `json:"shutdownReason"`
}

// ErrorResponse is returned by init/error and exit/error.
type ErrorResponse struct {
	Status string `json:"status"`
}

// LambdaAPIError is the error body Lambda API returns with unexpected HTTP status codes.
type LambdaAPIError struct {
	Type           string `json:"errorType"`
	Message        string `json:"errorMessage"`
	HTTPStatusCode int    `json:"-"`
}

func (e LambdaAPIError) Error() string {
	return fmt.Sprintf("Lambda API returned http_status_code=%d type=%s message=%s", e.HTTPStatusCode, e.Type, e.Message)
}

type options struct {
	extensionName lambdaext.ExtensionName
	runtimeAPI    string
	eventTypes    []EventType
	log           logr.Logger
}

type Option interface {
	apply(*options)
}

type extensionNameOption lambdaext.ExtensionName

func (o extensionNameOption) apply(opts *options) {
	opts.extensionName = lambdaext.ExtensionName(o)
}

// WithExtensionName overrides the extension name. Lambda requires the executable file name
// for extensions in /opt/extensions, which is the default.
func WithExtensionName(name lambdaext.ExtensionName) Option {
	return extensionNameOption(name)
}

type runtimeAPIOption string

func (o runtimeAPIOption) apply(opts *options) {
	opts.runtimeAPI = string(o)
}

// WithAWSLambdaRuntimeAPI overrides AWS_LAMBDA_RUNTIME_API address.
func WithAWSLambdaRuntimeAPI(api string) Option {
	return runtimeAPIOption(api)
}

type eventTypesOption []EventType

func (o eventTypesOption) apply(opts *options) {
	opts.eventTypes = o
}

func WithEventTypes(types []EventType) Option {
	return eventTypesOption(types)
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

// Client calls the Extensions and Telemetry APIs on behalf of a registered extension.
// Its HTTP client has no timeout, as event/next blocks while the environment is frozen.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	extensionID  string
	registerResp *RegisterResponse
	log          logr.Logger
}

// RegisterResponse returns the function metadata received on Register.
func (c *Client) RegisterResponse() *RegisterResponse {
	return c.registerResp
}

// Register registers the extension during the Init phase and returns the Client for subsequent calls.
func Register(ctx context.Context, opts ...Option) (*Client, error) {
	executable, _ := os.Executable()
	options := options{
		extensionName: lambdaext.ExtensionName(filepath.Base(executable)),
		runtimeAPI:    EnvAWSLambdaRuntimeAPI(),
		eventTypes:    []EventType{Invoke, Shutdown},
		log:           logr.FromContextOrDiscard(ctx),
	}
	for _, o := range opts {
		o.apply(&options)
	}
	if options.runtimeAPI == "" {
		err := errors.New("AWS_LAMBDA_RUNTIME_API environment variable is not set")
		options.log.Error(err, "")

		return nil, err
	}
	options.log.V(1).Info("registering extension", "runtimeAPI", options.runtimeAPI, "name", options.extensionName)

	client := &Client{
		baseURL:    "http://" + options.runtimeAPI,
		httpClient: &http.Client{},
		log:        options.log,
	}
	if err := client.register(ctx, options.extensionName, options.eventTypes); err != nil {
		err = fmt.Errorf("could not register extension: %w", err)
		options.log.Error(err, "")

		return nil, err
	}
	client.log.V(1).Info("extension registered", "extensionID", client.extensionID, "function", client.registerResp.FunctionName)

	return client, nil
}

func (c *Client) register(ctx context.Context, name lambdaext.ExtensionName, eventTypes []EventType) error {
	body, err := json.Marshal(RegisterRequest{eventTypes})
	if err != nil {
		return fmt.Errorf("could not json encode register request: %w", err)
	}

	resp := &RegisterResponse{}
	header, err := c.call(ctx, http.MethodPost, pathRegister, bytes.NewReader(body), http.Header{
		headerName:          {string(name)},
		headerAcceptFeature: {"accountId"},
	}, http.StatusOK, resp)
	if err != nil {
		return fmt.Errorf("register http call failed: %w", err)
	}
	if c.extensionID = header.Get(headerID); c.extensionID == "" {
		return fmt.Errorf("register response has no %s header", headerID)
	}
	c.registerResp = resp

	return nil
}

// NextEvent long polls the next INVOKE or SHUTDOWN event.
func (c *Client) NextEvent(ctx context.Context) (*NextEventResponse, error) {
	event := &NextEventResponse{}
	if _, err := c.call(ctx, http.MethodGet, pathNextEvent, nil, nil, http.StatusOK, event); err != nil {
		err = fmt.Errorf("event/next call failed: %w", err)
		c.log.Error(err, "")

		return nil, err
	}
	c.log.V(1).Info("event/next received", "event", event)

	return event, nil
}

// InitError reports a failed initialization. Lambda then shuts the execution environment down.
func (c *Client) InitError(ctx context.Context, errorType string, err error) (*ErrorResponse, error) {
	return c.reportError(ctx, "init", errorType, err)
}

// ExitError reports an error before the extension exits.
func (c *Client) ExitError(ctx context.Context, errorType string, err error) (*ErrorResponse, error) {
	return c.reportError(ctx, "exit", errorType, err)
}

func (c *Client) reportError(ctx context.Context, phase, errorType string, reportErr error) (*ErrorResponse, error) {
	c.log.V(1).Info("reporting error", "phase", phase, "errorType", errorType, "error", reportErr.Error())

	path := "/2020-01-01/extension/" + phase + "/error"
	resp := &ErrorResponse{}
	_, err := c.call(ctx, http.MethodPost, path, strings.NewReader(reportErr.Error()), http.Header{
		headerErrorType: {errorType},
	}, http.StatusAccepted, resp)
	if err != nil {
		err = fmt.Errorf("%s call failed: %w", path, err)
		c.log.Error(err, "")

		return nil, err
	}

	return resp, nil
}

// call sends the request and decodes a wantStatus response into out, if out is not nil.
// Any other status is returned as LambdaAPIError when the body carries one.
func (c *Client) call(
	ctx context.Context,
	method, path string,
	body io.Reader,
	header http.Header,
	wantStatus int,
	out any,
) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("could not create http request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.extensionID != "" {
		req.Header.Set(headerID, c.extensionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read http response body: %w", err)
	}

	if resp.StatusCode != wantStatus {
		apiErr := LambdaAPIError{HTTPStatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Type == "" {
			return nil, fmt.Errorf("unexpected http status %s with body: %s", resp.Status, data)
		}

		return nil, apiErr
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("could not json decode http response %s: %w", data, err)
		}
	}

	return resp.Header, nil
}
