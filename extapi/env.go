package extapi

import (
	"os"
	"strconv"
)

// Reserved runtime environment variables.
// https://docs.aws.amazon.com/lambda/latest/dg/configuration-envvars.html#configuration-envvars-runtime

// EnvXAmznTraceID returns the X-Ray tracing header.
func EnvXAmznTraceID() string {
	return os.Getenv("_X_AMZN_TRACE_ID")
}

func EnvAWSRegion() string {
	return os.Getenv("AWS_REGION")
}

func EnvAWSLambdaFunctionName() string {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME")
}

// EnvAWSLambdaFunctionMemorySizeMB returns 0 when the variable is not set or malformed.
func EnvAWSLambdaFunctionMemorySizeMB() int {
	n, _ := strconv.Atoi(os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE"))

	return n
}

func EnvAWSLambdaFunctionVersion() string {
	return os.Getenv("AWS_LAMBDA_FUNCTION_VERSION")
}

// EnvAWSLambdaInitializationType returns on-demand, provisioned-concurrency or snap-start.
func EnvAWSLambdaInitializationType() string {
	return os.Getenv("AWS_LAMBDA_INITIALIZATION_TYPE")
}

// EnvAWSLambdaRuntimeAPI returns host:port of the runtime and extensions API.
func EnvAWSLambdaRuntimeAPI() string {
	return os.Getenv("AWS_LAMBDA_RUNTIME_API")
}

// EnvAWSLambdaLogGroupName returns the CloudWatch log group of the function.
// It is not set when the function logs elsewhere.
func EnvAWSLambdaLogGroupName() string {
	return os.Getenv("AWS_LAMBDA_LOG_GROUP_NAME")
}

func EnvAWSLambdaLogStreamName() string {
	return os.Getenv("AWS_LAMBDA_LOG_STREAM_NAME")
}

// OpenTelemetry layer environment variables.

// EnvAWSLambdaExecWrapper returns the wrapper script which starts the function with auto-instrumentation,
// e.g. /opt/otel-handler.
func EnvAWSLambdaExecWrapper() string {
	return os.Getenv("AWS_LAMBDA_EXEC_WRAPPER")
}

// EnvOpenTelemetryCollectorConfigFile returns the collector configuration location, e.g. /var/task/collector.yaml.
func EnvOpenTelemetryCollectorConfigFile() string {
	return os.Getenv("OPENTELEMETRY_COLLECTOR_CONFIG_FILE")
}

func EnvOTELExporterOTLPEndpoint() string {
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

// EnvOTELExporterOTLPHeaders returns comma separated key=value pairs, e.g. Authorization=Bearer <token>.
func EnvOTELExporterOTLPHeaders() string {
	return os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")
}
