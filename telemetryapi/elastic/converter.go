package elastic

import (
	"time"

	lambdaext "github.com/zakharovvi/aws-lambda-elastic-telemetry"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/extapi"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/record"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/telemetryapi"
)

// Data streams of the Elastic AWS integration.
const (
	DatasetCloudWatchLogs = "aws.cloudwatch_logs"
	DatasetLambda         = "aws.lambda"
	DefaultNamespace      = "default"
)

// Environment describes the execution environment of the function.
type Environment struct {
	Region string
	// LogGroup defaults to /aws/lambda/<function name>.
	LogGroup  string
	LogStream string
}

// EnvironmentFromEnv reads the Lambda reserved environment variables.
func EnvironmentFromEnv() Environment {
	return Environment{
		Region:    extapi.EnvAWSRegion(),
		LogGroup:  extapi.EnvAWSLambdaLogGroupName(),
		LogStream: extapi.EnvAWSLambdaLogStreamName(),
	}
}

// DocumentConverter creates Elasticsearch documents from Telemetry API events.
// Documents carry the fields the ingest rules read, service.name is left to them.
type DocumentConverter struct {
	functionName string
	version      lambdaext.FunctionVersion
	accountID    string
	env          Environment
	namespace    string
}

func NewDocumentConverter(registerResp *extapi.RegisterResponse, env Environment, namespace string) *DocumentConverter {
	if env.LogGroup == "" {
		env.LogGroup = lambdaext.LogGroupName(registerResp.FunctionName)
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	return &DocumentConverter{
		functionName: registerResp.FunctionName,
		version:      registerResp.FunctionVersion,
		accountID:    registerResp.AccountID,
		env:          env,
		namespace:    namespace,
	}
}

// Convert returns the document of a log line or an invocation report.
// It reports false for other events.
func (c *DocumentConverter) Convert(event telemetryapi.Event) (record.Record, bool) {
	switch r := event.Record.(type) {
	case telemetryapi.RecordFunction:
		return c.logDocument(event.Time, "function", r.LogRecord), true
	case telemetryapi.RecordExtension:
		return c.logDocument(event.Time, "extension", r.LogRecord), true
	case telemetryapi.RecordPlatformReport:
		return c.metricDocument(event.Time, r), true
	default:
		return nil, false
	}
}

func (c *DocumentConverter) logDocument(t time.Time, source string, line telemetryapi.LogRecord) record.Record {
	awscloudwatch := map[string]any{
		"log_group": c.env.LogGroup,
	}
	if c.env.LogStream != "" {
		awscloudwatch["log_stream"] = c.env.LogStream
	}

	doc := record.Record{
		"@timestamp":    timestamp(t),
		"message":       line.Message,
		"awscloudwatch": awscloudwatch,
		"cloud":         c.cloud(),
		"data_stream":   c.dataStream("logs", DatasetCloudWatchLogs),
		"event": map[string]any{
			"dataset": DatasetCloudWatchLogs,
		},
		"log": map[string]any{
			"logger": source,
		},
	}
	if line.Level != "" {
		doc["log"].(map[string]any)["level"] = line.Level
	}
	if line.RequestID != "" {
		doc["faas"] = map[string]any{"execution": string(line.RequestID)}
	}

	return doc
}

func (c *DocumentConverter) metricDocument(t time.Time, report telemetryapi.RecordPlatformReport) record.Record {
	dimensions := map[string]any{
		"FunctionName": c.functionName,
	}
	if c.version != "" && c.version != lambdaext.FunctionVersionLatest {
		dimensions["Resource"] = c.functionName + ":" + string(c.version)
	}

	errorCount := 0
	if report.Status != telemetryapi.StatusSuccess {
		errorCount = 1
	}
	metrics := map[string]any{
		"Duration":       map[string]any{"avg": report.Metrics.Duration.Milliseconds()},
		"BilledDuration": map[string]any{"avg": report.Metrics.BilledDuration.Milliseconds()},
		"MaxMemoryUsed":  map[string]any{"avg": report.Metrics.MaxMemoryUsedMB},
		"MemorySize":     map[string]any{"avg": report.Metrics.MemorySizeMB},
		"Invocations":    map[string]any{"sum": 1},
		"Errors":         map[string]any{"sum": errorCount},
	}
	if report.Metrics.InitDuration != 0 {
		metrics["InitDuration"] = map[string]any{"avg": report.Metrics.InitDuration.Milliseconds()}
	}

	return record.Record{
		"@timestamp": timestamp(t),
		"aws": map[string]any{
			"cloudwatch": map[string]any{"namespace": "AWS/Lambda"},
			"dimensions": dimensions,
			"lambda":     map[string]any{"metrics": metrics},
		},
		"cloud":       c.cloud(),
		"data_stream": c.dataStream("metrics", DatasetLambda),
		"event": map[string]any{
			"dataset": DatasetLambda,
		},
		"faas": map[string]any{
			"execution": string(report.RequestID),
		},
		"metricset": map[string]any{
			"name": "cloudwatch",
		},
	}
}

func (c *DocumentConverter) cloud() map[string]any {
	cloud := map[string]any{
		"provider": "aws",
		"account":  map[string]any{"id": c.accountID},
	}
	if c.env.Region != "" {
		cloud["region"] = c.env.Region
	}

	return cloud
}

func (c *DocumentConverter) dataStream(typ, dataset string) map[string]any {
	return map[string]any{
		"type":      typ,
		"dataset":   dataset,
		"namespace": c.namespace,
	}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
