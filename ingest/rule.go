package ingest

import (
	"errors"
	"fmt"

	"github.com/zakharovvi/aws-lambda-elastic-telemetry/record"
)

// Kind is the record kind determined by the first matching rule.
type Kind string

const (
	KindLog     Kind = "log"
	KindMetric  Kind = "metric"
	KindUnknown Kind = "unknown"
)

// Elasticsearch custom pipeline identifiers called by the AWS integration data streams.
const (
	PipelineCloudWatchLogs = "logs-aws.cloudwatch_logs@custom"
	PipelineLambdaMetrics  = "metrics-aws.lambda@custom"
)

// LogGroupPattern extracts the function name from a Lambda log group.
const LogGroupPattern = "/aws/lambda/%{service.name}"

var (
	FieldLogGroup     = record.Field{"awscloudwatch", "log_group"}
	FieldFunctionName = record.Field{"aws", "dimensions", "FunctionName"}
	FieldServiceName  = record.Field{"service", "name"}
)

// Rule binds a record kind to the processor deriving its fields.
// A rule matches a record when Match holds a non-empty value.
type Rule struct {
	Kind      Kind
	Pipeline  string
	Match     record.Field
	Processor Processor
}

// Matches reports whether the record holds a non-empty value at the rule's Match field.
func (r Rule) Matches(rec record.Record) bool {
	v, ok := rec.Get(r.Match)
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok && s == "" {
		return false
	}

	return true
}

// PipelineDefinition renders the body of PUT _ingest/pipeline/<Pipeline>.
func (r Rule) PipelineDefinition() map[string]any {
	return map[string]any{
		"description": fmt.Sprintf("Derive %s for %s documents", targetsString(r.Processor.Targets()), r.Kind),
		"processors":  []any{r.Processor.Definition()},
	}
}

func targetsString(targets []record.Field) string {
	s := ""
	for i, t := range targets {
		if i > 0 {
			s += ", "
		}
		s += t.String()
	}

	return s
}

func (r Rule) validate() error {
	switch {
	case r.Kind == "" || r.Kind == KindUnknown:
		return fmt.Errorf("invalid rule kind %q", r.Kind)
	case r.Pipeline == "":
		return errors.New("empty pipeline id")
	case len(r.Match) == 0:
		return errors.New("empty match field")
	case r.Processor == nil:
		return errors.New("rule has no processor")
	}

	return nil
}

// Table is an ordered list of rules. The first matching rule wins.
type Table []Rule

// DefaultTable returns the Lambda rules: log group dissect first, function name copy second.
func DefaultTable() Table {
	return Table{
		{
			Kind:     KindLog,
			Pipeline: PipelineCloudWatchLogs,
			Match:    FieldLogGroup,
			Processor: Dissect{
				Field:         FieldLogGroup,
				Pattern:       MustParseDissectPattern(LogGroupPattern),
				IgnoreMissing: true,
				IgnoreFailure: true,
			},
		},
		{
			Kind:     KindMetric,
			Pipeline: PipelineLambdaMetrics,
			Match:    FieldFunctionName,
			Processor: Copy{
				From:          FieldFunctionName,
				To:            FieldServiceName,
				IgnoreFailure: true,
			},
		},
	}
}

// Validate checks every rule of the table.
func (t Table) Validate() error {
	if len(t) == 0 {
		return errors.New("rule table is empty")
	}
	for i, r := range t {
		if err := r.validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}

	return nil
}
