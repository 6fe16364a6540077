package ingest_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/ingest"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/record"
)

const defaultTableYAML = `
rules:
  - kind: log
    pipeline: logs-aws.cloudwatch_logs@custom
    match: awscloudwatch.log_group
    dissect:
      field: awscloudwatch.log_group
      pattern: "/aws/lambda/%{service.name}"
      ignore_missing: true
      ignore_failure: true
  - kind: metric
    pipeline: metrics-aws.lambda@custom
    set:
      field: service.name
      copy_from: aws.dimensions.FunctionName
      ignore_failure: true
`

func TestLoadTable(t *testing.T) {
	t.Parallel()

	table, err := ingest.LoadTable(strings.NewReader(defaultTableYAML))
	require.NoError(t, err)

	want := ingest.DefaultTable()
	require.Len(t, table, len(want))
	for i := range want {
		require.Equal(t, want[i].Kind, table[i].Kind)
		require.Equal(t, want[i].Pipeline, table[i].Pipeline)
		require.Equal(t, want[i].Match, table[i].Match)
		require.Equal(t, want[i].PipelineDefinition(), table[i].PipelineDefinition())
	}

	router := ingest.NewRouter(table)
	rec := record.Record{"awscloudwatch": map[string]any{"log_group": "/aws/lambda/OrderService"}}
	res := router.Route(rec)
	require.True(t, res.Applied)
	name, _ := rec.GetString(ingest.FieldServiceName)
	require.Equal(t, "OrderService", name)
}

func TestLoadTable_IgnoreFlagsDefaultToTrue(t *testing.T) {
	t.Parallel()

	table, err := ingest.LoadTable(strings.NewReader(`
rules:
  - kind: log
    pipeline: logs-aws.cloudwatch_logs@custom
    dissect:
      field: awscloudwatch.log_group
      pattern: "/aws/lambda/%{service.name}"
  - kind: metric
    pipeline: metrics-aws.lambda@custom
    set:
      field: service.name
      copy_from: aws.dimensions.FunctionName
`))
	require.NoError(t, err)
	require.Len(t, table, 2)

	dissect := table[0].Processor.Definition()["dissect"].(map[string]any)
	require.Equal(t, true, dissect["ignore_missing"])
	require.Equal(t, true, dissect["ignore_failure"])
	set := table[1].Processor.Definition()["set"].(map[string]any)
	require.Equal(t, true, set["ignore_failure"])

	want := ingest.DefaultTable()
	for i := range want {
		require.Equal(t, want[i].PipelineDefinition(), table[i].PipelineDefinition())
	}

	rec := record.Record{"awscloudwatch": map[string]any{"log_group": "/aws/other/x"}}
	res := ingest.NewRouter(table).Route(rec)
	require.False(t, res.Applied)
	require.False(t, rec.Has(ingest.FieldServiceName))
}

func TestLoadTable_ExplicitIgnoreFlags(t *testing.T) {
	t.Parallel()

	table, err := ingest.LoadTable(strings.NewReader(`
rules:
  - kind: log
    pipeline: logs-aws.cloudwatch_logs@custom
    dissect:
      field: awscloudwatch.log_group
      pattern: "/aws/lambda/%{service.name}"
      ignore_missing: false
      ignore_failure: false
`))
	require.NoError(t, err)

	dissect := table[0].Processor.Definition()["dissect"].(map[string]any)
	require.Equal(t, false, dissect["ignore_missing"])
	require.Equal(t, false, dissect["ignore_failure"])
}

func TestLoadTable_NewShape(t *testing.T) {
	t.Parallel()

	table, err := ingest.LoadTable(strings.NewReader(`
rules:
  - kind: log
    pipeline: logs-aws.apigateway_logs@custom
    dissect:
      field: aws.apigateway.stage_arn
      pattern: "arn:aws:apigateway:%{?region}::/restapis/%{service.name}/stages/%{?stage}"
`))
	require.NoError(t, err)

	rec := record.Record{"aws": map[string]any{"apigateway": map[string]any{
		"stage_arn": "arn:aws:apigateway:eu-west-1::/restapis/orders/stages/prod",
	}}}
	res := ingest.NewRouter(table).Route(rec)
	require.NoError(t, res.Err)
	require.Equal(t, "logs-aws.apigateway_logs@custom", res.Pipeline)
	name, _ := rec.GetString(ingest.FieldServiceName)
	require.Equal(t, "orders", name)
}

func TestLoadTable_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{"empty document", ""},
		{"no rules", "rules: []"},
		{"unknown field", "rules:\n  - kind: log\n    pipeline: p\n    grok: {}\n"},
		{"no processor", "rules:\n  - kind: log\n    pipeline: p\n    match: a\n"},
		{
			"two processors",
			"rules:\n  - kind: log\n    pipeline: p\n    dissect: {field: a, pattern: '%{b}'}\n    set: {field: b, copy_from: a}\n",
		},
		{"bad pattern", "rules:\n  - kind: log\n    pipeline: p\n    dissect: {field: a, pattern: '%{b'}\n"},
		{"dissect without field", "rules:\n  - kind: log\n    pipeline: p\n    dissect: {pattern: '%{b}'}\n"},
		{"set without copy_from", "rules:\n  - kind: metric\n    pipeline: p\n    set: {field: b}\n"},
		{"empty pipeline", "rules:\n  - kind: log\n    set: {field: b, copy_from: a}\n"},
		{"unknown kind", "rules:\n  - kind: unknown\n    pipeline: p\n    set: {field: b, copy_from: a}\n"},
		{"missing kind", "rules:\n  - pipeline: p\n    set: {field: b, copy_from: a}\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ingest.LoadTable(strings.NewReader(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoadTableFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(defaultTableYAML), 0o600))

	table, err := ingest.LoadTableFile(path)
	require.NoError(t, err)
	require.Len(t, table, 2)

	_, err = ingest.LoadTableFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
