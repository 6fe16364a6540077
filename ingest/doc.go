// Package ingest derives a normalized service.name from AWS Lambda telemetry documents.
//
// The derivation is data-driven: a Table maps a record kind to a single ingest Processor,
// mirroring the Elasticsearch custom ingest pipelines logs-aws.cloudwatch_logs@custom
// (dissect on awscloudwatch.log_group) and metrics-aws.lambda@custom (copy of aws.dimensions.FunctionName).
// Router applies the first matching rule to a record and never fails it: enrichment is best effort.
//
// The same Table renders the Elasticsearch pipeline definitions, so documents which bypass the
// extension get identical enrichment server-side.
package ingest
