// Package elastic ships Telemetry API events to Elasticsearch.
// Log lines become CloudWatch shaped log documents and invocation reports become
// Lambda metric documents. Both get service.name from the ingest rule table before they are sent,
// so they land in Elastic with the same service.name as the traces of the function.
package elastic
