// Package essink writes records to Elasticsearch data streams through the bulk API
// and installs the ingest pipelines of a rule table.
package essink
