package essink

import (
	"bytes"
	"context"
	"fmt"
	"io"

	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	"github.com/go-logr/logr"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/ingest"
)

// PipelineDefinitions merges the rules of the table by pipeline id, keeping the table order.
func PipelineDefinitions(table ingest.Table) ([]string, map[string]map[string]any) {
	var ids []string
	defs := make(map[string]map[string]any)
	for _, rule := range table {
		def, ok := defs[rule.Pipeline]
		if !ok {
			ids = append(ids, rule.Pipeline)
			defs[rule.Pipeline] = rule.PipelineDefinition()

			continue
		}
		processors, _ := def["processors"].([]any)
		def["processors"] = append(processors, rule.Processor.Definition())
	}

	return ids, defs
}

// InstallPipelines creates or replaces the ingest pipelines of the table, so documents
// indexed without the router get the same fields.
func InstallPipelines(ctx context.Context, client *elasticsearch.Client, table ingest.Table) error {
	log := logr.FromContextOrDiscard(ctx)

	ids, defs := PipelineDefinitions(table)
	for _, id := range ids {
		body, err := json.Marshal(defs[id])
		if err != nil {
			return fmt.Errorf("could not encode pipeline %s: %w", id, err)
		}
		res, err := client.Ingest.PutPipeline(id, bytes.NewReader(body), client.Ingest.PutPipeline.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("could not put pipeline %s: %w", id, err)
		}
		respBody, _ := io.ReadAll(res.Body)
		_ = res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("could not put pipeline %s: %s %s", id, res.Status(), respBody)
		}
		log.V(1).Info("installed ingest pipeline", "id", id)
	}

	return nil
}
