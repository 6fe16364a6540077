// Sample HTTP API function storing items in DynamoDB. Deploy it with the elastic-telemetry-extension layer
// to ship its logs, metrics and traces to Elastic.
package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-logr/stdr"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/items"
)

func main() {
	l := stdr.New(log.New(os.Stdout, "", log.Lshortfile))

	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		l.Error(err, "could not load aws config")
		os.Exit(1)
	}

	table := os.Getenv("ITEMS_TABLE_NAME")
	if table == "" {
		table = items.DefaultTableName
	}
	store := items.NewDynamoStore(dynamodb.NewFromConfig(cfg), table)

	lambda.Start(items.NewHandler(store, items.WithLogger(l)).Handle)
}
