package items

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// DefaultTableName is the table created by the tutorial stack.
const DefaultTableName = "http-crud-tutorial-items"

// PutItemAPI is the subset of *dynamodb.Client used by DynamoStore.
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore writes items to a DynamoDB table keyed by id. An existing item with the same id is replaced.
type DynamoStore struct {
	client PutItemAPI
	table  string
}

func NewDynamoStore(client PutItemAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

func (s *DynamoStore) Put(ctx context.Context, item Item) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("could not marshal item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("dynamodb PutItem into %s failed: %w", s.table, err)
	}

	return nil
}
