package items_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/items"
)

type putItemAPI struct {
	err   error
	input *dynamodb.PutItemInput
}

func (api *putItemAPI) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	api.input = params
	if api.err != nil {
		return nil, api.err
	}

	return &dynamodb.PutItemOutput{}, nil
}

func TestDynamoStore_Put(t *testing.T) {
	t.Parallel()

	api := &putItemAPI{}
	store := items.NewDynamoStore(api, items.DefaultTableName)
	require.NoError(t, store.Put(context.Background(), items.Item{ID: "123", Price: 12.5, Name: "myitem"}))

	require.Equal(t, aws.String(items.DefaultTableName), api.input.TableName)
	require.Equal(t, map[string]types.AttributeValue{
		"id":    &types.AttributeValueMemberS{Value: "123"},
		"price": &types.AttributeValueMemberN{Value: "12.5"},
		"name":  &types.AttributeValueMemberS{Value: "myitem"},
	}, api.input.Item)
}

func TestDynamoStore_PutFailed(t *testing.T) {
	t.Parallel()

	api := &putItemAPI{err: errors.New("ResourceNotFoundException")}
	store := items.NewDynamoStore(api, "missing")
	err := store.Put(context.Background(), items.Item{ID: "123"})
	require.ErrorContains(t, err, "dynamodb PutItem into missing failed: ResourceNotFoundException")
}
