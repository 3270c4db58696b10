package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const tableWaitTimeout = 2 * time.Minute

type TableAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// EnsureTable creates the single table keyed by PK and SK unless it already
// exists, then waits until it becomes active.
func (s *Store) EnsureTable(ctx context.Context, client TableAPI) error {
	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: s.table,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrPK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrSK), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrPK), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrSK), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})

	var inUse *types.ResourceInUseException

	switch {
	case errors.As(err, &inUse):
		s.l.LogDebugf("DynamoDB table %s already exists", aws.ToString(s.table))
	case err != nil:
		return fmt.Errorf("create table %s: %w", aws.ToString(s.table), err)
	default:
		s.l.LogInfo("DynamoDB table %s has been created", aws.ToString(s.table))
	}

	waiter := dynamodb.NewTableExistsWaiter(client)

	//nolint:exhaustruct
	if err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: s.table}, tableWaitTimeout); err != nil {
		return fmt.Errorf("wait for table %s: %w", aws.ToString(s.table), err)
	}

	return nil
}
