// Package dynamodb persists memories and the notification budget in a
// single DynamoDB table using the PK/SK layout:
//
//	PK=USER#<userID>  SK=MEMORY#<memoryID>   one memory
//	PK=KV#<key>       SK=KV                  one key-value entry
package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	pkgerrors "memorymap-backend/pkg/errors"
)

// Client defines the DynamoDB operations used here, making the adapters
// testable. *dynamodb.Client satisfies it.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// NewClient creates a DynamoDB client. A non-empty endpoint overrides the
// service endpoint (DynamoDB Local, LocalStack).
func NewClient(cfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// translateError maps DynamoDB failures onto application errors.
func translateError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return pkgerrors.NewConflictError("conditional check failed").
			WithDetail("operation", operation).
			WithCause(err)
	}

	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return pkgerrors.NewDatabaseError(operation, err)
	}

	switch ae.ErrorCode() {
	case "ProvisionedThroughputExceededException", "RequestLimitExceeded", "ThrottlingException":
		return pkgerrors.NewUnavailableError("dynamodb").
			WithDetail("operation", operation).
			WithDetail("awsCode", ae.ErrorCode()).
			WithCause(err)
	case "ResourceNotFoundException":
		return pkgerrors.NewUnavailableError("dynamodb").
			WithDetail("operation", operation).
			WithDetail("awsCode", ae.ErrorCode()).
			WithCause(fmt.Errorf("table missing: %w", err))
	default:
		return pkgerrors.NewDatabaseError(operation, err).
			WithDetail("awsCode", ae.ErrorCode())
	}
}
