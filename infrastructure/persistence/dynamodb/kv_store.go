package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"memorymap-backend/application/ports"
	pkgerrors "memorymap-backend/pkg/errors"
)

const (
	kvPrefix = "KV#"
	kvSort   = "KV"
	kvEntity = "KV"
)

type kvItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	Value      string `dynamodbav:"Value"`
}

// KVStore is a KeyValueStore sharing the memory table.
type KVStore struct {
	client    Client
	tableName string
}

func NewKVStore(client Client, tableName string) *KVStore {
	return &KVStore{client: client, tableName: tableName}
}

func kvKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: kvPrefix + key},
		"SK": &types.AttributeValueMemberS{Value: kvSort},
	}
}

func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            kvKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", translateError("get kv", err)
	}
	if out.Item == nil {
		return "", ports.ErrKeyNotFound
	}

	var item kvItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return "", pkgerrors.Wrap(err, "failed to unmarshal kv item")
	}
	return item.Value, nil
}

func (s *KVStore) Put(ctx context.Context, key, value string) error {
	av, err := attributevalue.MarshalMap(kvItem{
		PK:         kvPrefix + key,
		SK:         kvSort,
		EntityType: kvEntity,
		Value:      value,
	})
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal kv item")
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}); err != nil {
		return translateError("put kv", err)
	}
	return nil
}
