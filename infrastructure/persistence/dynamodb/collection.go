package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	"memorymap-backend/domain/core/entities"
	pkgerrors "memorymap-backend/pkg/errors"
)

const (
	userPrefix   = "USER#"
	memoryPrefix = "MEMORY#"
	memoryEntity = "MEMORY"
)

// memoryItem is the stored shape of one memory.
type memoryItem struct {
	PK          string  `dynamodbav:"PK"`
	SK          string  `dynamodbav:"SK"`
	EntityType  string  `dynamodbav:"EntityType"`
	ID          string  `dynamodbav:"id"`
	Description string  `dynamodbav:"description"`
	Date        string  `dynamodbav:"date"`
	Lat         float64 `dynamodbav:"lat"`
	Lng         float64 `dynamodbav:"lng"`
	Address     string  `dynamodbav:"address"`
	Timestamp   int64   `dynamodbav:"timestamp"`
}

func (i memoryItem) memory() entities.Memory {
	id := i.ID
	if id == "" {
		id = strings.TrimPrefix(i.SK, memoryPrefix)
	}
	return entities.Memory{
		ID:          id,
		Description: i.Description,
		Date:        i.Date,
		Lat:         i.Lat,
		Lng:         i.Lng,
		Address:     i.Address,
		Timestamp:   i.Timestamp,
	}
}

func memoryKey(scope, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: userPrefix + scope},
		"SK": &types.AttributeValueMemberS{Value: memoryPrefix + id},
	}
}

// Collection is a RemoteCollection over DynamoDB. DynamoDB has no push
// listeners, so each subscription polls its partition and delivers the
// member set whenever it differs from the last one delivered.
type Collection struct {
	client       Client
	tableName    string
	pollInterval time.Duration
	clock        clock.Clock
	logger       *zap.Logger
}

// NewCollection creates a collection on tableName.
func NewCollection(client Client, tableName string, pollInterval time.Duration, clk clock.Clock, logger *zap.Logger) *Collection {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Collection{
		client:       client,
		tableName:    tableName,
		pollInterval: pollInterval,
		clock:        clk,
		logger:       logger.With(zap.String("component", "dynamodb_collection"), zap.String("table", tableName)),
	}
}

// Subscribe starts polling scope. The first poll always delivers, even an
// empty partition. A failed poll is reported once and ends the
// subscription.
func (c *Collection) Subscribe(ctx context.Context, scope string, onSnapshot ports.SnapshotCallback, onError ports.ErrorCallback) (ports.Subscription, error) {
	pollCtx, cancel := context.WithCancel(ctx)
	sub := &pollSubscription{cancel: cancel, done: make(chan struct{})}
	go c.poll(pollCtx, scope, onSnapshot, onError, sub.done)
	return sub, nil
}

func (c *Collection) poll(ctx context.Context, scope string, onSnapshot ports.SnapshotCallback, onError ports.ErrorCallback, done chan struct{}) {
	defer close(done)

	var last string
	delivered := false
	for {
		records, err := c.List(ctx, scope)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("Poll failed", zap.String("scope", scope), zap.Error(err))
			onError(err)
			return
		}

		fp, err := fingerprint(records)
		if err != nil {
			onError(pkgerrors.Wrap(err, "failed to fingerprint member set"))
			return
		}
		if !delivered || fp != last {
			delivered = true
			last = fp
			onSnapshot(records)
		}

		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.pollInterval):
		}
	}
}

// List returns every memory record in scope.
func (c *Collection) List(ctx context.Context, scope string) ([]entities.Record, error) {
	keyExpr := expression.Key("PK").Equal(expression.Value(userPrefix + scope)).
		And(expression.Key("SK").BeginsWith(memoryPrefix))

	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(c.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var records []entities.Record
	for {
		out, err := c.client.Query(ctx, input)
		if err != nil {
			return nil, translateError("query memories", err)
		}
		for _, raw := range out.Items {
			var item memoryItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				c.logger.Warn("Failed to parse item", zap.String("scope", scope), zap.Error(err))
				continue
			}
			records = append(records, item.memory().ToRecord())
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return records, nil
}

// GenerateID returns a random id; DynamoDB does not allocate keys.
func (c *Collection) GenerateID(_ context.Context, _ string) (string, error) {
	return uuid.NewString(), nil
}

// Write puts the record, replacing any existing item with the same id.
func (c *Collection) Write(ctx context.Context, scope, id string, record entities.Record) error {
	if id == "" {
		return pkgerrors.NewValidationError("record id is required")
	}
	m := entities.MemoryFromRecord(id, record)
	item := memoryItem{
		PK:          userPrefix + scope,
		SK:          memoryPrefix + id,
		EntityType:  memoryEntity,
		ID:          id,
		Description: m.Description,
		Date:        m.Date,
		Lat:         m.Lat,
		Lng:         m.Lng,
		Address:     m.Address,
		Timestamp:   m.Timestamp,
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal memory item")
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      av,
	})
	if err != nil {
		return translateError("put memory", err)
	}

	c.logger.Debug("Memory written", zap.String("scope", scope), zap.String("id", id))
	return nil
}

// Delete removes the record. A missing record is reported as not found.
func (c *Collection) Delete(ctx context.Context, scope, id string) error {
	cond := expression.AttributeExists(expression.Name("PK"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(c.tableName),
		Key:                       memoryKey(scope, id),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		err = translateError("delete memory", err)
		if pkgerrors.IsConflict(err) {
			return pkgerrors.NewNotFoundError("memory").WithDetail("id", id)
		}
		return err
	}
	return nil
}

type pollSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Close stops polling and waits for the poller to exit. It must not be
// called from inside a subscription callback.
func (s *pollSubscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// fingerprint canonicalises a member set for change detection. Record maps
// encode with sorted keys, so equal sets encode identically.
func fingerprint(records []entities.Record) (string, error) {
	b, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
