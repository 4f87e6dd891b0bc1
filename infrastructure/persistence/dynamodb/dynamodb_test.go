package dynamodb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	"memorymap-backend/domain/core/entities"
	pkgerrors "memorymap-backend/pkg/errors"
)

// fakeClient is an in-memory table understanding the key shapes used by
// this package. Query pages through pageSize items at a time.
type fakeClient struct {
	mu         sync.Mutex
	items      map[string]map[string]types.AttributeValue
	pageSize   int
	queries    int
	queryErr   error
	getItemErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: make(map[string]map[string]types.AttributeValue)}
}

func attrS(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func itemKey(item map[string]types.AttributeValue) string {
	return attrS(item, "PK") + "|" + attrS(item, "SK")
}

func (f *fakeClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getItemErr != nil {
		return nil, f.getItemErr
	}
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeClient) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := itemKey(in.Key)
	if _, ok := f.items[key]; !ok && in.ConditionExpression != nil {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	delete(f.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeClient) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	var pk, skPrefix string
	for _, v := range in.ExpressionAttributeValues {
		s, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		if strings.HasPrefix(s.Value, userPrefix) {
			pk = s.Value
		} else {
			skPrefix = s.Value
		}
	}

	var matched []map[string]types.AttributeValue
	for _, item := range f.items {
		if attrS(item, "PK") == pk && strings.HasPrefix(attrS(item, "SK"), skPrefix) {
			matched = append(matched, item)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return attrS(matched[i], "SK") < attrS(matched[j], "SK") })

	if in.ExclusiveStartKey != nil {
		after := attrS(in.ExclusiveStartKey, "SK")
		for len(matched) > 0 && attrS(matched[0], "SK") <= after {
			matched = matched[1:]
		}
	}

	out := &dynamodb.QueryOutput{}
	if f.pageSize > 0 && len(matched) > f.pageSize {
		matched = matched[:f.pageSize]
		last := matched[len(matched)-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"PK": last["PK"], "SK": last["SK"]}
	}
	out.Items = matched
	return out, nil
}

func (f *fakeClient) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

func (f *fakeClient) failQueries(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryErr = err
}

type recorder struct {
	mu   sync.Mutex
	sets [][]entities.Record
	errs []error
}

func (r *recorder) onSnapshot(records []entities.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets = append(r.sets, records)
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) snapshots() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sets)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) last() []entities.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sets[len(r.sets)-1]
}

const pollInterval = 2 * time.Second

func newTestCollection(client Client, clk clock.Clock) *Collection {
	return NewCollection(client, "memories", pollInterval, clk, zap.NewNop())
}

func TestCollection_WriteListDelete(t *testing.T) {
	// Arrange
	ctx := context.Background()
	client := newFakeClient()
	client.pageSize = 1
	c := newTestCollection(client, clock.NewFake())

	// Act
	require.NoError(t, c.Write(ctx, "user-1", "a", entities.Memory{
		Description: "Picnic", Date: "10/05/2023", Lat: 48.85, Lng: 2.35, Address: "Paris", Timestamp: 100,
	}.ToRecord()))
	require.NoError(t, c.Write(ctx, "user-1", "b", entities.Record{entities.FieldDescription: "Hike"}))
	require.NoError(t, c.Write(ctx, "user-2", "c", entities.Record{}))

	records, err := c.List(ctx, "user-1")

	// Assert
	require.NoError(t, err)
	require.Len(t, records, 2, "pagination follows LastEvaluatedKey")
	first := entities.MemoryFromRecord("", records[0])
	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "Picnic", first.Description)
	assert.Equal(t, 48.85, first.Lat)
	assert.Equal(t, int64(100), first.Timestamp)

	require.NoError(t, c.Delete(ctx, "user-1", "a"))
	err = c.Delete(ctx, "user-1", "a")
	assert.True(t, pkgerrors.IsNotFound(err))

	records, err = c.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCollection_WriteRequiresID(t *testing.T) {
	c := newTestCollection(newFakeClient(), clock.NewFake())

	err := c.Write(context.Background(), "user-1", "", entities.Record{})

	assert.True(t, pkgerrors.IsValidation(err))
}

func TestCollection_SubscribeDeliversOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	// Arrange
	ctx := context.Background()
	client := newFakeClient()
	clk := clock.NewFake()
	c := newTestCollection(client, clk)
	rec := &recorder{}

	// Act
	sub, err := c.Subscribe(ctx, "user-1", rec.onSnapshot, rec.onError)
	require.NoError(t, err)

	// Assert
	require.Eventually(t, func() bool { return rec.snapshots() == 1 }, time.Second, 5*time.Millisecond,
		"the first poll delivers even an empty partition")
	assert.Empty(t, rec.last())

	require.NoError(t, c.Write(ctx, "user-1", "a", entities.Record{entities.FieldDescription: "Picnic"}))
	require.Eventually(t, func() bool {
		clk.Add(pollInterval)
		return rec.snapshots() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, rec.last(), 1)

	polled := client.queryCount()
	require.Eventually(t, func() bool {
		clk.Add(pollInterval)
		return client.queryCount() >= polled+2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, rec.snapshots(), "unchanged member sets are not redelivered")

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Empty(t, rec.errors())
}

func TestCollection_PollFailureEndsSubscription(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	client := newFakeClient()
	clk := clock.NewFake()
	c := newTestCollection(client, clk)
	rec := &recorder{}

	sub, err := c.Subscribe(ctx, "user-1", rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.snapshots() == 1 }, time.Second, 5*time.Millisecond)

	client.failQueries(&smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException", Message: "slow down"})
	require.Eventually(t, func() bool {
		clk.Add(pollInterval)
		return len(rec.errors()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.True(t, pkgerrors.IsUnavailable(rec.errors()[0]))
	require.NoError(t, sub.Close())
}

func TestCollection_ContextCancelStopsPolling(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	c := newTestCollection(newFakeClient(), clock.NewFake())
	rec := &recorder{}

	sub, err := c.Subscribe(ctx, "user-1", rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	cancel()

	require.NoError(t, sub.Close())
	assert.Empty(t, rec.errors())
}

func TestKVStore(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	s := NewKVStore(client, "memories")

	_, err := s.Get(ctx, "mm:user-1:last_anniversary_notify")
	assert.ErrorIs(t, err, ports.ErrKeyNotFound)

	require.NoError(t, s.Put(ctx, "mm:user-1:last_anniversary_notify", "10/05/2024"))
	v, err := s.Get(ctx, "mm:user-1:last_anniversary_notify")
	require.NoError(t, err)
	assert.Equal(t, "10/05/2024", v)
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"conditional check", &types.ConditionalCheckFailedException{}, pkgerrors.IsConflict},
		{"throttled", &smithy.GenericAPIError{Code: "ThrottlingException"}, pkgerrors.IsUnavailable},
		{"missing table", &smithy.GenericAPIError{Code: "ResourceNotFoundException"}, pkgerrors.IsUnavailable},
		{"other api error", &smithy.GenericAPIError{Code: "ValidationException"}, func(err error) bool {
			return pkgerrors.IsType(err, pkgerrors.ErrorTypeDatabase)
		}},
		{"plain error", assert.AnError, func(err error) bool {
			return pkgerrors.IsType(err, pkgerrors.ErrorTypeDatabase)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(translateError("op", tt.err)))
		})
	}
}
