package auth

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCounters evaluates the limiter's conditional increment in memory
type fakeCounters struct {
	counts  map[string]int
	fail    error
	deletes int
}

func keyOf(key map[string]types.AttributeValue) string {
	return key["PK"].(*types.AttributeValueMemberS).Value + "|" + key["SK"].(*types.AttributeValueMemberS).Value
}

func (f *fakeCounters) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	limit := in.ExpressionAttributeValues[":limit"].(*types.AttributeValueMemberN).Value
	k := keyOf(in.Key)
	if limitReached(f.counts[k], limit) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.counts[k]++
	return &dynamodb.UpdateItemOutput{}, nil
}

func limitReached(count int, limit string) bool {
	n, _ := strconv.Atoi(limit)
	return count >= n
}

func (f *fakeCounters) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deletes++
	delete(f.counts, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDistributedRateLimiter_FixedWindow(t *testing.T) {
	store := &fakeCounters{counts: map[string]int{}}
	l := NewDistributedUserRateLimiter(store, "canvas", 2)
	now := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "bob")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Minute)
	ok, _ = l.Allow(ctx, "alice")
	assert.True(t, ok, "a new window starts from zero")

	l.SetLimit(1)
	assert.Equal(t, 1, l.Limit())
	ok, _ = l.Allow(ctx, "alice")
	assert.False(t, ok)

	require.NoError(t, l.Reset(ctx, "alice"))
	ok, _ = l.Allow(ctx, "alice")
	assert.True(t, ok)
}

func TestDistributedRateLimiter_FailsOpen(t *testing.T) {
	store := &fakeCounters{counts: map[string]int{}, fail: errors.New("throttled")}
	l := NewDistributedIPRateLimiter(store, "canvas", 1)

	ok, err := l.Allow(context.Background(), "10.0.0.1")
	assert.True(t, ok)
	assert.Error(t, err)
}
