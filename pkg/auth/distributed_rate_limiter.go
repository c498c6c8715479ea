package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// CounterStore is the part of the DynamoDB client the distributed limiter uses
type CounterStore interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DistributedRateLimiter counts requests per fixed window in the canvas
// table, so the limit holds across Lambda instances. Counter items carry a
// TTL and expire an hour after their window closes.
type DistributedRateLimiter struct {
	client    CounterStore
	tableName string
	limit     atomic.Int64
	window    time.Duration
	keyPrefix string
	now       func() time.Time
}

var _ RateLimiter = (*DistributedRateLimiter)(nil)

// NewDistributedIPRateLimiter creates a rate limiter for IP addresses
func NewDistributedIPRateLimiter(client CounterStore, tableName string, requestsPerMinute int) *DistributedRateLimiter {
	return NewDistributedRateLimiter(client, tableName, requestsPerMinute, time.Minute, "IP")
}

// NewDistributedUserRateLimiter creates a rate limiter for user IDs
func NewDistributedUserRateLimiter(client CounterStore, tableName string, requestsPerMinute int) *DistributedRateLimiter {
	return NewDistributedRateLimiter(client, tableName, requestsPerMinute, time.Minute, "USER")
}

// NewDistributedRateLimiter creates a generic distributed rate limiter
func NewDistributedRateLimiter(client CounterStore, tableName string, limit int, window time.Duration, keyPrefix string) *DistributedRateLimiter {
	l := &DistributedRateLimiter{
		client:    client,
		tableName: tableName,
		window:    window,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
	l.limit.Store(int64(limit))
	return l
}

func (r *DistributedRateLimiter) key(key string, windowStart time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("RATELIMIT#%s#%s", r.keyPrefix, key)},
		"SK": &types.AttributeValueMemberS{Value: "WINDOW#" + strconv.FormatInt(windowStart.Unix(), 10)},
	}
}

// Allow increments the counter of the current window unless it has reached
// the limit. Store errors fail open and are returned for logging.
func (r *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowStart := r.now().Truncate(r.window)
	windowEnd := windowStart.Add(r.window)

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 r.key(key, windowStart),
		UpdateExpression:    aws.String("SET #count = if_not_exists(#count, :zero) + :incr, #ttl = :ttl"),
		ConditionExpression: aws.String("attribute_not_exists(#count) OR #count < :limit"),
		ExpressionAttributeNames: map[string]string{
			"#count": "Count",
			"#ttl":   "TTL",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero":  &types.AttributeValueMemberN{Value: "0"},
			":incr":  &types.AttributeValueMemberN{Value: "1"},
			":limit": &types.AttributeValueMemberN{Value: strconv.FormatInt(r.limit.Load(), 10)},
			":ttl":   &types.AttributeValueMemberN{Value: strconv.FormatInt(windowEnd.Add(time.Hour).Unix(), 10)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return true, fmt.Errorf("rate limiter error (failing open): %w", err)
	}
	return true, nil
}

// Reset clears the counter of the current window for key
func (r *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       r.key(key, r.now().Truncate(r.window)),
	})
	return err
}

// SetLimit changes the per-window limit; the next request sees it
func (r *DistributedRateLimiter) SetLimit(limit int) {
	r.limit.Store(int64(limit))
}

// Limit returns the configured per-window limit
func (r *DistributedRateLimiter) Limit() int {
	return int(r.limit.Load())
}
