// Package redisx wraps go-redis with the handful of operations the worker
// needs, adding per-operation logging and error context.
package redisx

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/avi3tal/agentrunner/internal/logging"
)

// ErrNotFound is returned when a key or hash field does not exist.
var ErrNotFound = errors.New("redis: key not found")

// Client wraps redis.Client. Safe for concurrent use by all workers.
type Client struct {
	redis *redis.Client
	log   *logging.Logger
}

// NewClient wraps an existing redis.Client.
func NewClient(rdb *redis.Client, log *logging.Logger) *Client {
	return &Client{redis: rdb, log: log}
}

// Dial connects to Redis and verifies the connection with a ping.
func Dial(ctx context.Context, addr, password string, db int, log *logging.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", addr)
	}
	log.Info("redis connection established", "addr", addr, "db", db)
	return &Client{redis: rdb, log: log}, nil
}

// Underlying exposes the raw client for operations not covered here.
func (c *Client) Underlying() *redis.Client {
	return c.redis
}

// Get retrieves a string value. Missing keys yield ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		c.log.Debug("redis GET key not found", "key", key)
		return "", errors.Wrapf(ErrNotFound, "key %s", key)
	}
	if err != nil {
		c.log.Error("redis GET failed", "key", key, "error", err)
		return "", errors.Wrapf(err, "failed to get key %s", key)
	}
	return val, nil
}

// Set stores a string value with an optional expiry (0 = none).
func (c *Client) Set(ctx context.Context, key, value string, expiry time.Duration) error {
	if err := c.redis.Set(ctx, key, value, expiry).Err(); err != nil {
		c.log.Error("redis SET failed", "key", key, "error", err)
		return errors.Wrapf(err, "failed to set key %s", key)
	}
	c.log.Debug("redis SET", "key", key)
	return nil
}

// GetHash retrieves a hash field. Missing fields yield ErrNotFound.
func (c *Client) GetHash(ctx context.Context, key, field string) (string, error) {
	val, err := c.redis.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		c.log.Debug("redis HGET field not found", "key", key, "field", field)
		return "", errors.Wrapf(ErrNotFound, "field %s.%s", key, field)
	}
	if err != nil {
		c.log.Error("redis HGET failed", "key", key, "field", field, "error", err)
		return "", errors.Wrapf(err, "failed to get hash %s field %s", key, field)
	}
	return val, nil
}

// SetHash sets a hash field value.
func (c *Client) SetHash(ctx context.Context, key, field, value string) error {
	if err := c.redis.HSet(ctx, key, field, value).Err(); err != nil {
		c.log.Error("redis HSET failed", "key", key, "field", field, "error", err)
		return errors.Wrapf(err, "failed to set hash %s field %s", key, field)
	}
	return nil
}

// PushToList appends values to the right of a list.
func (c *Client) PushToList(ctx context.Context, key string, values ...any) error {
	if err := c.redis.RPush(ctx, key, values...).Err(); err != nil {
		c.log.Error("redis RPUSH failed", "key", key, "error", err)
		return errors.Wrapf(err, "failed to rpush to %s", key)
	}
	c.log.Debug("redis RPUSH", "key", key, "count", len(values))
	return nil
}

// CreateStreamGroup creates a consumer group, creating the stream if it
// does not exist yet. An already-existing group is not an error.
func (c *Client) CreateStreamGroup(ctx context.Context, stream, group string) error {
	err := c.redis.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		c.log.Error("redis XGROUP CREATE failed", "stream", stream, "group", group, "error", err)
		return errors.Wrapf(err, "failed to create group %s on stream %s", group, stream)
	}
	c.log.Debug("redis XGROUP CREATE", "stream", stream, "group", group)
	return nil
}

// ReadFromStreamGroup reads up to count messages for a consumer, blocking
// up to the given timeout. A timeout yields (nil, nil), not an error.
func (c *Client) ReadFromStreamGroup(ctx context.Context, group, consumer, stream string, count int64, block time.Duration) ([]redis.XMessage, error) {
	streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read stream %s as %s", stream, consumer)
	}
	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

// AckStreamMessage acknowledges a message, removing it from the pending set.
func (c *Client) AckStreamMessage(ctx context.Context, stream, group, messageID string) error {
	if err := c.redis.XAck(ctx, stream, group, messageID).Err(); err != nil {
		c.log.Error("redis XACK failed", "stream", stream, "message_id", messageID, "error", err)
		return errors.Wrapf(err, "failed to ack message %s", messageID)
	}
	c.log.Debug("redis XACK", "stream", stream, "message_id", messageID)
	return nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.redis.Close()
}
