// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/blackjack/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list (queue) name for game action logs.
const DefaultQueueName = "blackjack_actions"

const revokedPrefix = "revoked:"

// revokeForever is the denylist TTL for tokens without an expiry.
const revokeForever = 30 * 24 * time.Hour

// Client wraps the Redis connection shared by the action publisher and the session denylist.
type Client struct {
	rdb   *redis.Client
	queue string
}

// Connect dials Redis and verifies the connection with a ping.
func Connect(ctx context.Context, addr string, db int, queue string) (*Client, error) {
	if queue == "" {
		queue = DefaultQueueName
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Client{rdb: rdb, queue: queue}, nil
}

// NewClient wraps an existing go-redis client.
func NewClient(rdb *redis.Client, queue string) *Client {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Client{rdb: rdb, queue: queue}
}

// Redis exposes the underlying client.
func (c *Client) Redis() *redis.Client { return c.rdb }

// Queue is the list the historian consumes.
func (c *Client) Queue() string { return c.queue }

func (c *Client) Close() error { return c.rdb.Close() }

// PublishGameAction serializes the record to JSON and pushes it onto the historian queue.
func (c *Client) PublishGameAction(ctx context.Context, record models.GameActionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal GameActionRecord: %w", err)
	}
	if err := c.rdb.RPush(ctx, c.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", c.queue, err)
	}
	return nil
}

// PopGameAction blocks up to timeout for the next record. It returns (nil, nil)
// when the queue stayed empty.
func (c *Client) PopGameAction(ctx context.Context, timeout time.Duration) (*models.GameActionRecord, error) {
	res, err := c.rdb.BLPop(ctx, timeout, c.queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("BLPop %s: %w", c.queue, err)
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return nil, nil
	}
	var record models.GameActionRecord
	if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	return &record, nil
}

// ErrBadRecord marks a queue entry that could not be decoded. The entry is already consumed.
var ErrBadRecord = errors.New("invalid action record")

// RevokeToken adds a token id to the denylist until ttl passes.
// A ttl of 0 is used for tokens that never expire.
func (c *Client) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = revokeForever
	}
	return c.rdb.Set(ctx, revokedPrefix+tokenID, 1, ttl).Err()
}

func (c *Client) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, revokedPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
