package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/compare_and_delete.lua
var compareAndDeleteScript string

//go:embed scripts/compare_and_set.lua
var compareAndSetScript string

// pendingMarker holds an idempotency key while its request is still running.
const pendingMarker = "pending"

// ErrRequestInFlight is returned when an idempotency key is claimed but has no result yet.
var ErrRequestInFlight = errors.New("request with this idempotency key is still in progress")

type Client struct {
	rdb       *redis.Client
	cadScript *redis.Script
	casScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing go-redis client
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:       rdb,
		cadScript: redis.NewScript(compareAndDeleteScript),
		casScript: redis.NewScript(compareAndSetScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// NextSequence atomically increments the named counter with INCR
func (c *Client) NextSequence(ctx context.Context, name string) (int64, error) {
	v, err := c.rdb.Incr(ctx, sequenceKey(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s failed: %w", name, err)
	}
	return v, nil
}

// ClaimIdempotencyKey marks key as in progress. Returns false if it was already claimed.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, idempotencyKey(key), pendingMarker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim idempotency key failed: %w", err)
	}
	return ok, nil
}

// CompleteIdempotencyKey stores the resource id produced for a claimed key
func (c *Client) CompleteIdempotencyKey(ctx context.Context, key string, resourceID int64, ttl time.Duration) error {
	res, err := c.casScript.Run(ctx, c.rdb, []string{idempotencyKey(key)},
		pendingMarker, strconv.FormatInt(resourceID, 10), expirySeconds(ttl)).Result()
	if err != nil {
		return fmt.Errorf("complete idempotency key script failed: %w", err)
	}
	if n, ok := res.(int64); !ok || n != 1 {
		return fmt.Errorf("idempotency key %s was not pending", key)
	}
	return nil
}

// AbandonIdempotencyKey frees a claimed key whose request failed, so it can be retried
func (c *Client) AbandonIdempotencyKey(ctx context.Context, key string) error {
	_, err := c.cadScript.Run(ctx, c.rdb, []string{idempotencyKey(key)}, pendingMarker).Result()
	if err != nil {
		return fmt.Errorf("abandon idempotency key script failed: %w", err)
	}
	return nil
}

// LookupIdempotencyKey returns the resource id stored for key.
// found is false if the key is unknown; ErrRequestInFlight if it is claimed but not complete.
func (c *Client) LookupIdempotencyKey(ctx context.Context, key string) (resourceID int64, found bool, err error) {
	v, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup idempotency key failed: %w", err)
	}
	if v == pendingMarker {
		return 0, true, ErrRequestInFlight
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency value for %s: %w", key, err)
	}
	return id, true, nil
}

// AcquireLock acquires a distributed lock held under token
func (c *Client) AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
}

// ReleaseLock releases a distributed lock only if token still holds it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.cadScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	return err
}

// expirySeconds rounds ttl to whole seconds for SET EX, which rejects 0.
func expirySeconds(ttl time.Duration) int64 {
	if secs := int64(ttl / time.Second); secs > 0 {
		return secs
	}
	return 1
}

func sequenceKey(name string) string {
	return fmt.Sprintf("sequence:%s", name)
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:trade:%s", key)
}
