package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/restobooking/config"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetSlots reads the cached slot list for one day and party size.
func (c *RedisCache) GetSlots(ctx context.Context, day string, partySize int) ([]time.Time, bool, error) {
	data, err := c.client.HGet(ctx, slotsKey(day), strconv.Itoa(partySize)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	slots, err := decodeSlots(data)
	if err != nil {
		return nil, false, err
	}
	return slots, true, nil
}

// SetSlots stores slots in the day's hash. The TTL applies to the whole day.
func (c *RedisCache) SetSlots(ctx context.Context, day string, partySize int, slots []time.Time, ttl time.Duration) error {
	payload, err := encodeSlots(slots)
	if err != nil {
		return err
	}
	key := slotsKey(day)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(partySize), payload)
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCache) InvalidateSlots(ctx context.Context, days ...string) error {
	if len(days) == 0 {
		return nil
	}
	keys := make([]string, 0, len(days))
	for _, day := range days {
		keys = append(keys, slotsKey(day))
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *RedisCache) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

// CompareAndDelete removes key if its value is still value.
func (c *RedisCache) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	deleted, err := releaseScript.Run(ctx, c.client, []string{key}, value).Int()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}

func encodeSlots(slots []time.Time) ([]byte, error) {
	if slots == nil {
		slots = []time.Time{}
	}
	payload, err := json.Marshal(slots)
	if err != nil {
		return nil, fmt.Errorf("encode slots: %w", err)
	}
	return payload, nil
}

func decodeSlots(data []byte) ([]time.Time, error) {
	var slots []time.Time
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	return slots, nil
}

func slotsKey(day string) string {
	return "cache:slots:" + day
}

// LockKey names the lock guarding one sweep across worker processes.
func LockKey(name string) string {
	return "lock:" + name
}
