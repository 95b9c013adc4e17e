// Package cachesvc stores JSON values in Redis.
package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/admitdesk/admitdesk/core"
)

var _ core.Cache = (*RedisCache)(nil) // interface compliance check

type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache namespaces every key with prefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, errors.Wrap(err, "redis.Get")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, errors.Wrap(err, "json.Unmarshal")
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return errors.Wrap(err, "json.Marshal")
	}
	return errors.Wrap(c.client.Set(ctx, c.key(key), data, ttl).Err(), "redis.Set")
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return errors.Wrap(c.client.Del(ctx, full...).Err(), "redis.Del")
}

// Open connects to Redis and pings it. It returns nil, nil when addr is empty.
func Open(conf core.RedisConfig) (*redis.Client, error) {
	if conf.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis.Ping")
	}
	return client, nil
}
