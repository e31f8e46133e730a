package sink

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/errors"
)

// RedisSink stores each result set as one string value at <prefix><name>
type RedisSink struct {
	client *redis.Client
	prefix string
}

// NewRedisSink connects and pings the server
func NewRedisSink(ctx context.Context, cfg am.RedisSinkConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.StorageIO(err, "failed to connect to Redis at "+cfg.Addr)
	}
	return NewRedisSinkFromClient(client, cfg.Prefix), nil
}

// NewRedisSinkFromClient wraps an existing client
func NewRedisSinkFromClient(client *redis.Client, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

// Save writes with SETNX so an existing name is never replaced
func (s *RedisSink) Save(ctx context.Context, name string, entries []any) (string, error) {
	data, err := encodeJSONL(entries)
	if err != nil {
		return "", err
	}
	key := s.prefix + name

	ok, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return "", errors.StorageIO(err, "failed to write results to Redis")
	}
	if !ok {
		return "", collision(name)
	}
	return "redis://" + s.client.Options().Addr + "/" + key, nil
}

// Close releases the connection pool
func (s *RedisSink) Close() error {
	return s.client.Close()
}
