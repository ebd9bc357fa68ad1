package blobstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores each collection blob under a prefixed Redis string key.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr, prefix string) *Redis {
	if prefix == "" {
		prefix = "qrattend:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{client: client, prefix: prefix}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.client == nil {
		return false
	}
	return r.client.Ping(ctx).Err() == nil
}

// Get returns the blob for key, or nil when absent.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// Set stores value under key without expiry.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
