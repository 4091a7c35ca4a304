// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces keys written by RedisKV.
const DefaultKeyPrefix = "tabletop:"

// RedisKV implements KV on top of Redis.
type RedisKV struct {
	client *redis.Client
	prefix string
}

// NewRedisKV connects to redisURL and verifies the connection.
func NewRedisKV(ctx context.Context, redisURL, prefix string) (*RedisKV, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisKVWithClient(client, prefix), nil
}

// NewRedisKVWithClient wraps an existing client.
func NewRedisKVWithClient(client *redis.Client, prefix string) *RedisKV {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisKV{client: client, prefix: prefix}
}

func (r *RedisKV) key(k string) string {
	return r.prefix + k
}

// Get implements KV.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return val, nil
}

// Set implements KV. Values never expire.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete implements KV.
func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close implements KV.
func (r *RedisKV) Close() error {
	return r.client.Close()
}
