/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/thc1006/workload-launcher/pkg/workload"
)

// listClient is the subset of *redis.Client used by RedisSource.
type listClient interface {
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisConfig configures a RedisSource.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	Queue       string
	PollTimeout time.Duration
}

// RedisSource consumes a Redis list: producers LPUSH, we BRPOP.
type RedisSource struct {
	client      listClient
	queue       string
	pollTimeout time.Duration
}

// NewRedisSource connects to Redis and verifies the connection.
func NewRedisSource(ctx context.Context, cfg RedisConfig) (*RedisSource, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return newRedisSource(rdb, cfg.Queue, cfg.PollTimeout), nil
}

func newRedisSource(client listClient, queue string, pollTimeout time.Duration) *RedisSource {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &RedisSource{client: client, queue: queue, pollTimeout: pollTimeout}
}

func (s *RedisSource) Receive(ctx context.Context) (workload.Message, error) {
	res, err := s.client.BRPop(ctx, s.pollTimeout, s.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return workload.Message{}, ErrNoMessage
		}
		if ctx.Err() != nil {
			return workload.Message{}, ctx.Err()
		}
		return workload.Message{}, fmt.Errorf("BRPOP %s: %w", s.queue, err)
	}
	// BRPOP replies with [key, value].
	if len(res) != 2 {
		return workload.Message{}, fmt.Errorf("BRPOP %s: unexpected reply of length %d", s.queue, len(res))
	}
	return Decode([]byte(res[1]))
}

func (s *RedisSource) Publish(ctx context.Context, msg workload.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode workload message: %w", err)
	}
	if err := s.client.LPush(ctx, s.queue, data).Err(); err != nil {
		return fmt.Errorf("LPUSH %s: %w", s.queue, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisSource) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSource) Close() error {
	return s.client.Close()
}
