package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/itsobito471-bot/thebottlestories/pkg/database"
	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
)

const keyPrefix = "storefront:device:"

// Storage keeps each device's keys in one Redis hash. Every write refreshes
// the hash TTL, so a device's state expires ttl after its last write.
type Storage struct {
	client *redis.Client
	ttl    time.Duration
	tracer database.QueryTracer
}

// NewStorage creates a Redis-backed device storage.
func NewStorage(client *redis.Client, ttl time.Duration) *Storage {
	return &Storage{
		client: client,
		ttl:    ttl,
		tracer: database.QueryTracer{System: "redis"},
	}
}

func deviceKey(deviceID string) string {
	return keyPrefix + deviceID
}

func (s *Storage) Load(ctx context.Context, deviceID, key string) (_ []byte, err error) {
	ctx, end := s.tracer.Start(ctx, "HGET", "device", key)
	defer func() { end(err) }()

	data, err := s.client.HGet(ctx, deviceKey(deviceID), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound(key, deviceID)
		}
		return nil, fmt.Errorf("redis hget %s: %w", key, err)
	}
	return data, nil
}

func (s *Storage) Store(ctx context.Context, deviceID, key string, value []byte) (err error) {
	ctx, end := s.tracer.Start(ctx, "HSET", "device", key)
	defer func() { end(err) }()

	hash := deviceKey(deviceID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hash, key, value)
		if s.ttl > 0 {
			pipe.Expire(ctx, hash, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Remove(ctx context.Context, deviceID, key string) (err error) {
	ctx, end := s.tracer.Start(ctx, "HDEL", "device", key)
	defer func() { end(err) }()

	if err = s.client.HDel(ctx, deviceKey(deviceID), key).Err(); err != nil {
		return fmt.Errorf("redis hdel %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity for readiness probes.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
