// Package redis provides a Redis implementation of the routequota.Storage interface.
// The state is one hash: a "month" field plus one counter field per API.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/routequota/pkg/routequota"
)

// Storage implements routequota.Storage using Redis
type Storage struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "routequota:")
	KeyPrefix string

	// StateTTL expires the state hash (0 = no expiration)
	StateTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "routequota:",
		// Two months covers any month in progress
		StateTTL: 62 * 24 * time.Hour,
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "routequota:"
	}
	return &Storage{client: client, config: config}, nil
}

// LoadState implements routequota.Storage
func (s *Storage) LoadState(ctx context.Context) (*routequota.State, error) {
	fields, err := s.client.HGetAll(ctx, s.stateKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load quota state: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	state := routequota.NewState(fields["month"])
	for api, raw := range fields {
		if api == "month" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			continue // corrupt counters read as zero
		}
		state.Usage[api] = n
	}
	return state, nil
}

// SaveState implements routequota.Storage. The hash is replaced in one
// MULTI/EXEC so readers never see a half-written month.
func (s *Storage) SaveState(ctx context.Context, state *routequota.State) error {
	if state == nil {
		return fmt.Errorf("state is required")
	}

	values := make([]interface{}, 0, 2+2*len(state.Usage))
	values = append(values, "month", state.Month)
	for api, n := range state.Usage {
		if api == "month" {
			continue
		}
		values = append(values, api, n)
	}

	key := s.stateKey()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values...)
		if s.config.StateTTL > 0 {
			pipe.Expire(ctx, key, s.config.StateTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save quota state: %w", err)
	}
	return nil
}

// Now implements routequota.TimeSource using the Redis server clock, so
// every process sharing the counter agrees on the month.
func (s *Storage) Now(ctx context.Context) (time.Time, error) {
	t, err := s.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read redis time: %w", err)
	}
	return t.UTC(), nil
}

// Close closes the Redis client connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Storage) stateKey() string {
	return s.config.KeyPrefix + "state"
}
