// Package session keeps the shared document of each live project in Redis
// as an append-only log of document states, so a second process can join
// the session and merge it.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"contextflow/api/internal/schema"
)

// ErrNoDocument is returned by LoadState when no log exists for a project.
var ErrNoDocument = errors.New("no shared document")

const defaultTTL = 7 * 24 * time.Hour

// RedisStore is the per-project update log. Every append refreshes the
// log's TTL, so idle documents expire on their own.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed document log.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "doc:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(projectID string) string {
	return s.prefix + projectID
}

// AppendUpdate adds one document state to the end of the project's log.
func (s *RedisStore) AppendUpdate(ctx context.Context, projectID string, update schema.Update) error {
	if update.Empty() {
		return nil
	}
	data, err := update.Encode()
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}

	key := s.key(projectID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append update: %w", err)
	}
	return nil
}

// LoadState merges the whole log into one update that rebuilds the
// document from scratch.
func (s *RedisStore) LoadState(ctx context.Context, projectID string) (schema.Update, error) {
	entries, err := s.client.LRange(ctx, s.key(projectID), 0, -1).Result()
	if err != nil {
		return schema.Update{}, fmt.Errorf("load updates: %w", err)
	}
	if len(entries) == 0 {
		return schema.Update{}, fmt.Errorf("project %s: %w", projectID, ErrNoDocument)
	}

	updates := make([]schema.Update, 0, len(entries))
	for i, entry := range entries {
		update, err := schema.DecodeUpdate([]byte(entry))
		if err != nil {
			return schema.Update{}, fmt.Errorf("decode update %d: %w", i, err)
		}
		updates = append(updates, update)
	}
	state, err := schema.MergeUpdates(updates...)
	if err != nil {
		return schema.Update{}, fmt.Errorf("merge updates: %w", err)
	}
	return state, nil
}

// Compact replaces the log with a single state update.
func (s *RedisStore) Compact(ctx context.Context, projectID string, state schema.Update) error {
	data, err := state.Encode()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	key := s.key(projectID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.RPush(ctx, key, data)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("compact updates: %w", err)
	}
	return nil
}

// Length reports how many updates are in the project's log.
func (s *RedisStore) Length(ctx context.Context, projectID string) (int64, error) {
	n, err := s.client.LLen(ctx, s.key(projectID)).Result()
	if err != nil {
		return 0, fmt.Errorf("log length: %w", err)
	}
	return n, nil
}

// Drop deletes the project's log.
func (s *RedisStore) Drop(ctx context.Context, projectID string) error {
	if err := s.client.Del(ctx, s.key(projectID)).Err(); err != nil {
		return fmt.Errorf("drop document: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
