// Package redisblob implements the atrium.BlobStore contract on Redis.
//
// Records are plain string values; prefix listing uses SCAN so a large
// collection never blocks the server the way KEYS would.
package redisblob

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	atrium "github.com/atriumhq/atrium"
)

// Store is a Redis-backed blob store.
type Store struct {
	client *redis.Client
}

// compile-time check
var _ atrium.BlobStore = (*Store)(nil)

// New connects to the Redis instance at redisURL
// (e.g. "redis://localhost:6379/0") and verifies the connection.
func New(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("atrium/redisblob: invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("atrium/redisblob: connecting: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient wraps an existing client. Used by tests running against
// miniredis.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Get returns the value stored under key, or atrium.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, atrium.ErrKeyNotFound
	} else if err != nil {
		return nil, fmt.Errorf("atrium/redisblob: get %s: %w", key, err)
	}
	return data, nil
}

// Set stores value under key without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("atrium/redisblob: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("atrium/redisblob: delete %s: %w", key, err)
	}
	return nil
}

// List returns all keys beginning with prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("atrium/redisblob: scan %s*: %w", prefix, err)
	}
	return keys, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
