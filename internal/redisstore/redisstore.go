// Package redisstore keeps persistent rule storages in Redis, one hash per
// storage, so several hosts can share them.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DefaultPrefix prefixes the hash key of every storage.
const DefaultPrefix = "cellrules:ps:"

// Options configures the client.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store implements persist.Backend on Redis hashes.
type Store struct {
	c      *redis.Client
	prefix string
}

// New wraps an existing client. An empty prefix uses DefaultPrefix.
func New(c *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{c: c, prefix: prefix}
}

// Dial creates a client from opts and checks the connection.
func Dial(ctx context.Context, opts Options) (*Store, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return New(c, opts.Prefix), nil
}

func (s *Store) hash(store string) string {
	return s.prefix + store
}

// Get returns the encoded value of (store, key).
func (s *Store) Get(ctx context.Context, store, key string) ([]byte, bool, error) {
	val, err := s.c.HGet(ctx, s.hash(store), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("hget %s %s: %w", s.hash(store), key, err)
	}
	return val, true, nil
}

// Put writes the encoded value of (store, key).
func (s *Store) Put(ctx context.Context, store, key string, value []byte) error {
	if err := s.c.HSet(ctx, s.hash(store), key, value).Err(); err != nil {
		return fmt.Errorf("hset %s %s: %w", s.hash(store), key, err)
	}
	return nil
}

// Keys returns the keys of store.
func (s *Store) Keys(ctx context.Context, store string) ([]string, error) {
	keys, err := s.c.HKeys(ctx, s.hash(store)).Result()
	if err != nil {
		return nil, fmt.Errorf("hkeys %s: %w", s.hash(store), err)
	}
	return keys, nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.c.Close()
}
