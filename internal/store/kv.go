package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Get returns the encoded value of (store, key).
func (s *Store) Get(ctx context.Context, store, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE store = ? AND key = ?",
		store, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", store, key, err)
	}
	return []byte(value), true, nil
}

// Put writes the encoded value of (store, key), replacing any previous one.
func (s *Store) Put(ctx context.Context, store, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (store, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (store, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, store, key, string(value), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", store, key, err)
	}
	return nil
}

// Keys returns the keys of store in key order.
func (s *Store) Keys(ctx context.Context, store string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM kv WHERE store = ? ORDER BY key ASC",
		store,
	)
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", store, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Delete removes (store, key). Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, store, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE store = ? AND key = ?", store, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", store, key, err)
	}
	return nil
}
