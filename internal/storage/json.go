package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetJSON fetches and decodes the value at key
func GetJSON[T any](ctx context.Context, s Store, table Table, key string) (*T, error) {
	data, err := s.Get(ctx, table, key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", table, key, err)
	}
	return &v, nil
}

// PutJSON encodes and writes v at key
func PutJSON[T any](ctx context.Context, s Store, table Table, key string, v *T, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", table, key, err)
	}
	return s.Put(ctx, table, key, data, ttl)
}

// UpdateJSON atomically decodes the value at key, applies fn and writes the
// result back. fn receives nil when the key is absent and must return the
// value to store. The final written value is returned.
func UpdateJSON[T any](ctx context.Context, s Store, table Table, key string, ttl time.Duration, fn func(current *T) (*T, error)) (*T, error) {
	var written *T
	err := s.Update(ctx, table, key, ttl, func(current []byte, exists bool) ([]byte, error) {
		var cur *T
		if exists {
			cur = new(T)
			if err := json.Unmarshal(current, cur); err != nil {
				return nil, fmt.Errorf("decode %s/%s: %w", table, key, err)
			}
		}
		next, err := fn(cur)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("encode %s/%s: %w", table, key, err)
		}
		written = next
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}
