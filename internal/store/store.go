// Package store is the key-value persistence contract the dispatcher state
// lives in, with Redis, Postgres, bbolt and in-memory backends.
//
// There are no multi-key transactions. Every record is read and written
// independently; SetIfAbsent is the only atomic primitive and backs the tick lock.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("store: key not found")

type Store interface {
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value without expiry. Deleting a missing key is not an error.
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// SetIfAbsent stores value with ttl only when key is absent or expired.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// DeleteIfEqual removes key only while it still holds value.
	DeleteIfEqual(ctx context.Context, key string, value []byte) (bool, error)
	// Scan lists live keys starting with prefix.
	Scan(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

type namespaced struct {
	inner  Store
	prefix string
}

// WithNamespace scopes every key under "<ns>:" so several deployments can
// share one backend. Scan results come back without the namespace.
func WithNamespace(s Store, ns string) Store {
	if ns == "" {
		return s
	}
	return &namespaced{inner: s, prefix: ns + ":"}
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

func (n *namespaced) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return n.inner.SetIfAbsent(ctx, n.prefix+key, value, ttl)
}

func (n *namespaced) DeleteIfEqual(ctx context.Context, key string, value []byte) (bool, error) {
	return n.inner.DeleteIfEqual(ctx, n.prefix+key, value)
}

func (n *namespaced) Scan(ctx context.Context, prefix string) ([]string, error) {
	keys, err := n.inner.Scan(ctx, n.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, n.prefix)
	}
	return keys, nil
}

func (n *namespaced) Close() error {
	return n.inner.Close()
}
