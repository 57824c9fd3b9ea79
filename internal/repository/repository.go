// Package repository provides an optional, non-authoritative persistence
// adapter for issued RTA tokens. The core never requires this for
// correctness: it exists for operational replay/debugging only.
package repository

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// keyPrefix matches the wire format named in the external interfaces:
// rtatoken:<session_id_hex>.
const keyPrefix = "rtatoken:"

// TokenRepository persists encoded RTA tokens keyed by session id.
type TokenRepository struct {
	client *redis.Client
}

// New opens a repository connection against redisURL.
func New(redisURL string) (*TokenRepository, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return &TokenRepository{client: client}, nil
}

// Close releases the repository's connection.
func (r *TokenRepository) Close() error {
	return r.client.Close()
}

// Save stores the encoded token bytes under rtatoken:<session_id_hex>.
func (r *TokenRepository) Save(ctx context.Context, sessionIDHex string, encoded []byte) error {
	if err := r.client.Set(ctx, keyPrefix+sessionIDHex, encoded, 0).Err(); err != nil {
		return fmt.Errorf("saving token for session %s: %w", sessionIDHex, err)
	}
	return nil
}

// Get retrieves the encoded token bytes for a session id, if saved.
func (r *TokenRepository) Get(ctx context.Context, sessionIDHex string) ([]byte, error) {
	data, err := r.client.Get(ctx, keyPrefix+sessionIDHex).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("token for session %s: %w", sessionIDHex, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting token for session %s: %w", sessionIDHex, err)
	}
	return data, nil
}

// ErrNotFound is returned when no token has been saved for a session.
var ErrNotFound = fmt.Errorf("token not found")
