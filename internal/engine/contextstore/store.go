// internal/engine/contextstore/store.go
package contextstore

import (
	"context"
	"errors"
	"net/url"
	"time"
)

var (
	ErrUnavailable = errors.New("CONTEXT_UNAVAILABLE")
	ErrConflict    = errors.New("CONTEXT_CONFLICT")
	// ErrNoChange is returned by an UpdateFunc to leave the stored value as is.
	ErrNoChange = errors.New("no change")
)

// UpdateFunc computes the next value from the current one. exists is false
// when the key is absent or expired.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Store is a TTL key-value store with per-key read-modify-write.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Update applies fn atomically with respect to other updates of the
	// same key and returns the value now stored.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Key builds the storage key for a (user, conversation) pair. Both parts
// are escaped so a separator inside an id cannot collide with another pair.
func Key(prefix, userID, conversationID string) string {
	return prefix + ":" + url.QueryEscape(userID) + ":" + url.QueryEscape(conversationID)
}
