package kvstore

import (
	"context"
	"errors"
)

// Identity keys. Each key is owned by the session manager.
const (
	KeyToken        = "token"
	KeyUserID       = "user_id"
	KeyRole         = "role"
	KeyProfileName  = "profile_name"
	KeyProfileEmail = "profile_email"
	KeyLastActive   = "last_active_at"
)

// IdentityKeys is the full set removed on logout.
var IdentityKeys = []string{KeyToken, KeyUserID, KeyRole, KeyProfileName, KeyProfileEmail, KeyLastActive}

var (
	// ErrNotFound is returned by Get for absent keys.
	ErrNotFound = errors.New("kvstore: key not found")

	// ErrEmptyKey is returned when a key is empty.
	ErrEmptyKey = errors.New("kvstore: empty key")
)

// Store persists string values under string keys.
type Store interface {
	// Get returns the value under key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key.
	Set(ctx context.Context, key, value string) error

	// Remove deletes all given keys as a single operation. Absent keys are ignored.
	Remove(ctx context.Context, keys ...string) error
}

// Lookup returns the value under key, or "" when it is absent.
func Lookup(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}
