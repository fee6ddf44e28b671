package session

import (
	"context"
	"time"
)

// Repository defines the interface for session persistence
type Repository interface {
	Save(ctx context.Context, session *Session) error

	// Find returns ErrSessionNotFound for unknown tokens; expiry is left
	// to the caller
	Find(ctx context.Context, token string) (*Session, error)

	Delete(ctx context.Context, token string) error

	// DeleteExpired removes every session expired at now and reports how many
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
