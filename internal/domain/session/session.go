package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

// Session binds an opaque browser token to a logged-in user.
type Session struct {
	token     string
	userID    int64
	createdAt time.Time
	expiresAt time.Time
}

// New starts a session for userID that lasts ttl from now.
func New(userID int64, ttl time.Duration, now time.Time) (*Session, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: session user", sharedErrors.ErrMissingRequired)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: session ttl must be positive", sharedErrors.ErrValidation)
	}

	return &Session{
		token:     uuid.NewString(),
		userID:    userID,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}, nil
}

// Reconstruct creates a session from persisted data (for repository use)
func Reconstruct(token string, userID int64, createdAt, expiresAt time.Time) *Session {
	return &Session{
		token:     token,
		userID:    userID,
		createdAt: createdAt,
		expiresAt: expiresAt,
	}
}

// IsExpired reports whether the session is no longer valid at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.expiresAt)
}

func (s *Session) Token() string {
	return s.token
}

func (s *Session) UserID() int64 {
	return s.userID
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Session) ExpiresAt() time.Time {
	return s.expiresAt
}
