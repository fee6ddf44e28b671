package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/webguard-sec/webguard/internal/domain/session"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

// SessionRepository implements session.Repository on SQLite.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a session repository backed by db.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Save(ctx context.Context, s *session.Session) error {
	_, err := r.db.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		s.Token(), s.UserID(), formatTime(s.CreatedAt()), formatTime(s.ExpiresAt()),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Find(ctx context.Context, token string) (*session.Session, error) {
	var userID int64
	var createdRaw, expiresRaw string
	err := r.db.db.QueryRowContext(ctx,
		`SELECT user_id, created_at, expires_at FROM sessions WHERE token = ?`, token,
	).Scan(&userID, &createdRaw, &expiresRaw)
	if isNoRows(err) {
		return nil, sharedErrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	createdAt, err := parseTime(createdRaw)
	if err != nil {
		return nil, err
	}
	expiresAt, err := parseTime(expiresRaw)
	if err != nil {
		return nil, err
	}
	return session.Reconstruct(token, userID, createdAt, expiresAt), nil
}

// Delete is a no-op for unknown tokens.
func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.db.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired sessions: %w", err)
	}
	return int(n), nil
}

var _ session.Repository = (*SessionRepository)(nil)
