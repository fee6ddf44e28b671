package json

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/webguard-sec/webguard/internal/domain/session"
	"github.com/webguard-sec/webguard/internal/shared/constants"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

// SessionsFile holds the active login sessions.
const SessionsFile = "sessions.json"

type sessionDTO struct {
	Token     string `json:"token"`
	UserID    int64  `json:"user_id"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

// SessionRepository implements the session.Repository interface using JSON file storage
type SessionRepository struct {
	filePath string
	mu       sync.RWMutex
}

// NewSessionRepository creates a new JSON-based session repository
func NewSessionRepository(dataDir string) (*SessionRepository, error) {
	filePath, err := prepareFile(dataDir, SessionsFile, constants.PrivateFilePerm)
	if err != nil {
		return nil, err
	}
	return &SessionRepository{filePath: filePath}, nil
}

func (r *SessionRepository) Save(ctx context.Context, s *session.Session) error {
	return r.update(func(sessions []sessionDTO) ([]sessionDTO, int) {
		dto := sessionDTO{
			Token:     s.Token(),
			UserID:    s.UserID(),
			CreatedAt: formatTime(s.CreatedAt()),
			ExpiresAt: formatTime(s.ExpiresAt()),
		}
		for i, existing := range sessions {
			if existing.Token == dto.Token {
				sessions[i] = dto
				return sessions, 1
			}
		}
		return append(sessions, dto), 1
	})
}

func (r *SessionRepository) Find(ctx context.Context, token string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions, err := readList[sessionDTO](r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	for _, dto := range sessions {
		if dto.Token != token {
			continue
		}
		createdAt, err := parseTime(dto.CreatedAt, "created at time")
		if err != nil {
			return nil, err
		}
		expiresAt, err := parseTime(dto.ExpiresAt, "expires at time")
		if err != nil {
			return nil, err
		}
		return session.Reconstruct(dto.Token, dto.UserID, createdAt, expiresAt), nil
	}
	return nil, sharedErrors.ErrSessionNotFound
}

// Delete is a no-op for unknown tokens.
func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	return r.removeWhere(func(dto sessionDTO) bool { return dto.Token == token }, nil)
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	var parseErr error
	err := r.removeWhere(func(dto sessionDTO) bool {
		expiresAt, err := parseTime(dto.ExpiresAt, "expires at time")
		if err != nil {
			parseErr = err
			return true
		}
		return !now.Before(expiresAt)
	}, &removed)
	if err != nil {
		return 0, err
	}
	if parseErr != nil {
		return removed, fmt.Errorf("dropped unreadable session: %w", parseErr)
	}
	return removed, nil
}

// DeleteByUser removes every session of userID and reports how many
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID int64) (int, error) {
	removed := 0
	err := r.removeWhere(func(dto sessionDTO) bool { return dto.UserID == userID }, &removed)
	return removed, err
}

// Helper methods

func (r *SessionRepository) removeWhere(match func(sessionDTO) bool, removed *int) error {
	return r.update(func(sessions []sessionDTO) ([]sessionDTO, int) {
		kept := sessions[:0]
		for _, dto := range sessions {
			if !match(dto) {
				kept = append(kept, dto)
			}
		}
		n := len(sessions) - len(kept)
		if removed != nil {
			*removed = n
		}
		return kept, n
	})
}

// update applies fn and writes the file only when fn reports a change.
func (r *SessionRepository) update(fn func([]sessionDTO) ([]sessionDTO, int)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := readList[sessionDTO](r.filePath)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	sessions, changed := fn(sessions)
	if changed == 0 {
		return nil
	}

	if err := writeList(r.filePath, sessions, constants.PrivateFilePerm); err != nil {
		return fmt.Errorf("failed to save sessions: %w", err)
	}
	return nil
}

var _ session.Repository = (*SessionRepository)(nil)
