package json

import (
	"context"
	"fmt"
	"sync"

	"github.com/webguard-sec/webguard/internal/domain/user"
	"github.com/webguard-sec/webguard/internal/shared/constants"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

// UsersFile holds accounts and password hashes.
const UsersFile = "users.json"

const seqUsers = "users"

type userDTO struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email,omitempty"`
	PasswordHash string `json:"password_hash"`
	IsStaff      bool   `json:"is_staff"`
	IsSuperuser  bool   `json:"is_superuser"`
	CreatedAt    string `json:"created_at"`
	LastLogin    string `json:"last_login,omitempty"`
}

// UserRepository implements the user.Repository interface using JSON file
// storage. Deleting a user also removes their scans and sessions.
type UserRepository struct {
	filePath string
	mu       sync.RWMutex
	scans    *ScanRepository
	sessions *SessionRepository
}

// NewUserRepository creates a new JSON-based user repository. scans and
// sessions receive the cascading deletes and may be nil.
func NewUserRepository(dataDir string, scans *ScanRepository, sessions *SessionRepository) (*UserRepository, error) {
	filePath, err := prepareFile(dataDir, UsersFile, constants.PrivateFilePerm)
	if err != nil {
		return nil, err
	}
	return &UserRepository{filePath: filePath, scans: scans, sessions: sessions}, nil
}

// Save inserts a new user or updates an existing one
func (r *UserRepository) Save(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, err := readList[userDTO](r.filePath)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}

	dto := r.toDTO(u)
	var maxID int64
	index := -1
	for i, existing := range users {
		if existing.ID > maxID {
			maxID = existing.ID
		}
		if existing.ID == dto.ID {
			index = i
			continue
		}
		if existing.Username == dto.Username {
			return sharedErrors.ErrUserAlreadyExists
		}
	}

	switch {
	case dto.ID == 0:
		seq, err := readSequences(r.filePath)
		if err != nil {
			return fmt.Errorf("failed to load user ids: %w", err)
		}
		dto.ID = seq.next(seqUsers, maxID)
		if err := writeSequences(r.filePath, seq, constants.PrivateFilePerm); err != nil {
			return fmt.Errorf("failed to save user ids: %w", err)
		}
		users = append(users, dto)
	case index >= 0:
		users[index] = dto
	default:
		return sharedErrors.ErrUserNotFound
	}

	if err := writeList(r.filePath, users, constants.PrivateFilePerm); err != nil {
		return fmt.Errorf("failed to save users: %w", err)
	}

	u.SetID(dto.ID)
	return nil
}

// FindByID retrieves a user by id
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*user.User, error) {
	return r.findOne(func(dto userDTO) bool { return dto.ID == id })
}

// FindByUsername retrieves a user by exact username
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*user.User, error) {
	return r.findOne(func(dto userDTO) bool { return dto.Username == username })
}

// FindAll retrieves every user ordered by id
func (r *UserRepository) FindAll(ctx context.Context) ([]*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users, err := readList[userDTO](r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	result := make([]*user.User, 0, len(users))
	for _, dto := range users {
		u, err := r.fromDTO(dto)
		if err != nil {
			return nil, fmt.Errorf("failed to convert user %d: %w", dto.ID, err)
		}
		result = append(result, u)
	}
	return result, nil
}

// Delete removes a user, then their sessions and scan results
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, err := readList[userDTO](r.filePath)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}

	found := false
	for i, dto := range users {
		if dto.ID == id {
			users = append(users[:i], users[i+1:]...)
			found = true
			break
		}
	}

	if !found {
		return sharedErrors.ErrUserNotFound
	}

	if err := writeList(r.filePath, users, constants.PrivateFilePerm); err != nil {
		return fmt.Errorf("failed to save users: %w", err)
	}

	if r.sessions != nil {
		if _, err := r.sessions.DeleteByUser(ctx, id); err != nil {
			return fmt.Errorf("failed to delete sessions of user %d: %w", id, err)
		}
	}
	if r.scans != nil {
		if _, err := r.scans.DeleteByOwner(ctx, id); err != nil {
			return fmt.Errorf("failed to delete scans of user %d: %w", id, err)
		}
	}
	return nil
}

// Helper methods

func (r *UserRepository) findOne(match func(userDTO) bool) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users, err := readList[userDTO](r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	for _, dto := range users {
		if match(dto) {
			return r.fromDTO(dto)
		}
	}
	return nil, sharedErrors.ErrUserNotFound
}

func (r *UserRepository) toDTO(u *user.User) userDTO {
	return userDTO{
		ID:           u.ID(),
		Username:     u.Username(),
		Email:        u.Email(),
		PasswordHash: u.PasswordHash(),
		IsStaff:      u.IsStaff(),
		IsSuperuser:  u.IsSuperuser(),
		CreatedAt:    formatTime(u.CreatedAt()),
		LastLogin:    formatTime(u.LastLogin()),
	}
}

func (r *UserRepository) fromDTO(dto userDTO) (*user.User, error) {
	createdAt, err := parseTime(dto.CreatedAt, "created at time")
	if err != nil {
		return nil, err
	}
	lastLogin, err := parseTime(dto.LastLogin, "last login time")
	if err != nil {
		return nil, err
	}

	return user.Reconstruct(
		dto.ID,
		dto.Username,
		dto.Email,
		dto.PasswordHash,
		dto.IsStaff,
		dto.IsSuperuser,
		createdAt,
		lastLogin,
	), nil
}

var _ user.Repository = (*UserRepository)(nil)
