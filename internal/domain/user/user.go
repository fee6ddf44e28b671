package user

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

// MaxUsernameLength bounds the username column.
const MaxUsernameLength = 150

// User is an account that can log in and own scan results.
type User struct {
	id           int64
	username     string
	email        string
	passwordHash string
	isStaff      bool
	isSuperuser  bool
	createdAt    time.Time
	lastLogin    time.Time
}

// NewUser creates a user with a validated username. passwordHash must
// already be encoded.
func NewUser(username, email, passwordHash string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, fmt.Errorf("%w: password hash", sharedErrors.ErrMissingRequired)
	}

	return &User{
		username:     username,
		email:        strings.TrimSpace(email),
		passwordHash: passwordHash,
		createdAt:    time.Now().UTC(),
	}, nil
}

// Reconstruct creates a user from persisted data (for repository use)
func Reconstruct(id int64, username, email, passwordHash string, isStaff, isSuperuser bool, createdAt, lastLogin time.Time) *User {
	return &User{
		id:           id,
		username:     username,
		email:        email,
		passwordHash: passwordHash,
		isStaff:      isStaff,
		isSuperuser:  isSuperuser,
		createdAt:    createdAt,
		lastLogin:    lastLogin,
	}
}

// ValidateUsername accepts 1-150 letters, digits and @ . + - _
func ValidateUsername(username string) error {
	if username == "" {
		return sharedErrors.ErrEmptyUsername
	}
	if len([]rune(username)) > MaxUsernameLength {
		return sharedErrors.ErrUsernameTooLong
	}
	for _, r := range username {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		switch r {
		case '@', '.', '+', '-', '_':
			continue
		}
		return sharedErrors.ErrInvalidUsername
	}
	return nil
}

// Business methods

// RecordLogin stamps the last successful login.
func (u *User) RecordLogin(at time.Time) {
	u.lastLogin = at
}

// SetPasswordHash replaces the stored credential.
func (u *User) SetPasswordHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("%w: password hash", sharedErrors.ErrMissingRequired)
	}
	u.passwordHash = hash
	return nil
}

// GrantStaff marks the user as staff; superusers are always staff.
func (u *User) GrantStaff(superuser bool) {
	u.isStaff = true
	u.isSuperuser = superuser
}

// SetID is called by repositories once the user has been stored.
func (u *User) SetID(id int64) {
	u.id = id
}

// Getters (exposing internal state)

func (u *User) ID() int64 {
	return u.id
}

func (u *User) Username() string {
	return u.username
}

func (u *User) Email() string {
	return u.email
}

func (u *User) PasswordHash() string {
	return u.passwordHash
}

func (u *User) IsStaff() bool {
	return u.isStaff
}

func (u *User) IsSuperuser() bool {
	return u.isSuperuser
}

func (u *User) CreatedAt() time.Time {
	return u.createdAt
}

func (u *User) LastLogin() time.Time {
	return u.lastLogin
}
