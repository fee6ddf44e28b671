package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/webguard-sec/webguard/internal/domain/session"
	"github.com/webguard-sec/webguard/internal/domain/user"
	"github.com/webguard-sec/webguard/internal/shared/constants"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
	"github.com/webguard-sec/webguard/internal/shared/security"
	"go.uber.org/zap"
)

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Username  string
	Email     string
	Password1 string
	Password2 string
}

// CreateUserInput is used by administrators to create accounts.
type CreateUserInput struct {
	Username  string
	Email     string
	Password  string
	Staff     bool
	Superuser bool
}

// Service provides registration, login and session handling
type Service struct {
	users    user.Repository
	sessions session.Repository
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new auth service. ttl <= 0 uses the default session
// lifetime.
func NewService(users user.Repository, sessions session.Repository, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = constants.DefaultSessionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:    users,
		sessions: sessions,
		ttl:      ttl,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register validates the sign-up form and creates the account. Every problem
// is reported at once in a *ValidationError.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*user.User, error) {
	username := strings.TrimSpace(in.Username)
	verr := &ValidationError{}

	if err := user.ValidateUsername(username); err != nil {
		verr.Add(FieldUsername, err)
	} else if _, err := s.users.FindByUsername(ctx, username); err == nil {
		verr.Add(FieldUsername, sharedErrors.ErrUserAlreadyExists)
	} else if !errors.Is(err, sharedErrors.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if in.Password1 == "" {
		verr.Add(FieldPassword1, sharedErrors.ErrEmptyPassword)
	}
	if in.Password2 == "" {
		verr.Add(FieldPassword2, sharedErrors.ErrEmptyPassword)
	}
	if in.Password1 != "" && in.Password2 != "" {
		if in.Password1 != in.Password2 {
			verr.Add(FieldPassword2, sharedErrors.ErrPasswordMismatch)
		} else {
			for _, problem := range ValidatePassword(in.Password2, username, in.Email) {
				verr.Add(FieldPassword2, problem)
			}
		}
	}

	if !verr.Empty() {
		return nil, verr
	}

	u, err := s.create(ctx, username, in.Email, in.Password1)
	if err != nil {
		if errors.Is(err, sharedErrors.ErrUserAlreadyExists) {
			verr.Add(FieldUsername, err)
			return nil, verr
		}
		return nil, err
	}

	s.logger.Info("user registered", zap.Int64("user_id", u.ID()), zap.String("username", u.Username()))
	return u, nil
}

// CreateUser creates an account outside the sign-up form. The password
// policy still applies.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*user.User, error) {
	username := strings.TrimSpace(in.Username)
	if err := user.ValidateUsername(username); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, sharedErrors.ErrEmptyPassword
	}
	if problems := ValidatePassword(in.Password, username, in.Email); len(problems) > 0 {
		return nil, problems[0]
	}

	u, err := s.build(username, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	if in.Staff || in.Superuser {
		u.GrantStaff(in.Superuser)
	}
	if err := s.users.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	s.logger.Info("user created",
		zap.Int64("user_id", u.ID()),
		zap.String("username", u.Username()),
		zap.Bool("staff", u.IsStaff()),
		zap.Bool("superuser", u.IsSuperuser()),
	)
	return u, nil
}

// Login verifies credentials and opens a session. Unknown users and wrong
// passwords both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*user.User, *session.Session, error) {
	if username == "" || password == "" {
		return nil, nil, sharedErrors.ErrInvalidCredentials
	}

	u, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, sharedErrors.ErrUserNotFound) {
		s.logger.Info("login failed", zap.String("username", username), zap.String("reason", "unknown user"))
		return nil, nil, sharedErrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}

	ok, err := security.VerifyPassword(u.PasswordHash(), password)
	if err != nil {
		s.logger.Error("stored password hash is unreadable", zap.Int64("user_id", u.ID()), zap.Error(err))
		return nil, nil, sharedErrors.ErrInvalidCredentials
	}
	if !ok {
		s.logger.Info("login failed", zap.String("username", username), zap.String("reason", "bad password"))
		return nil, nil, sharedErrors.ErrInvalidCredentials
	}

	sess, err := s.StartSession(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	return u, sess, nil
}

// StartSession opens a session for an already authenticated user and
// records the login time.
func (s *Service) StartSession(ctx context.Context, u *user.User) (*session.Session, error) {
	now := s.now()

	sess, err := session.New(u.ID(), s.ttl, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	u.RecordLogin(now)
	if err := s.users.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	s.logger.Info("user logged in", zap.Int64("user_id", u.ID()), zap.Time("expires_at", sess.ExpiresAt()))
	return sess, nil
}

// Logout ends the session behind token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Authenticate resolves a session token to its user. Expired sessions and
// sessions of deleted users are removed.
func (s *Service) Authenticate(ctx context.Context, token string) (*user.User, error) {
	if token == "" {
		return nil, sharedErrors.ErrSessionNotFound
	}

	sess, err := s.sessions.Find(ctx, token)
	if err != nil {
		return nil, err
	}

	if sess.IsExpired(s.now()) {
		if err := s.sessions.Delete(ctx, token); err != nil {
			s.logger.Warn("failed to delete expired session", zap.Error(err))
		}
		return nil, sharedErrors.ErrSessionExpired
	}

	u, err := s.users.FindByID(ctx, sess.UserID())
	if errors.Is(err, sharedErrors.ErrUserNotFound) {
		_ = s.sessions.Delete(ctx, token)
		return nil, sharedErrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session user: %w", err)
	}
	return u, nil
}

// PurgeExpired deletes every expired session.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info("expired sessions purged", zap.Int("count", n))
	}
	return n, nil
}

// ListUsers returns every account ordered by id
func (s *Service) ListUsers(ctx context.Context) ([]*user.User, error) {
	users, err := s.users.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// FindUser looks up an account by username
func (s *Service) FindUser(ctx context.Context, username string) (*user.User, error) {
	return s.users.FindByUsername(ctx, username)
}

// DeleteUser removes an account, its sessions and its scan results
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, u.ID()); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.logger.Info("user deleted", zap.Int64("user_id", u.ID()), zap.String("username", username))
	return nil
}

func (s *Service) create(ctx context.Context, username, email, password string) (*user.User, error) {
	u, err := s.build(username, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.users.Save(ctx, u); err != nil {
		if errors.Is(err, sharedErrors.ErrUserAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	return u, nil
}

func (s *Service) build(username, email, password string) (*user.User, error) {
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return user.NewUser(username, email, hash)
}
