package sqlite

import (
	"context"
	"fmt"

	"github.com/webguard-sec/webguard/internal/domain/user"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

const selectUsers = `SELECT id, username, email, password_hash, is_staff, is_superuser, created_at, last_login FROM users`

// UserRepository implements user.Repository on SQLite.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a user repository backed by db.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Save inserts a new user or updates an existing one
func (r *UserRepository) Save(ctx context.Context, u *user.User) error {
	if u.ID() == 0 {
		res, err := r.db.db.ExecContext(ctx,
			`INSERT INTO users (username, email, password_hash, is_staff, is_superuser, created_at, last_login)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			u.Username(), u.Email(), u.PasswordHash(), boolToInt(u.IsStaff()), boolToInt(u.IsSuperuser()),
			formatTime(u.CreatedAt()), formatTime(u.LastLogin()),
		)
		if isUniqueViolation(err) {
			return sharedErrors.ErrUserAlreadyExists
		}
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read user id: %w", err)
		}
		u.SetID(id)
		return nil
	}

	res, err := r.db.db.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ?, password_hash = ?, is_staff = ?, is_superuser = ?, last_login = ?
		WHERE id = ?`,
		u.Username(), u.Email(), u.PasswordHash(), boolToInt(u.IsStaff()), boolToInt(u.IsSuperuser()),
		formatTime(u.LastLogin()), u.ID(),
	)
	if isUniqueViolation(err) {
		return sharedErrors.ErrUserAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sharedErrors.ErrUserNotFound
	}
	return nil
}

// FindByID retrieves a user by id
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*user.User, error) {
	return r.findOne(ctx, selectUsers+` WHERE id = ?`, id)
}

// FindByUsername retrieves a user by exact username
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*user.User, error) {
	return r.findOne(ctx, selectUsers+` WHERE username = ?`, username)
}

// FindAll retrieves every user ordered by id
func (r *UserRepository) FindAll(ctx context.Context) ([]*user.User, error) {
	rows, err := r.db.db.QueryContext(ctx, selectUsers+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Delete removes a user; sessions and scan results cascade
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n == 0 {
		return sharedErrors.ErrUserNotFound
	}
	return nil
}

// Helper methods

func (r *UserRepository) findOne(ctx context.Context, query string, args ...interface{}) (*user.User, error) {
	u, err := scanUser(r.db.db.QueryRowContext(ctx, query, args...))
	if isNoRows(err) {
		return nil, sharedErrors.ErrUserNotFound
	}
	return u, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*user.User, error) {
	var id int64
	var username, email, hash, createdRaw, loginRaw string
	var isStaff, isSuperuser int
	if err := row.Scan(&id, &username, &email, &hash, &isStaff, &isSuperuser, &createdRaw, &loginRaw); err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan user row: %w", err)
	}

	createdAt, err := parseTime(createdRaw)
	if err != nil {
		return nil, err
	}
	lastLogin, err := parseTime(loginRaw)
	if err != nil {
		return nil, err
	}

	return user.Reconstruct(id, username, email, hash, isStaff == 1, isSuperuser == 1, createdAt, lastLogin), nil
}

var _ user.Repository = (*UserRepository)(nil)
