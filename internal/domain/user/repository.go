package user

import "context"

// Repository defines the interface for user persistence
type Repository interface {
	// Save inserts a new user (assigning its id) or updates an existing one
	Save(ctx context.Context, user *User) error

	// FindByID retrieves a user by id
	FindByID(ctx context.Context, id int64) (*User, error)

	// FindByUsername retrieves a user by exact username
	FindByUsername(ctx context.Context, username string) (*User, error)

	// FindAll retrieves every user ordered by id
	FindAll(ctx context.Context) ([]*User, error)

	// Delete removes a user together with their sessions and scan results
	Delete(ctx context.Context, id int64) error
}
