package errors

import "errors"

// Domain errors
var (
	// Scan errors
	ErrScanNotFound    = errors.New("scan result not found")
	ErrEmptyURL        = errors.New("please enter a valid URL")
	ErrInvalidURL      = errors.New("invalid URL")
	ErrURLTooLong      = errors.New("URL exceeds 500 characters")
	ErrFetchFailed     = errors.New("failed to fetch URL")
	ErrInvalidSeverity = errors.New("invalid issue severity")

	// User errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("a user with that username already exists")
	ErrEmptyUsername      = errors.New("username cannot be empty")
	ErrInvalidUsername    = errors.New("username may contain only letters, digits and @/./+/-/_ characters")
	ErrUsernameTooLong    = errors.New("username must be 150 characters or fewer")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrPasswordMismatch   = errors.New("the two password fields didn't match")
	ErrPasswordTooShort   = errors.New("password must contain at least 8 characters")
	ErrPasswordNumeric    = errors.New("password can't be entirely numeric")
	ErrPasswordSimilar    = errors.New("password is too similar to the username")
	ErrEmptyPassword      = errors.New("password cannot be empty")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// Repository errors
	ErrRepositoryOperation   = errors.New("repository operation failed")
	ErrSerializationFailed   = errors.New("serialization failed")
	ErrDeserializationFailed = errors.New("deserialization failed")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrMissingRequired = errors.New("missing required field")
)
