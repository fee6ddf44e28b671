package auth

import (
	"errors"
	"sort"
	"strings"
	"unicode"

	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// Form field names used in ValidationError.
const (
	FieldUsername  = "username"
	FieldEmail     = "email"
	FieldPassword1 = "password1"
	FieldPassword2 = "password2"
)

// ValidationError collects per-field messages for a form.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], "; "))
	}
	return "validation error: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error {
	return sharedErrors.ErrValidation
}

// Add records err against field.
func (e *ValidationError) Add(field string, err error) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], capitalize(err.Error())+".")
}

// Empty reports whether no field has an error.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// FieldErrors extracts the per-field messages from err, if any.
func FieldErrors(err error) map[string][]string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return nil
}

// ValidatePassword applies the password policy: minimum length, not
// entirely numeric and not too similar to the username or email.
func ValidatePassword(password, username, email string) []error {
	var problems []error

	lowered := strings.ToLower(password)
	for _, attr := range []string{username, emailLocalPart(email)} {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if attr == "" {
			continue
		}
		if tooSimilar(lowered, attr) {
			problems = append(problems, sharedErrors.ErrPasswordSimilar)
			break
		}
	}

	if len([]rune(password)) < MinPasswordLength {
		problems = append(problems, sharedErrors.ErrPasswordTooShort)
	}

	if password != "" && strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) == -1 {
		problems = append(problems, sharedErrors.ErrPasswordNumeric)
	}

	return problems
}

// tooSimilar approximates a 0.7 similarity ratio, counting the shorter
// string as the common part when one contains the other.
func tooSimilar(password, attr string) bool {
	var common int
	switch {
	case strings.Contains(password, attr):
		common = len(attr)
	case strings.Contains(attr, password):
		common = len(password)
	default:
		return false
	}
	return 20*common >= 7*(len(password)+len(attr))
}

func emailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
