package accesskit

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for AccessKit operations.
var (
	// ErrInvalidCredentials is returned by Authenticate for any login failure.
	// It never reveals whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("accesskit: invalid credentials")

	// ErrInvalidOrExpired is returned by ResolveSession when the token is
	// missing, malformed, expired or revoked. The cause is never surfaced.
	ErrInvalidOrExpired = errors.New("accesskit: invalid or expired session")

	// ErrInvalidToken is returned by the token verifier for any structural,
	// signature or expiry failure.
	ErrInvalidToken = errors.New("accesskit: invalid token")

	// ErrForbidden is returned when a caller is not allowed to manage access rules.
	ErrForbidden = errors.New("accesskit: forbidden")

	// ErrNotFound is returned by CRUD lookups by id or name.
	ErrNotFound = errors.New("accesskit: not found")

	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("accesskit: email already registered")

	// ErrConflict is returned when a unique key (role name, resource name,
	// role+resource rule) is already in use.
	ErrConflict = errors.New("accesskit: conflict")

	// ErrInvalidOperation is returned when an operation or permission name cannot be parsed.
	ErrInvalidOperation = errors.New("accesskit: invalid operation")

	// ErrStorage is returned when the persistence layer fails.
	ErrStorage = errors.New("accesskit: storage failure")
)

// Error wraps a sentinel error with additional context.
type Error struct {
	Err         error  // Underlying sentinel error
	Message     string // Additional context
	Resource    string // Resource involved (if applicable)
	Role        string // Role involved (if applicable)
	PrincipalID string // Principal involved (if applicable)
	Operation   string // Operation involved (if applicable)
	cause       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the underlying errors for errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Err, e.cause}
	}
	return []error{e.Err}
}

// Is checks if the error matches a target error.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithResource adds resource information to the error.
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// WithRole adds role information to the error.
func (e *Error) WithRole(role string) *Error {
	e.Role = role
	return e
}

// WithPrincipal adds principal information to the error.
func (e *Error) WithPrincipal(principalID string) *Error {
	e.PrincipalID = principalID
	return e
}

// WithOperation adds operation information to the error.
func (e *Error) WithOperation(op Operation) *Error {
	e.Operation = op.String()
	return e
}

// WithCause attaches the lower level error that triggered this one.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// storageError classifies a store failure. Domain sentinels produced by the
// store itself (not found, conflicts) pass through untouched.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrEmailTaken) {
		return err
	}
	if errors.Is(err, ErrStorage) {
		return err
	}
	return NewError(ErrStorage, op).WithCause(err)
}

// ValidationError carries field level problems found in caller input.
type ValidationError struct {
	Fields map[string]string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "accesskit: validation failed: " + strings.Join(parts, "; ")
}

// Add records a problem for a field, keeping the first message per field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// Empty reports whether no problem was recorded.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// IsValidation checks if an error is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsForbidden checks if an error is an authorization error.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStorage checks if an error comes from the persistence layer.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsInvalidSession checks if an error means the caller is not authenticated.
func IsInvalidSession(err error) bool {
	return errors.Is(err, ErrInvalidOrExpired)
}
