package accesskit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewError(ErrStorage, "FindRule").WithCause(cause)

	assert.Equal(t, "accesskit: storage failure: FindRule: dial tcp: refused", err.Error())
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsStorage(fmt.Errorf("wrapped: %w", err)))

	denied := NewError(ErrForbidden, "").WithResource("orders").WithRole("user").WithOperation(OpDelete)
	assert.Equal(t, ErrForbidden.Error(), denied.Error())
	assert.True(t, IsForbidden(denied))
	assert.False(t, IsNotFound(denied))
	assert.Equal(t, "delete", denied.Operation)
	assert.Equal(t, "user", denied.Role)
}

func TestStorageErrorClassification(t *testing.T) {
	assert.NoError(t, storageError("op", nil))
	for _, sentinel := range []error{ErrNotFound, ErrConflict, ErrEmailTaken} {
		assert.Same(t, sentinel, storageError("op", sentinel))
	}

	already := NewError(ErrStorage, "inner")
	assert.Same(t, already, storageError("outer", already))

	err := storageError("CreateRole", errors.New("disk full"))
	assert.True(t, IsStorage(err))
	assert.Contains(t, err.Error(), "CreateRole")
}

func TestValidationError(t *testing.T) {
	verr := &ValidationError{}
	assert.True(t, verr.Empty())

	verr.Add("password", "is required")
	verr.Add("email", "must be a valid email")
	verr.Add("password", "ignored")

	assert.False(t, verr.Empty())
	assert.Equal(t, "accesskit: validation failed: email: must be a valid email; password: is required", verr.Error())
	assert.True(t, IsValidation(fmt.Errorf("register: %w", verr)))
	assert.False(t, IsValidation(ErrConflict))
}

func TestIsInvalidSession(t *testing.T) {
	assert.True(t, IsInvalidSession(ErrInvalidOrExpired))
	assert.True(t, IsInvalidSession(NewError(ErrInvalidOrExpired, "session expired")))
	assert.False(t, IsInvalidSession(ErrInvalidCredentials))
}
