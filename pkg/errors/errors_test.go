package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationCarriesEveryDetail(t *testing.T) {
	err := Validation("student cannot be approved", "locucao: monthly price must be greater than zero", "musical: no open enrollment")

	assert.Equal(t, ErrValidation.Code, err.Code)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Len(t, err.Details, 2)
	assert.Empty(t, ErrValidation.Details)
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("approve payment: %w", Clone(ErrInvalidState, "payment already resolved"))

	assert.True(t, stdErrors.Is(wrapped, ErrInvalidState))
	assert.False(t, stdErrors.Is(wrapped, ErrNotFound))
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(stdErrors.New("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Nil(t, FromError(nil))
}

func TestWrapKeepsKindAndCause(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(cause, ErrUnauthorized, "invalid token")

	assert.Equal(t, http.StatusUnauthorized, err.Status)
	assert.Equal(t, "invalid token: connection reset", err.Error())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, ErrUnauthorized.Err)

	internal := Internal(cause, "failed to list payments")
	assert.Equal(t, ErrInternal.Code, internal.Code)
	assert.Equal(t, "failed to list payments", internal.Message)
}

func TestWithDetailsAppends(t *testing.T) {
	err := Clone(ErrConflict, "").WithDetails("email already registered")
	assert.Equal(t, ErrConflict.Message, err.Message)
	assert.Equal(t, []string{"email already registered"}, err.Details)
	assert.Empty(t, ErrConflict.Details)
}
