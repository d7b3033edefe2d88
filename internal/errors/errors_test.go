package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "User not found")
		assert.Equal(t, "NOT_FOUND: User not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("database connection failed")
		err := Wrap(ErrCodeDatabase, "Database error", cause)
		assert.Contains(t, err.Error(), "DATABASE_ERROR")
		assert.Contains(t, err.Error(), "database connection failed")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"field": "room_name"}
		err := New(ErrCodeValidation, "Validation failed").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})

	t.Run("WithStatus pins status", func(t *testing.T) {
		err := Internal("boom").WithStatus(http.StatusTeapot)
		assert.Equal(t, http.StatusTeapot, err.Status)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"Unauthorized", func() *AppError { return Unauthorized("test") }, ErrCodeUnauthorized},
		{"Forbidden", func() *AppError { return Forbidden("test") }, ErrCodeForbidden},
		{"InvalidToken", func() *AppError { return InvalidToken("test") }, ErrCodeInvalidToken},
		{"TokenExpired", func() *AppError { return TokenExpired() }, ErrCodeTokenExpired},
		{"InvalidCredential", func() *AppError { return InvalidCredential("bad id token") }, ErrCodeInvalidCredential},
		{"NotFound", func() *AppError { return NotFound("User") }, ErrCodeNotFound},
		{"ValidationError", func() *AppError { return ValidationError("test") }, ErrCodeValidation},
		{"InvalidInput", func() *AppError { return InvalidInput("email", "invalid") }, ErrCodeInvalidInput},
		{"MissingRequired", func() *AppError { return MissingRequired("email") }, ErrCodeMissingRequired},
		{"RateLimitExceeded", func() *AppError { return RateLimitExceeded() }, ErrCodeRateLimitExceeded},
		{"ProviderUnavailable", func() *AppError { return ProviderUnavailable("google", nil) }, ErrCodeProviderUnavailable},
		{"SigningKeyMissing", func() *AppError { return SigningKeyMissing() }, ErrCodeSigningKeyMissing},
		{"MisconfiguredIssuer", func() *AppError { return MisconfiguredIssuer("LIVEKIT_URL is not defined") }, ErrCodeMisconfiguredIssuer},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.constructor()
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestUpstreamIssuerFailure(t *testing.T) {
	t.Run("carries upstream status and cause", func(t *testing.T) {
		cause := errors.New("403 from token endpoint")
		err := UpstreamIssuerFailure(http.StatusForbidden, cause)
		assert.Equal(t, ErrCodeUpstreamIssuerFailure, err.Code)
		assert.Equal(t, http.StatusForbidden, err.Status)
		assert.Equal(t, "Token proxy failed", err.Message)
		assert.ErrorIs(t, err, cause)
	})
}

func TestExternal(t *testing.T) {
	t.Run("wraps external service error", func(t *testing.T) {
		cause := errors.New("timeout")
		err := External("Google Calendar", cause)
		assert.Equal(t, ErrCodeExternal, err.Code)
		assert.Contains(t, err.Message, "Google Calendar")
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestAsAppError(t *testing.T) {
	t.Run("extracts wrapped AppError", func(t *testing.T) {
		original := InvalidCredential("bad code")
		wrapped := fmt.Errorf("complete login: %w", original)
		extracted, ok := AsAppError(wrapped)
		assert.True(t, ok)
		assert.Equal(t, original, extracted)
		assert.True(t, HasCode(wrapped, ErrCodeInvalidCredential))
	})

	t.Run("returns false for non-AppError", func(t *testing.T) {
		err := errors.New("standard error")
		extracted, ok := AsAppError(err)
		assert.False(t, ok)
		assert.Nil(t, extracted)
		assert.False(t, IsAppError(err))
	})
}

func TestGetCode(t *testing.T) {
	t.Run("returns code for AppError", func(t *testing.T) {
		assert.Equal(t, ErrCodeNotFound, GetCode(NotFound("x")))
	})

	t.Run("returns ErrCodeInternal for standard error", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("standard error")))
	})
}
