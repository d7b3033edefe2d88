package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("failed to encode response")
	}
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Details any                 `json:"details,omitempty"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr := resolve(err)
	WriteJSON(w, StatusOf(appErr), ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}

// WriteTextError writes the error message as text/plain. The room grant
// endpoint answers this way so browser clients can show the body as is.
func WriteTextError(w http.ResponseWriter, err error) {
	appErr := resolve(err)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(StatusOf(appErr))
	_, _ = w.Write([]byte(appErr.Message))
}

func resolve(err error) *apperrors.AppError {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		log.Error().Err(err).Msg("unhandled error")
		return apperrors.Internal("An unexpected error occurred")
	}
	return appErr
}

// StatusOf returns the HTTP status for an AppError.
func StatusOf(appErr *apperrors.AppError) int {
	if appErr.Status != 0 {
		return appErr.Status
	}
	return statusFromCode(appErr.Code)
}

// statusFromCode maps ErrorCode to HTTP status code
func statusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeMissingRequired:
		return http.StatusBadRequest

	// 401 Unauthorized
	case apperrors.ErrCodeUnauthorized,
		apperrors.ErrCodeInvalidToken,
		apperrors.ErrCodeTokenExpired,
		apperrors.ErrCodeInvalidCredential:
		return http.StatusUnauthorized

	// 403 Forbidden
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden

	// 404 Not Found
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound

	// 429 Too Many Requests
	case apperrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	// 502 Bad Gateway
	case apperrors.ErrCodeProviderUnavailable,
		apperrors.ErrCodeUpstreamIssuerFailure,
		apperrors.ErrCodeExternal:
		return http.StatusBadGateway

	// 500 Internal Server Error
	case apperrors.ErrCodeInternal,
		apperrors.ErrCodeDatabase,
		apperrors.ErrCodeSigningKeyMissing,
		apperrors.ErrCodeMisconfiguredIssuer:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
