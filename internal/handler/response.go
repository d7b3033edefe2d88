package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// decodeOptionalJSON accepts an empty body as the zero value.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return bodyError(err, "Invalid JSON body")
}

func bodyError(err error, message string) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "Request body too large").WithStatus(http.StatusRequestEntityTooLarge)
	}
	return apperrors.ValidationError(message)
}
