// Package handlers provides the localhost REST surface of the promptdeck
// daemon: workspace CRUD, sync control, and session management.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kimhsiao/promptdeck/internal/errors"
	"github.com/kimhsiao/promptdeck/internal/logging"
)

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error("Failed to encode response", err)
	}
}

// writeError maps an application error onto an HTTP status and a JSON
// error body carrying the stable error code.
func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case errors.ErrNotFound, errors.ErrTaskNotFound, errors.ErrFolderNotFound:
		status = http.StatusNotFound
	case errors.ErrDuplicate, errors.ErrSyncConflict:
		status = http.StatusConflict
	case errors.ErrValidation, errors.ErrInvalid:
		status = http.StatusBadRequest
	case errors.ErrQuotaExceeded:
		status = http.StatusTooManyRequests
	case errors.ErrFolderProtected:
		status = http.StatusForbidden
	case errors.ErrNotAuthenticated:
		status = http.StatusUnauthorized
	}

	writeJSON(w, status, map[string]interface{}{
		"code":  string(code),
		"error": err.Error(),
	})
}

// decode reads a JSON request body.
func decode(r *http.Request, into interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return errors.Wrap(errors.ErrInvalid, "invalid request body", err)
	}
	return nil
}
