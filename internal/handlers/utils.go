package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/darbyjahn/smallphot0-backend/internal/access"
	"github.com/darbyjahn/smallphot0-backend/internal/catalog"
	"github.com/darbyjahn/smallphot0-backend/internal/journal"
	"github.com/darbyjahn/smallphot0-backend/internal/logging"
	"github.com/darbyjahn/smallphot0-backend/internal/mediastore"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatus writes v with the given status code.
func writeJSONStatus(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONStatus(w, statusCode, map[string]string{"error": message})
}

// writeSuccess writes the {"success": true} acknowledgement.
func writeSuccess(w http.ResponseWriter) {
	writeJSONStatus(w, http.StatusOK, map[string]bool{"success": true})
}

// errorStatus maps sentinel errors to HTTP status codes.
func errorStatus(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, catalog.ErrValidation),
		errors.Is(err, access.ErrMalformedPIN),
		errors.Is(err, mediastore.ErrInvalidID),
		errors.Is(err, mediastore.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, journal.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, access.ErrInvalidPIN):
		return http.StatusForbidden
	case errors.Is(err, access.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and hides their details from the
// client. Client errors are returned with their message.
func writeError(w http.ResponseWriter, op string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logging.Error("%s: %v", op, err)
		writeJSONError(w, "Server error", status)
		return
	}
	logging.Debug("%s: %v", op, err)
	writeJSONError(w, err.Error(), status)
}

// decodeJSON reads a JSON request body. Malformed bodies are validation
// errors.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", catalog.ErrValidation)
	}
	return nil
}
