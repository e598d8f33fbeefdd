// JSON response helpers and server-level errors.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorDetails is the structured error payload: kind code plus a
// human-readable message, never a stack trace.
type ErrorDetails struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error ErrorDetails `json:"error"`
}

// serverError is a transport-level failure (bad payload, denied path)
// that does not originate in the engine taxonomy.
type serverError struct {
	status  int
	code    string
	message string
}

func (e *serverError) Error() string { return e.message }

func errBadRequest(format string, args ...any) error {
	return &serverError{status: http.StatusBadRequest, code: "BAD_REQUEST", message: fmt.Sprintf(format, args...)}
}

func errForbidden(format string, args ...any) error {
	return &serverError{status: http.StatusForbidden, code: "FORBIDDEN", message: fmt.Sprintf(format, args...)}
}

func asServerError(err error, target **serverError) bool {
	return errors.As(err, target)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are sent; nothing left to do for the client.
		_ = err
	}
}

func respondError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	respondJSON(w, status, ErrorResponse{Error: ErrorDetails{Code: code, Message: err.Error()}})
}

// decodeBody parses the JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errBadRequest("invalid request body: %v", err)
	}
	return nil
}
