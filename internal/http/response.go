package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"financeflow/internal/core"
	"financeflow/internal/log"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidCredentials), errors.Is(err, core.ErrNotAuthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Internal errors are logged
// and hidden from the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", log.FieldError, err)
		writeError(w, status, "internal server error")
		return
	}

	resp := errorResponse{Error: err.Error()}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	writeJSON(w, status, resp)
}

func fieldError(field string, err error) error {
	return &core.ValidationError{Field: field, Reason: err.Error()}
}
