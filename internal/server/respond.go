package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/Chase-Garrett/towhee/internal/gateway"
	"github.com/Chase-Garrett/towhee/internal/store"
)

// apiError carries an HTTP status alongside the client-facing message.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string { return e.Message }

func httpError(status int, message string) *apiError {
	return &apiError{Status: status, Message: message}
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.logger.Error("encode response failed", slog.Any("error", err))
		}
	}
}

// respondError maps an error onto a JSON {"message": ...} response. Unknown
// errors become opaque 500s.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var apiErr *apiError
	switch {
	case errors.As(err, &apiErr):
		s.respond(w, apiErr.Status, map[string]string{"message": apiErr.Message})
	case errors.Is(err, store.ErrNotFound), errors.Is(err, gateway.ErrChannelNotFound):
		s.respond(w, http.StatusNotFound, map[string]string{"message": "not found"})
	case errors.Is(err, gateway.ErrAccessDenied):
		s.respond(w, http.StatusForbidden, map[string]string{"message": "access denied"})
	case errors.Is(err, store.ErrDuplicate):
		s.respond(w, http.StatusConflict, map[string]string{"message": "already exists"})
	default:
		s.logger.Error("request failed", slog.Any("error", err))
		s.respond(w, http.StatusInternalServerError, map[string]string{"message": "internal server error"})
	}
}

// decodeBody unmarshals and validates a request body against the struct's
// validate tags.
func (s *Server) decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return httpError(http.StatusBadRequest, "malformed request body")
	}
	if err := s.validate.Struct(v); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return httpError(http.StatusInternalServerError, "validation misconfigured")
		}
		return httpError(http.StatusBadRequest, err.Error())
	}
	return nil
}
