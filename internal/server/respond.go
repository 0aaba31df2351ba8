package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

// respondJSON writes v as a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps an error from the service layer to its HTTP status.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case core.IsValidation(err), core.IsConnectivity(err),
		errors.Is(err, core.ErrUnsupportedType):
		status = http.StatusBadRequest
	case core.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrDriverUnavailable):
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}

	respondJSON(w, status, map[string]string{"error": err.Error()})
}

// userID extracts the optional user scope from the query string.
// An absent parameter means the operation is unscoped.
func userID(r *http.Request) string {
	return r.URL.Query().Get("userId")
}

// instanceID parses the instance id path parameter.
func instanceID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "instanceID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Validationf("instance id must be a positive integer")
	}
	return id, nil
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return core.Validationf("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return core.Validationf("invalid request body: %v", err)
	}
	return nil
}
