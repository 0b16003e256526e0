package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/grk-zapadnaya/assessment/internal/assessment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the engine's error taxonomy onto status codes. NotFound
// and InvalidState are recoverable and rendered for the caller; an
// exhausted allocation conflict means the storage layer is in trouble.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assessment.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, assessment.ErrInvalidDefinition):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, assessment.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, assessment.ErrConflict):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
