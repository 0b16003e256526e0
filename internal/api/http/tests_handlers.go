package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/grk-zapadnaya/assessment/internal/assessment"
	"github.com/grk-zapadnaya/assessment/internal/rbac"
)

// CreateTestHandler saves a new definition, validating the authoring
// invariants before anything is persisted.
func CreateTestHandler(store assessment.DefinitionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t assessment.Test
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		saved, err := store.SaveTest(r.Context(), t)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	}
}

// UpdateTestHandler replaces a definition wholesale; there is no
// per-question edit, so scoring rules cannot drift under a live session.
func UpdateTestHandler(store assessment.DefinitionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t assessment.Test
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		t.ID = chi.URLParam(r, "testID")
		saved, err := store.SaveTest(r.Context(), t)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

// GetTestHandler serves one definition. Listeners get the sanitized view
// with correctness flags stripped; admins see the full bank.
func GetTestHandler(store assessment.DefinitionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := store.GetTest(r.Context(), chi.URLParam(r, "testID"))
		if err != nil {
			writeError(w, err)
			return
		}
		if rbac.RoleFromContext(r.Context()) != "admin" {
			t = t.ForLearner()
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func ListTestsHandler(store assessment.DefinitionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts, err := store.ListTests(r.Context(), r.URL.Query().Get("category"))
		if err != nil {
			writeError(w, err)
			return
		}
		if rbac.RoleFromContext(r.Context()) != "admin" {
			for i := range ts {
				ts[i] = ts[i].ForLearner()
			}
		}
		if ts == nil {
			ts = []assessment.Test{}
		}
		writeJSON(w, http.StatusOK, ts)
	}
}

func DeleteTestHandler(store assessment.DefinitionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteTest(r.Context(), chi.URLParam(r, "testID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
