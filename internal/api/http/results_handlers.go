package http

import (
	"net/http"

	"github.com/grk-zapadnaya/assessment/internal/assessment"
)

// ListResultsHandler serves the result history, optionally filtered by
// test. GET /results?testId=...
func ListResultsHandler(history assessment.ResultHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs, err := history.List(r.Context(), r.URL.Query().Get("testId"))
		if err != nil {
			writeError(w, err)
			return
		}
		if rs == nil {
			rs = []assessment.Result{}
		}
		writeJSON(w, http.StatusOK, rs)
	}
}

// StatsHandler computes the summary on read. GET /results/stats?testId=...
func StatsHandler(history assessment.ResultHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := history.Aggregate(r.Context(), r.URL.Query().Get("testId"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// ListProtocolsHandler serves the registry, newest first. GET /protocols
func ListProtocolsHandler(registry assessment.ProtocolRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := registry.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if recs == nil {
			recs = []assessment.ProtocolRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

// PurgeProtocolsHandler is the administrative escape hatch; records are
// otherwise append-only. DELETE /protocols
func PurgeProtocolsHandler(registry assessment.ProtocolRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := registry.Purge(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
