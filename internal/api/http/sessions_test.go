package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/grk-zapadnaya/assessment/internal/assessment"
	"github.com/grk-zapadnaya/assessment/internal/session"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	router   *chi.Mux
	clock    *testClock
	history  assessment.ResultHistory
	registry assessment.ProtocolRegistry
}

func newHarness(t *testing.T) (*harness, assessment.Test) {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)}

	store := assessment.NewMemoryDefinitionStore()
	def := assessment.Test{
		Title: "Safety basics", PassingScore: 80, Duration: 30,
		Questions: []assessment.Question{},
	}
	for i := 0; i < 3; i++ {
		def.Questions = append(def.Questions, assessment.Question{
			ID: fmt.Sprintf("q%d", i+1), Text: fmt.Sprintf("question %d", i+1),
			Type: assessment.QuestionSingle, Points: 1,
			Answers: []assessment.Answer{
				{ID: "a", Text: "right", IsCorrect: true},
				{ID: "b", Text: "wrong"},
			},
		})
	}
	saved, err := store.SaveTest(context.Background(), def)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	history := assessment.NewMemoryResultHistory()
	registry := assessment.NewMemoryProtocolRegistry(clock.Now)
	m := NewManager(session.NewFactory(store, clock.Now), history, registry, nil, clock.Now)

	r := chi.NewRouter()
	r.Post("/sessions", m.StartSessionHandler())
	r.Get("/sessions/{sessionID}", m.GetSessionHandler())
	r.Post("/sessions/{sessionID}/answers", m.AnswerHandler())
	r.Post("/sessions/{sessionID}/seek", m.SeekHandler())
	r.Post("/sessions/{sessionID}/finish", m.FinishHandler())
	r.Delete("/sessions/{sessionID}", m.AbandonHandler())

	return &harness{router: r, clock: clock, history: history, registry: registry}, saved
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) start(t *testing.T, testID string, timed bool) sessionView {
	t.Helper()
	w := h.do(t, "POST", "/sessions", map[string]any{"testId": testID, "timed": timed})
	if w.Code != http.StatusCreated {
		t.Fatalf("start: status %d: %s", w.Code, w.Body.String())
	}
	var v sessionView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func TestSessionFlow_StartAnswerFinish(t *testing.T) {
	h, def := newHarness(t)

	v := h.start(t, def.ID, true)
	if v.Status != session.StatusInProgress || v.TimeBudget != 30*60 {
		t.Fatalf("fresh view = %+v", v)
	}
	if len(v.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(v.Questions))
	}
	for _, q := range v.Questions {
		for _, a := range q.Answers {
			if a.IsCorrect {
				t.Fatal("correctness flag leaked over the wire")
			}
		}
	}

	for _, q := range v.Questions {
		w := h.do(t, "POST", "/sessions/"+v.SessionID+"/answers",
			map[string]any{"questionId": q.ID, "answerId": "a", "selected": true})
		if w.Code != http.StatusOK {
			t.Fatalf("answer %s: status %d: %s", q.ID, w.Code, w.Body.String())
		}
	}

	h.clock.Advance(5 * time.Minute)
	w := h.do(t, "POST", "/sessions/"+v.SessionID+"/finish", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("finish: status %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		Result   assessment.Result         `json:"result"`
		Protocol assessment.ProtocolRecord `json:"protocol"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode finish: %v", err)
	}
	if out.Result.Percentage != 100 || !out.Result.Passed {
		t.Fatalf("result = %+v, want 100%% pass", out.Result)
	}
	if out.Result.TimeSpent != 5*60 {
		t.Fatalf("time spent = %d, want 300", out.Result.TimeSpent)
	}
	if out.Protocol.ProtocolNumber != "2026-0001" {
		t.Fatalf("protocol = %q, want 2026-0001", out.Protocol.ProtocolNumber)
	}

	// a second finish returns the same result and issues no new protocol
	w = h.do(t, "POST", "/sessions/"+v.SessionID+"/finish", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refinish: status %d", w.Code)
	}
	var again struct {
		Protocol assessment.ProtocolRecord `json:"protocol"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &again); err != nil {
		t.Fatal(err)
	}
	if again.Protocol.ProtocolNumber != "2026-0001" {
		t.Fatalf("refinish issued %q", again.Protocol.ProtocolNumber)
	}
	recs, _ := h.registry.List(context.Background())
	if len(recs) != 1 {
		t.Fatalf("registry has %d records, want 1", len(recs))
	}
	results, _ := h.history.List(context.Background(), "")
	if len(results) != 1 {
		t.Fatalf("history has %d results, want 1", len(results))
	}
}

func TestSessionFlow_ExpiredSessionIsAutoFinished(t *testing.T) {
	h, def := newHarness(t)
	v := h.start(t, def.ID, true)

	h.clock.Advance(31 * time.Minute)

	// past the deadline an answer call first seals the session, then the
	// answer itself is rejected against the completed state
	w := h.do(t, "POST", "/sessions/"+v.SessionID+"/answers",
		map[string]any{"questionId": "q1", "answerId": "a", "selected": true})
	if w.Code != http.StatusConflict {
		t.Fatalf("answer after deadline: status %d, want 409", w.Code)
	}

	results, _ := h.history.List(context.Background(), "")
	if len(results) != 1 {
		t.Fatalf("auto-finish should have persisted 1 result, got %d", len(results))
	}
	if results[0].TimeSpent != 30*60 {
		t.Fatalf("time spent = %d, want capped at the budget", results[0].TimeSpent)
	}

	w = h.do(t, "GET", "/sessions/"+v.SessionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get after expiry: status %d", w.Code)
	}
	var got sessionView
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != session.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
}

func TestSessionFlow_AbandonLeavesNoTrace(t *testing.T) {
	h, def := newHarness(t)
	v := h.start(t, def.ID, false)

	w := h.do(t, "DELETE", "/sessions/"+v.SessionID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("abandon: status %d, want 204", w.Code)
	}

	w = h.do(t, "GET", "/sessions/"+v.SessionID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after abandon: status %d, want 404", w.Code)
	}

	results, _ := h.history.List(context.Background(), "")
	if len(results) != 0 {
		t.Fatalf("abandon wrote %d results", len(results))
	}
	recs, _ := h.registry.List(context.Background())
	if len(recs) != 0 {
		t.Fatalf("abandon issued %d protocols", len(recs))
	}
}

func TestSessionFlow_UnknownSessionAndTest(t *testing.T) {
	h, _ := newHarness(t)

	w := h.do(t, "POST", "/sessions", map[string]any{"testId": "missing"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("start unknown test: status %d, want 404", w.Code)
	}

	w = h.do(t, "GET", "/sessions/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown session: status %d, want 404", w.Code)
	}
}
