package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/grk-zapadnaya/assessment/internal/assessment"
	"github.com/grk-zapadnaya/assessment/internal/auth"
	"github.com/grk-zapadnaya/assessment/internal/eventlog"
	"github.com/grk-zapadnaya/assessment/internal/session"
)

// Manager owns the live sessions of this process. The engine itself keeps
// no clock and persists nothing mid-flight; the manager checks the
// deadline cooperatively on every call, finishes expired sessions on the
// session's behalf, and persists the Result exactly once. An abandoned
// session is simply dropped and no Result is ever written for it.
type Manager struct {
	mu   sync.Mutex
	live map[string]*liveSession

	factory  *session.Factory
	history  assessment.ResultHistory
	registry assessment.ProtocolRegistry
	events   *eventlog.Repo // optional
	now      func() time.Time
}

type liveSession struct {
	sess             *session.Session
	ownerSub         string
	listenerName     string
	listenerPosition string

	historyDone bool
	record      *assessment.ProtocolRecord
}

func NewManager(factory *session.Factory, history assessment.ResultHistory, registry assessment.ProtocolRegistry, events *eventlog.Repo, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		live:     map[string]*liveSession{},
		factory:  factory,
		history:  history,
		registry: registry,
		events:   events,
		now:      now,
	}
}

type sessionView struct {
	SessionID     string                `json:"sessionId"`
	TestID        string                `json:"testId"`
	TestTitle     string                `json:"testTitle"`
	Status        session.Status        `json:"status"`
	CurrentIndex  int                   `json:"currentIndex"`
	TimeBudget    int                   `json:"timeBudget"`
	Remaining     int                   `json:"remaining"`
	AnsweredCount int                   `json:"answeredCount"`
	Questions     []assessment.Question `json:"questions"`
}

func (m *Manager) view(ls *liveSession) sessionView {
	s := ls.sess
	return sessionView{
		SessionID:     s.ID(),
		TestID:        s.TestID(),
		TestTitle:     s.TestTitle(),
		Status:        s.Status(),
		CurrentIndex:  s.CurrentIndex(),
		TimeBudget:    s.TimeBudget(),
		Remaining:     s.Remaining(m.now()),
		AnsweredCount: s.AnsweredCount(),
		Questions:     s.Questions(),
	}
}

// StartSessionHandler opens an attempt for the signed-in listener.
// POST /sessions {"testId":"...","timed":true,"sampleSize":10}
func (m *Manager) StartSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TestID     string `json:"testId"`
			Timed      bool   `json:"timed"`
			SampleSize int    `json:"sampleSize"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.TestID == "" {
			http.Error(w, "testId required", http.StatusBadRequest)
			return
		}
		s, err := m.factory.Start(r.Context(), req.TestID, session.Config{
			Timed:      req.Timed,
			SampleSize: req.SampleSize,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		ls := &liveSession{sess: s}
		if c, ok := auth.ClaimsFromContext(r.Context()); ok {
			ls.ownerSub = c.Sub
			ls.listenerName = c.Name
			ls.listenerPosition = c.Position
		}
		m.mu.Lock()
		m.live[s.ID()] = ls
		m.mu.Unlock()
		writeJSON(w, http.StatusCreated, m.view(ls))
	}
}

// AnswerHandler upserts one answer. A selection payload toggles an
// option; a text payload replaces the free-text response.
// POST /sessions/{sessionID}/answers
//
//	{"questionId":"q1","answerId":"a2","selected":true}
//	{"questionId":"q3","text":"..."}
func (m *Manager) AnswerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuestionID string  `json:"questionId"`
			AnswerID   string  `json:"answerId"`
			Selected   *bool   `json:"selected"`
			Text       *string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		m.withSession(w, r, func(ctx context.Context, ls *liveSession) error {
			if req.Text != nil {
				return ls.sess.AnswerText(req.QuestionID, *req.Text)
			}
			selected := true
			if req.Selected != nil {
				selected = *req.Selected
			}
			return ls.sess.Answer(req.QuestionID, req.AnswerID, selected)
		})
	}
}

// SeekHandler repositions the cursor. POST /sessions/{sessionID}/seek {"index":4}
func (m *Manager) SeekHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Index int `json:"index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		m.withSession(w, r, func(ctx context.Context, ls *liveSession) error {
			return ls.sess.Seek(req.Index)
		})
	}
}

// GetSessionHandler returns the current state (and, like every call,
// finishes the session first if its deadline has passed).
func (m *Manager) GetSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.withSession(w, r, func(ctx context.Context, ls *liveSession) error {
			return nil
		})
	}
}

// FinishHandler seals the attempt and returns the scored result plus the
// issued protocol record. Finishing twice returns the same result.
func (m *Manager) FinishHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		m.mu.Lock()
		defer m.mu.Unlock()
		ls, err := m.lookupLocked(r, id)
		if err != nil {
			writeError(w, err)
			return
		}
		result, err := m.finalizeLocked(r.Context(), ls)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"result":   result,
			"protocol": ls.record,
		})
	}
}

// AbandonHandler discards a session without producing a Result.
// DELETE /sessions/{sessionID}
func (m *Manager) AbandonHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, err := m.lookupLocked(r, id); err != nil {
			writeError(w, err)
			return
		}
		delete(m.live, id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// withSession runs op under the manager lock after the cooperative
// deadline check, then renders the session view.
func (m *Manager) withSession(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, ls *liveSession) error) {
	id := chi.URLParam(r, "sessionID")
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, err := m.lookupLocked(r, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if ls.sess.Expired(m.now()) {
		if _, err := m.finalizeLocked(r.Context(), ls); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := op(r.Context(), ls); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.view(ls))
}

func (m *Manager) lookupLocked(r *http.Request, id string) (*liveSession, error) {
	ls, ok := m.live[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, assessment.ErrNotFound)
	}
	if c, ok := auth.ClaimsFromContext(r.Context()); ok && c.Role != "admin" && ls.ownerSub != "" && ls.ownerSub != c.Sub {
		return nil, fmt.Errorf("session %q: %w", id, assessment.ErrNotFound)
	}
	return ls, nil
}

// finalizeLocked finishes the session and persists its Result to the
// history and the protocol registry exactly once each; Finish itself is
// idempotent, so a retried call only redoes the persistence that failed.
func (m *Manager) finalizeLocked(ctx context.Context, ls *liveSession) (assessment.Result, error) {
	result, err := ls.sess.Finish(m.now())
	if err != nil {
		return assessment.Result{}, err
	}
	if !ls.historyDone {
		if err := m.history.Append(ctx, result); err != nil {
			return assessment.Result{}, err
		}
		ls.historyDone = true
		m.appendEvent(ctx, eventlog.TypeResultRecorded, result.TestID, result)
	}
	if ls.record == nil {
		rec, err := m.registry.Record(ctx, result, ls.listenerName, ls.listenerPosition)
		if err != nil {
			return assessment.Result{}, err
		}
		ls.record = &rec
		m.appendEvent(ctx, eventlog.TypeProtocolIssued, rec.ProtocolNumber, rec)
	}
	return result, nil
}

func (m *Manager) appendEvent(ctx context.Context, typ, key string, payload any) {
	if m.events == nil {
		return
	}
	// the event log is advisory; a failed append never blocks a finish
	_ = m.events.Append(ctx, typ, key, payload)
}
