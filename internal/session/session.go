// Package session owns one learner's attempt: the fixed question
// sequence, the collected answers, and the lifecycle transitions. A
// session has a single writer by construction and does no locking; it
// also owns no clock — whoever drives it observes the deadline and calls
// Finish on its behalf.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/grk-zapadnaya/assessment/internal/assessment"
	"github.com/grk-zapadnaya/assessment/internal/scoring"
)

type Status string

const (
	StatusNotStarted Status = "not-started"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

type Session struct {
	id           string
	testID       string
	testTitle    string
	passingScore int

	// questions is the sequence fixed at start time: sampled and shuffled
	// once, then a snapshot for the session's whole lifetime.
	questions []assessment.Question

	timeBudget   int // seconds; 0 means untimed
	startedAt    time.Time
	currentIndex int
	answers      map[string]assessment.UserAnswer
	status       Status
	result       *assessment.Result

	engine *scoring.Engine
}

// New builds a not-started session over an already-fixed question
// sequence. Callers normally go through Factory.Start instead.
func New(t assessment.Test, questions []assessment.Question, timeBudgetSeconds int) *Session {
	return &Session{
		id:           uuid.NewString(),
		testID:       t.ID,
		testTitle:    t.Title,
		passingScore: t.PassingScore,
		questions:    questions,
		timeBudget:   timeBudgetSeconds,
		answers:      map[string]assessment.UserAnswer{},
		status:       StatusNotStarted,
		engine:       scoring.NewEngine(),
	}
}

func (s *Session) ID() string         { return s.id }
func (s *Session) TestID() string     { return s.testID }
func (s *Session) TestTitle() string  { return s.testTitle }
func (s *Session) Status() Status     { return s.status }
func (s *Session) CurrentIndex() int  { return s.currentIndex }
func (s *Session) TimeBudget() int    { return s.timeBudget }
func (s *Session) StartedAt() time.Time { return s.startedAt }
func (s *Session) AnsweredCount() int { return len(s.answers) }

// Questions returns the fixed sequence with correctness stripped, safe to
// render to the learner.
func (s *Session) Questions() []assessment.Question {
	out := make([]assessment.Question, len(s.questions))
	for i, q := range s.questions {
		out[i] = q.ForLearner()
	}
	return out
}

// Start transitions not-started to in-progress and records the start
// instant the deadline is measured from.
func (s *Session) Start(at time.Time) error {
	if s.status != StatusNotStarted {
		return fmt.Errorf("start: session is %s: %w", s.status, assessment.ErrInvalidState)
	}
	s.startedAt = at
	s.status = StatusInProgress
	return nil
}

// Answer upserts a selection. Single-choice questions replace the prior
// selection wholesale; multiple-choice questions toggle membership of one
// id at a time. Answering is independent of navigation: any question may
// be answered from any position, any number of times.
func (s *Session) Answer(questionID, answerID string, selected bool) error {
	q, err := s.question(questionID)
	if err != nil {
		return err
	}
	if err := s.requireInProgress("answer"); err != nil {
		return err
	}
	ua := s.answers[questionID]
	ua.QuestionID = questionID
	switch q.Type {
	case assessment.QuestionSingle:
		ua.SelectedAnswers = []string{answerID}
	case assessment.QuestionMultiple:
		ua.SelectedAnswers = toggle(ua.SelectedAnswers, answerID, selected)
	default:
		return fmt.Errorf("answer: question %q takes a text response: %w", questionID, assessment.ErrInvalidState)
	}
	s.answers[questionID] = ua
	return nil
}

// AnswerText replaces the free-text response wholesale.
func (s *Session) AnswerText(questionID, text string) error {
	q, err := s.question(questionID)
	if err != nil {
		return err
	}
	if err := s.requireInProgress("answer"); err != nil {
		return err
	}
	if q.Type != assessment.QuestionText {
		return fmt.Errorf("answer: question %q takes a selection: %w", questionID, assessment.ErrInvalidState)
	}
	ua := s.answers[questionID]
	ua.QuestionID = questionID
	ua.TextAnswer = text
	s.answers[questionID] = ua
	return nil
}

// Seek repositions the cursor. Out-of-range targets are clamped, never an
// error: navigation must not be able to wedge a session.
func (s *Session) Seek(index int) error {
	if err := s.requireInProgress("seek"); err != nil {
		return err
	}
	if index < 0 {
		index = 0
	}
	if max := len(s.questions) - 1; index > max {
		index = max
	}
	s.currentIndex = index
	return nil
}

// Finish scores the attempt and seals the session. It is the one
// irreversible transition, and it is idempotent: a second call returns
// the identical Result. A session with no answers at all still finishes
// cleanly — skipped questions score zero, they do not error.
func (s *Session) Finish(at time.Time) (assessment.Result, error) {
	if s.status == StatusCompleted {
		return *s.result, nil
	}
	if s.status != StatusInProgress {
		return assessment.Result{}, fmt.Errorf("finish: session is %s: %w", s.status, assessment.ErrInvalidState)
	}

	tally := s.engine.Score(s.questions, s.answers)
	r := assessment.Result{
		TestID:       s.testID,
		TestTitle:    s.testTitle,
		TotalPoints:  tally.TotalPoints,
		EarnedPoints: tally.EarnedPoints,
		Percentage:   tally.Percentage,
		Passed:       tally.Passed(s.passingScore),
		TimeSpent:    s.timeSpent(at),
		CompletedAt:  at,
		Answers:      s.recordedAnswers(),
	}
	s.result = &r
	s.status = StatusCompleted
	return r, nil
}

// Expired reports whether a timed in-progress session has outlived its
// budget. Untimed sessions never expire.
func (s *Session) Expired(now time.Time) bool {
	if s.timeBudget <= 0 || s.status != StatusInProgress {
		return false
	}
	return now.Sub(s.startedAt) >= time.Duration(s.timeBudget)*time.Second
}

// Remaining returns the seconds left on a timed session, zero when untimed.
func (s *Session) Remaining(now time.Time) int {
	if s.timeBudget <= 0 {
		return 0
	}
	left := s.timeBudget - int(now.Sub(s.startedAt).Seconds())
	if left < 0 {
		return 0
	}
	return left
}

func (s *Session) timeSpent(at time.Time) int {
	if s.timeBudget <= 0 {
		return 0
	}
	spent := int(at.Sub(s.startedAt).Seconds())
	if spent < 0 {
		spent = 0
	}
	if spent > s.timeBudget {
		spent = s.timeBudget
	}
	return spent
}

// recordedAnswers lists the stored answers in question-sequence order.
func (s *Session) recordedAnswers() []assessment.UserAnswer {
	out := make([]assessment.UserAnswer, 0, len(s.answers))
	for _, q := range s.questions {
		if ua, ok := s.answers[q.ID]; ok {
			out = append(out, ua)
		}
	}
	return out
}

func (s *Session) question(id string) (assessment.Question, error) {
	for _, q := range s.questions {
		if q.ID == id {
			return q, nil
		}
	}
	return assessment.Question{}, fmt.Errorf("question %q: %w", id, assessment.ErrNotFound)
}

func (s *Session) requireInProgress(op string) error {
	if s.status != StatusInProgress {
		return fmt.Errorf("%s: session is %s: %w", op, s.status, assessment.ErrInvalidState)
	}
	return nil
}

func toggle(ids []string, id string, selected bool) []string {
	out := make([]string, 0, len(ids)+1)
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	if selected {
		out = append(out, id)
	}
	return out
}
