package session_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/grk-zapadnaya/assessment/internal/assessment"
	"github.com/grk-zapadnaya/assessment/internal/session"
)

var t0 = time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

// threeQuestionTest: three single-choice questions worth 1 point each,
// correct option always "a", passing score 80%, duration 45 minutes.
func threeQuestionTest() assessment.Test {
	mk := func(id string) assessment.Question {
		return assessment.Question{
			ID: id, Text: "q " + id, Type: assessment.QuestionSingle, Points: 1,
			Answers: []assessment.Answer{
				{ID: "a", Text: "right", IsCorrect: true},
				{ID: "b", Text: "wrong"},
			},
		}
	}
	return assessment.Test{
		ID: "t1", Title: "Safety basics", PassingScore: 80, Duration: 45,
		Questions: []assessment.Question{mk("q1"), mk("q2"), mk("q3")},
	}
}

func startedSession(t *testing.T, budget int) *session.Session {
	t.Helper()
	tt := threeQuestionTest()
	s := session.New(tt, tt.Questions, budget)
	if err := s.Start(t0); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func TestFinish_TwoOfThreeCorrectFailsAtEighty(t *testing.T) {
	s := startedSession(t, 0)
	for _, q := range []string{"q1", "q2"} {
		if err := s.Answer(q, "a", true); err != nil {
			t.Fatalf("answer %s: %v", q, err)
		}
	}
	if err := s.Answer("q3", "b", true); err != nil {
		t.Fatalf("answer q3: %v", err)
	}

	r, err := s.Finish(t0.Add(5 * time.Minute))
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if r.EarnedPoints != 2 || r.TotalPoints != 3 {
		t.Fatalf("points = %d/%d, want 2/3", r.EarnedPoints, r.TotalPoints)
	}
	if r.Percentage != 67 {
		t.Fatalf("percentage = %d, want 67", r.Percentage)
	}
	if r.Passed {
		t.Fatalf("expected failed at passing score 80")
	}
}

func TestFinish_AllCorrectPasses(t *testing.T) {
	s := startedSession(t, 0)
	for _, q := range []string{"q1", "q2", "q3"} {
		if err := s.Answer(q, "a", true); err != nil {
			t.Fatalf("answer %s: %v", q, err)
		}
	}
	r, err := s.Finish(t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if r.Percentage != 100 || !r.Passed {
		t.Fatalf("got percentage=%d passed=%v, want 100/true", r.Percentage, r.Passed)
	}
	if len(r.Answers) != 3 {
		t.Fatalf("expected 3 recorded answers, got %d", len(r.Answers))
	}
}

func TestFinish_Idempotent(t *testing.T) {
	s := startedSession(t, 0)
	_ = s.Answer("q1", "a", true)

	first, err := s.Finish(t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	// a later second call must return the identical result, not rescore
	second, err := s.Finish(t0.Add(2 * time.Hour))
	if err != nil {
		t.Fatalf("second finish: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("finish not idempotent:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestFinish_NoAnswersProducesZeroResult(t *testing.T) {
	s := startedSession(t, 0)
	r, err := s.Finish(t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("finish on empty session: %v", err)
	}
	if r.EarnedPoints != 0 || r.Percentage != 0 || r.Passed {
		t.Fatalf("empty session result = %+v, want zeros and failed", r)
	}
	if len(r.Answers) != 0 {
		t.Fatalf("expected no recorded answers, got %d", len(r.Answers))
	}
}

func TestUntimedSessionNeverExpires(t *testing.T) {
	s := startedSession(t, 0) // untimed despite the test's 45 min duration
	if s.Expired(t0.Add(300 * time.Hour)) {
		t.Fatalf("untimed session reported expired")
	}
	if s.Status() != session.StatusInProgress {
		t.Fatalf("status = %s, want in-progress", s.Status())
	}
	r, err := s.Finish(t0.Add(300 * time.Hour))
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if r.TimeSpent != 0 {
		t.Fatalf("untimed run should record TimeSpent 0, got %d", r.TimeSpent)
	}
}

func TestTimedSession_ExpiryAndCappedTimeSpent(t *testing.T) {
	s := startedSession(t, 45*60)
	if s.Expired(t0.Add(44 * time.Minute)) {
		t.Fatalf("expired before the budget ran out")
	}
	if !s.Expired(t0.Add(45 * time.Minute)) {
		t.Fatalf("not expired at the deadline")
	}
	if got := s.Remaining(t0.Add(44 * time.Minute)); got != 60 {
		t.Fatalf("remaining = %d, want 60", got)
	}

	r, err := s.Finish(t0.Add(2 * time.Hour))
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if r.TimeSpent != 45*60 {
		t.Fatalf("time spent = %d, want capped at %d", r.TimeSpent, 45*60)
	}
}

func TestAnswer_SingleChoiceReplaces(t *testing.T) {
	s := startedSession(t, 0)
	_ = s.Answer("q1", "b", true)
	_ = s.Answer("q1", "a", true)

	r, _ := s.Finish(t0.Add(time.Minute))
	if r.EarnedPoints != 1 {
		t.Fatalf("replacement not applied: earned %d, want 1", r.EarnedPoints)
	}
	if len(r.Answers) != 1 || len(r.Answers[0].SelectedAnswers) != 1 {
		t.Fatalf("single-choice answer not replaced wholesale: %+v", r.Answers)
	}
}

func TestAnswer_MultipleChoiceToggles(t *testing.T) {
	tt := assessment.Test{
		ID: "t1", Title: "multi", PassingScore: 100, Duration: 10,
		Questions: []assessment.Question{{
			ID: "q1", Text: "pick two", Type: assessment.QuestionMultiple, Points: 1,
			Answers: []assessment.Answer{
				{ID: "a", Text: "a", IsCorrect: true},
				{ID: "b", Text: "b", IsCorrect: true},
				{ID: "c", Text: "c"},
			},
		}},
	}
	s := session.New(tt, tt.Questions, 0)
	if err := s.Start(t0); err != nil {
		t.Fatal(err)
	}

	// toggle on a, c, b; then toggle c off — final set {a,b} is correct
	_ = s.Answer("q1", "a", true)
	_ = s.Answer("q1", "c", true)
	_ = s.Answer("q1", "b", true)
	_ = s.Answer("q1", "c", false)

	r, _ := s.Finish(t0.Add(time.Minute))
	if r.Percentage != 100 {
		t.Fatalf("toggle sequence should leave exactly the correct set; got %d%%", r.Percentage)
	}
}

func TestSeek_ClampsOutOfRange(t *testing.T) {
	s := startedSession(t, 0)
	if err := s.Seek(99); err != nil {
		t.Fatalf("seek high: %v", err)
	}
	if s.CurrentIndex() != 2 {
		t.Fatalf("index = %d, want clamp to 2", s.CurrentIndex())
	}
	if err := s.Seek(-5); err != nil {
		t.Fatalf("seek low: %v", err)
	}
	if s.CurrentIndex() != 0 {
		t.Fatalf("index = %d, want clamp to 0", s.CurrentIndex())
	}
}

func TestLifecycleGuards(t *testing.T) {
	tt := threeQuestionTest()
	fresh := session.New(tt, tt.Questions, 0)

	if err := fresh.Answer("q1", "a", true); !errors.Is(err, assessment.ErrInvalidState) {
		t.Fatalf("answer before start: err = %v, want InvalidState", err)
	}
	if err := fresh.Seek(1); !errors.Is(err, assessment.ErrInvalidState) {
		t.Fatalf("seek before start: err = %v, want InvalidState", err)
	}
	if _, err := fresh.Finish(t0); !errors.Is(err, assessment.ErrInvalidState) {
		t.Fatalf("finish before start: err = %v, want InvalidState", err)
	}

	s := startedSession(t, 0)
	if _, err := s.Finish(t0.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := s.Answer("q1", "a", true); !errors.Is(err, assessment.ErrInvalidState) {
		t.Fatalf("answer after finish: err = %v, want InvalidState", err)
	}
	if err := s.Seek(1); !errors.Is(err, assessment.ErrInvalidState) {
		t.Fatalf("seek after finish: err = %v, want InvalidState", err)
	}
}

func TestAnswer_UnknownQuestion(t *testing.T) {
	s := startedSession(t, 0)
	if err := s.Answer("nope", "a", true); !errors.Is(err, assessment.ErrNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestQuestions_SanitizedForLearner(t *testing.T) {
	s := startedSession(t, 0)
	for _, q := range s.Questions() {
		if q.Explanation != "" {
			t.Fatalf("explanation leaked to learner view")
		}
		for _, a := range q.Answers {
			if a.IsCorrect {
				t.Fatalf("correctness flag leaked to learner view")
			}
		}
	}
}
