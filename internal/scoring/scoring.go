// Package scoring grades submitted answers against a question bank. It is
// pure: no clock, no storage, no goroutines.
package scoring

import (
	"math"
	"strings"

	"github.com/grk-zapadnaya/assessment/internal/assessment"
)

// Outcome is the grade of one question. Points are all-or-nothing: the
// full value on an exact match, zero otherwise.
type Outcome struct {
	QuestionID     string
	Correct        bool
	PointsEarned   int
	PointsPossible int
}

// Tally aggregates a whole attempt.
type Tally struct {
	TotalPoints  int
	EarnedPoints int
	CorrectCount int
	Percentage   int
	Outcomes     []Outcome
}

func (t Tally) Passed(passingScore int) bool {
	return t.Percentage >= passingScore
}

// strategy decides correctness for one question type.
type strategy interface {
	correct(q assessment.Question, ua assessment.UserAnswer) bool
}

type Engine struct {
	strategies map[assessment.QuestionType]strategy
}

func NewEngine() *Engine {
	return &Engine{
		strategies: map[assessment.QuestionType]strategy{
			assessment.QuestionSingle:   selectionStrategy{},
			assessment.QuestionMultiple: selectionStrategy{},
			assessment.QuestionText:     textStrategy{},
		},
	}
}

// GradeQuestion grades one question. A missing or unrecognized answer is
// simply incorrect, never an error.
func (e *Engine) GradeQuestion(q assessment.Question, ua assessment.UserAnswer) Outcome {
	out := Outcome{QuestionID: q.ID, PointsPossible: q.Points}
	s, ok := e.strategies[q.Type]
	if !ok {
		return out
	}
	if s.correct(q, ua) {
		out.Correct = true
		out.PointsEarned = q.Points
	}
	return out
}

// Score grades every question of the fixed sequence against the recorded
// answers. Skipped questions score zero.
func (e *Engine) Score(questions []assessment.Question, answers map[string]assessment.UserAnswer) Tally {
	t := Tally{Outcomes: make([]Outcome, 0, len(questions))}
	for _, q := range questions {
		o := e.GradeQuestion(q, answers[q.ID])
		t.TotalPoints += o.PointsPossible
		t.EarnedPoints += o.PointsEarned
		if o.Correct {
			t.CorrectCount++
		}
		t.Outcomes = append(t.Outcomes, o)
	}
	t.Percentage = Percentage(t.EarnedPoints, t.TotalPoints)
	return t
}

// Percentage rounds to the nearest integer, halves up.
func Percentage(earned, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(earned) / float64(total)))
}

// selectionStrategy covers single and multiple choice: the selected set
// must equal the correct set exactly. No partial credit, and an extra
// wrong pick voids the question.
type selectionStrategy struct{}

func (selectionStrategy) correct(q assessment.Question, ua assessment.UserAnswer) bool {
	correct := toSet(q.CorrectAnswerIDs())
	if len(correct) == 0 {
		return false
	}
	return setEqual(correct, toSet(ua.SelectedAnswers))
}

// textStrategy is a presence check only: any non-blank response earns the
// points. Free-text questions measure participation, not correctness.
type textStrategy struct{}

func (textStrategy) correct(_ assessment.Question, ua assessment.UserAnswer) bool {
	return strings.TrimSpace(ua.TextAnswer) != ""
}

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
