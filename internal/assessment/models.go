package assessment

import (
	"sort"
	"time"
)

type QuestionType string

const (
	QuestionSingle   QuestionType = "single"
	QuestionMultiple QuestionType = "multiple"
	QuestionText     QuestionType = "text"
)

// Answer is one selectable option of a question. IsCorrect is set at
// authoring time and must never reach a learner mid-session.
type Answer struct {
	ID        string `json:"id"`
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"isCorrect"`
}

type Question struct {
	ID          string       `json:"id"`
	Text        string       `json:"text" validate:"required"`
	Type        QuestionType `json:"type" validate:"required,oneof=single multiple text"`
	Answers     []Answer     `json:"answers,omitempty" validate:"dive"`
	Explanation string       `json:"explanation,omitempty"`
	Points      int          `json:"points" validate:"gt=0"`
}

// CorrectAnswerIDs returns the sorted ids of the correct options.
func (q Question) CorrectAnswerIDs() []string {
	var ids []string
	for _, a := range q.Answers {
		if a.IsCorrect {
			ids = append(ids, a.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Test is an authored definition: metadata plus an ordered question bank.
// The question count is always derived from the list, never stored.
type Test struct {
	ID           string     `json:"id"`
	Title        string     `json:"title" validate:"required"`
	Description  string     `json:"description,omitempty"`
	Category     string     `json:"category,omitempty"`
	PassingScore int        `json:"passingScore" validate:"min=0,max=100"`
	Duration     int        `json:"duration" validate:"gt=0"` // minutes
	Questions    []Question `json:"questions" validate:"min=1,dive"`
}

func (t Test) QuestionCount() int { return len(t.Questions) }

func (t Test) TotalPoints() int {
	sum := 0
	for _, q := range t.Questions {
		sum += q.Points
	}
	return sum
}

// ForLearner returns a copy safe to serve to a learner mid-session:
// correctness flags and explanations are stripped.
func (t Test) ForLearner() Test {
	out := t
	out.Questions = make([]Question, len(t.Questions))
	for i, q := range t.Questions {
		out.Questions[i] = q.ForLearner()
	}
	return out
}

func (q Question) ForLearner() Question {
	out := q
	out.Explanation = ""
	out.Answers = make([]Answer, len(q.Answers))
	for i, a := range q.Answers {
		a.IsCorrect = false
		out.Answers[i] = a
	}
	return out
}

// UserAnswer is what a learner submitted for one question.
type UserAnswer struct {
	QuestionID      string   `json:"questionId"`
	SelectedAnswers []string `json:"selectedAnswers"`
	TextAnswer      string   `json:"textAnswer,omitempty"`
}

// Result is the immutable scored outcome of one finished session.
type Result struct {
	TestID       string       `json:"testId"`
	TestTitle    string       `json:"testTitle"`
	TotalPoints  int          `json:"totalPoints"`
	EarnedPoints int          `json:"earnedPoints"`
	Percentage   int          `json:"percentage"`
	Passed       bool         `json:"passed"`
	TimeSpent    int          `json:"timeSpent"` // seconds; 0 for untimed runs
	CompletedAt  time.Time    `json:"completedAt"`
	Answers      []UserAnswer `json:"answers"`
}

// ProtocolRecord is an audit-grade, sequentially numbered result entry.
// Numbers are year-scoped: "2026-0001", "2026-0002", ...
type ProtocolRecord struct {
	ID               string    `json:"id"`
	ProtocolNumber   string    `json:"protocolNumber"`
	TestID           string    `json:"testId"`
	TestTitle        string    `json:"testTitle"`
	ListenerName     string    `json:"listenerName,omitempty"`
	ListenerPosition string    `json:"listenerPosition,omitempty"`
	Percentage       int       `json:"percentage"`
	Passed           bool      `json:"passed"`
	CompletedAt      time.Time `json:"completedAt"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Summary is the on-read aggregate over a slice of the result history.
type Summary struct {
	Count         int `json:"count"`
	PassCount     int `json:"passCount"`
	FailCount     int `json:"failCount"`
	AvgPercentage int `json:"avgPercentage"`
	AvgTimeSpent  int `json:"avgTimeSpent"`
}
