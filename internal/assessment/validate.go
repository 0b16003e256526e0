package assessment

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// ValidateTest enforces the authoring invariants: at least one question,
// positive points, passing score within [0,100], a positive duration,
// selectable questions with at least two options and at least one correct
// option, text questions with no options at all.
func ValidateTest(t Test) error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	for i, q := range t.Questions {
		switch q.Type {
		case QuestionText:
			if len(q.Answers) != 0 {
				return fmt.Errorf("%w: question %d: text questions carry no answer options", ErrInvalidDefinition, i+1)
			}
		case QuestionSingle, QuestionMultiple:
			if len(q.Answers) < 2 {
				return fmt.Errorf("%w: question %d: needs at least two answer options", ErrInvalidDefinition, i+1)
			}
			if len(q.CorrectAnswerIDs()) == 0 {
				return fmt.Errorf("%w: question %d: needs at least one correct option", ErrInvalidDefinition, i+1)
			}
		}
	}
	return nil
}

// PrepareTest assigns ids where the author left them empty and validates.
// Both store implementations run drafts through here before persisting.
func PrepareTest(t Test) (Test, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	for i := range t.Questions {
		if t.Questions[i].ID == "" {
			t.Questions[i].ID = uuid.NewString()
		}
		for j := range t.Questions[i].Answers {
			if t.Questions[i].Answers[j].ID == "" {
				t.Questions[i].Answers[j].ID = uuid.NewString()
			}
		}
	}
	if err := ValidateTest(t); err != nil {
		return Test{}, err
	}
	return t, nil
}
