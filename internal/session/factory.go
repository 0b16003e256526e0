package session

import (
	"context"
	"math/rand"
	"time"

	"github.com/grk-zapadnaya/assessment/internal/assessment"
)

// Config selects how an attempt runs. Timed applies the test's configured
// duration; SampleSize draws a random subset of the bank when smaller
// than the bank (training mode runs shortened, shuffled attempts).
type Config struct {
	Timed      bool
	SampleSize int
}

// Factory builds started sessions from stored definitions.
type Factory struct {
	store assessment.DefinitionStore
	now   func() time.Time
}

func NewFactory(store assessment.DefinitionStore, now func() time.Time) *Factory {
	if now == nil {
		now = time.Now
	}
	return &Factory{store: store, now: now}
}

// Start loads the test, fixes the question sequence, and returns an
// in-progress session positioned on the first question. When SampleSize
// is smaller than the bank, a uniform sample without replacement is drawn
// once; the sequence never reshuffles afterward.
func (f *Factory) Start(ctx context.Context, testID string, cfg Config) (*Session, error) {
	t, err := f.store.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}

	questions := make([]assessment.Question, len(t.Questions))
	copy(questions, t.Questions)
	if cfg.SampleSize > 0 && cfg.SampleSize < len(questions) {
		rand.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
		questions = questions[:cfg.SampleSize]
	}

	budget := 0
	if cfg.Timed {
		budget = t.Duration * 60
	}
	s := New(t, questions, budget)
	if err := s.Start(f.now()); err != nil {
		return nil, err
	}
	return s, nil
}
