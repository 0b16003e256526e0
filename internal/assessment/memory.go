package assessment

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// In-memory implementations, used in offline/dev mode and by tests.

type memoryDefinitions struct {
	mu    sync.RWMutex
	tests map[string]Test
}

func NewMemoryDefinitionStore() DefinitionStore {
	return &memoryDefinitions{tests: map[string]Test{}}
}

func (m *memoryDefinitions) SaveTest(_ context.Context, t Test) (Test, error) {
	t, err := PrepareTest(t)
	if err != nil {
		return Test{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests[t.ID] = t
	return t, nil
}

func (m *memoryDefinitions) GetTest(_ context.Context, id string) (Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, fmt.Errorf("test %q: %w", id, ErrNotFound)
	}
	return t, nil
}

func (m *memoryDefinitions) ListTests(_ context.Context, category string) ([]Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Test, 0, len(m.tests))
	for _, t := range m.tests {
		if category != "" && t.Category != category {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *memoryDefinitions) DeleteTest(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tests[id]; !ok {
		return fmt.Errorf("test %q: %w", id, ErrNotFound)
	}
	delete(m.tests, id)
	return nil
}

type memoryHistory struct {
	mu      sync.RWMutex
	results []Result
}

func NewMemoryResultHistory() ResultHistory {
	return &memoryHistory{}
}

func (m *memoryHistory) Append(_ context.Context, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}

func (m *memoryHistory) List(_ context.Context, testID string) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Result
	for _, r := range m.results {
		if testID != "" && r.TestID != testID {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}

func (m *memoryHistory) Aggregate(ctx context.Context, testID string) (Summary, error) {
	rs, err := m.List(ctx, testID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(rs), nil
}

// Summarize computes the read-side aggregate over a result slice.
func Summarize(rs []Result) Summary {
	s := Summary{Count: len(rs)}
	if s.Count == 0 {
		return s
	}
	pctSum, timeSum := 0, 0
	for _, r := range rs {
		if r.Passed {
			s.PassCount++
		} else {
			s.FailCount++
		}
		pctSum += r.Percentage
		timeSum += r.TimeSpent
	}
	s.AvgPercentage = int(math.Round(float64(pctSum) / float64(s.Count)))
	s.AvgTimeSpent = int(math.Round(float64(timeSum) / float64(s.Count)))
	return s
}

type memoryRegistry struct {
	mu      sync.Mutex
	records []ProtocolRecord
	now     func() time.Time
}

func NewMemoryProtocolRegistry(now func() time.Time) ProtocolRegistry {
	if now == nil {
		now = time.Now
	}
	return &memoryRegistry{now: now}
}

func (m *memoryRegistry) NextNumber(_ context.Context, year int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return FormatProtocolNumber(year, m.countYearLocked(year)+1), nil
}

// Record allocates the number and appends under one lock acquisition, so
// two concurrent finishes can never share a sequence.
func (m *memoryRegistry) Record(_ context.Context, r Result, listenerName, listenerPosition string) (ProtocolRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	year := now.Year()
	rec := ProtocolRecord{
		ID:               uuid.NewString(),
		ProtocolNumber:   FormatProtocolNumber(year, m.countYearLocked(year)+1),
		TestID:           r.TestID,
		TestTitle:        r.TestTitle,
		ListenerName:     listenerName,
		ListenerPosition: listenerPosition,
		Percentage:       r.Percentage,
		Passed:           r.Passed,
		CompletedAt:      r.CompletedAt,
		CreatedAt:        now,
	}
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memoryRegistry) List(_ context.Context) ([]ProtocolRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProtocolRecord, len(m.records))
	copy(out, m.records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryRegistry) Purge(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	return nil
}

func (m *memoryRegistry) countYearLocked(year int) int {
	prefix := fmt.Sprintf("%d-", year)
	n := 0
	for _, rec := range m.records {
		if strings.HasPrefix(rec.ProtocolNumber, prefix) {
			n++
		}
	}
	return n
}

// FormatProtocolNumber renders "{year}-{sequence:04d}".
func FormatProtocolNumber(year, seq int) string {
	return fmt.Sprintf("%d-%04d", year, seq)
}
