package assessment

import "context"

// DefinitionStore holds test definitions. Whole-test replace only: a
// question is never mutated in place underneath a running session.
type DefinitionStore interface {
	SaveTest(ctx context.Context, t Test) (Test, error)
	GetTest(ctx context.Context, id string) (Test, error)
	ListTests(ctx context.Context, category string) ([]Test, error)
	DeleteTest(ctx context.Context, id string) error
}

// ResultHistory is the append-only log of finished attempts.
type ResultHistory interface {
	Append(ctx context.Context, r Result) error
	// List returns results ordered by completion time; testID filters
	// when non-empty.
	List(ctx context.Context, testID string) ([]Result, error)
	// Aggregate is computed on read; the log is the source of truth.
	Aggregate(ctx context.Context, testID string) (Summary, error)
}

// ProtocolRegistry allocates year-scoped sequential protocol numbers and
// appends audit records. Append-only: there is no update or delete in the
// core contract, only an administrative purge.
type ProtocolRegistry interface {
	// NextNumber previews the number the next record of the year would
	// receive. Record performs the authoritative atomic allocation.
	NextNumber(ctx context.Context, year int) (string, error)
	Record(ctx context.Context, r Result, listenerName, listenerPosition string) (ProtocolRecord, error)
	List(ctx context.Context) ([]ProtocolRecord, error)
	Purge(ctx context.Context) error
}
