/*
store.go - Persistence interface for ledger entries and related data

PURPOSE:
  Defines the interface between the domain logic and the database.
  The Store handles persistence while maintaining append-only semantics.
  Different implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:        Core entry persistence (append, load, exists)
  TxStore:      Transactional operations (atomic multi-table writes)
  MarkStore:    Schedule-firing marks (idempotence of SCOD/PDD/accrual jobs)
  ArchiveStore: Account and statement records (restart survival)

APPEND-ONLY CONTRACT:
  The Store interface enforces append-only semantics:
  - Append(): Single entry write
  - AppendBatch(): Atomic multi-entry write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  Every write includes an idempotency key. If the key already exists,
  the write is rejected. This prevents duplicate entries from network
  retries and prevents schedule jobs from double-applying when re-fired.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - engine/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Interface for entry persistence (append-only)
// =============================================================================

// Store handles persistence of ledger entries.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
// Corrections are made via reversing entries.
type Store interface {
	// Append persists an entry. Returns error if idempotency key exists.
	Append(ctx context.Context, e Entry) error

	// AppendBatch persists multiple entries atomically.
	// Either all succeed or none do.
	AppendBatch(ctx context.Context, entries []Entry) error

	// Load returns all entries for an account, ordered by EffectiveAt.
	Load(ctx context.Context, accountID AccountID) ([]Entry, error)

	// LoadRange returns entries in [from, to].
	LoadRange(ctx context.Context, accountID AccountID, from, to TimePoint) ([]Entry, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
// Use this when committing a posting batch (accept decision + ledger fan-out
// must be all-or-nothing).
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// MARK STORE - Schedule-firing idempotence
// =============================================================================

// MarkStore records which schedule firings have already been applied, so a
// re-fired SCOD, PDD, accrual, or annual-fee job is a no-op.
type MarkStore interface {
	// Mark records a firing. Returns false if the mark already existed.
	Mark(ctx context.Context, accountID AccountID, key string) (bool, error)

	// Marked reports whether a firing has been applied.
	Marked(ctx context.Context, accountID AccountID, key string) (bool, error)
}

// =============================================================================
// ARCHIVE STORE - Account and statement records
// =============================================================================

// AccountRecord is the stored form of an account: its parameters and flags,
// serialized so a restarted process can rebuild the registry. Balances are
// NOT stored here; they replay from the entry log.
type AccountRecord struct {
	ID           AccountID
	OpenedAt     TimePoint
	InstanceJSON string
	TemplateJSON string
	FlagsJSON    string
}

// StatementRecord is the stored form of a cut statement.
type StatementRecord struct {
	ID               string
	AccountID        AccountID
	PeriodStart      TimePoint
	PeriodEnd        TimePoint
	CutAt            TimePoint
	DueAt            TimePoint
	StatementBalance decimal.Decimal
	MinimumAmountDue decimal.Decimal
	IsFinal          bool
}

// ArchiveStore persists account and statement records beyond the process
// lifetime. Saving the same account, or the same account/cut-date statement,
// updates in place.
type ArchiveStore interface {
	SaveAccount(ctx context.Context, rec AccountRecord) error

	// GetAccount returns nil (no error) when the account is unknown.
	GetAccount(ctx context.Context, id AccountID) (*AccountRecord, error)

	// ListAccounts returns all records ordered by account ID.
	ListAccounts(ctx context.Context) ([]AccountRecord, error)

	SaveStatement(ctx context.Context, rec StatementRecord) error

	// GetStatements returns an account's statements, newest first.
	GetStatements(ctx context.Context, id AccountID) ([]StatementRecord, error)
}
