/*
ledger.go - Append-only entry log

PURPOSE:
  The Ledger is the immutable source of truth for all balance changes.
  Every accepted posting, fee, interest accrual, statement transfer,
  repayment allocation, and dispute reversal is recorded here. Balances
  are always recomputable by replaying entries.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. AUDITABLE: Every balance change is traceable with full context
  4. IDEMPOTENT: Same idempotency key = same entry (no duplicates)

CORRECTIONS:
  A dispute or mistake is never edited away. A reversing entry with the
  opposite sign is appended; both remain in the ledger and the net effect
  is the correction.

SEE ALSO:
  - store.go: Low-level persistence interface
  - card/account.go: Running balances maintained alongside this log
*/
package engine

import "context"

// =============================================================================
// LEDGER - Append-only entry log
// =============================================================================

// Ledger is the source of truth for all balance changes.
//
// INVARIANTS:
//   - Append-only: No Update, No Delete. EVER.
//   - Immutable: Once written, entries cannot be modified.
//   - Auditable: Every balance change is traceable.
//
// Corrections are made via reversing entries, not edits.
type Ledger interface {
	// Append adds an entry. Fails if idempotency key exists.
	Append(ctx context.Context, e Entry) error

	// AppendBatch adds multiple entries atomically. Used when a single
	// posting fans out across several addresses (spend + fee, or a
	// billed->unpaid sweep at PDD).
	AppendBatch(ctx context.Context, entries []Entry) error

	// Entries returns all entries for an account, chronologically.
	Entries(ctx context.Context, accountID AccountID) ([]Entry, error)

	// EntriesInRange returns entries with EffectiveAt in [from, to].
	EntriesInRange(ctx context.Context, accountID AccountID, from, to TimePoint) ([]Entry, error)

	// BalanceAt computes a single address balance at a specific time.
	// This is a derived value, computed from entries.
	BalanceAt(ctx context.Context, accountID AccountID, addr Address, at TimePoint) (Amount, error)

	// BalancesAt computes every nonzero address balance at a specific time.
	BalancesAt(ctx context.Context, accountID AccountID, at TimePoint) (map[Address]Amount, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store        Store
	Denomination string
}

func NewLedger(store Store, denomination string) *DefaultLedger {
	return &DefaultLedger{Store: store, Denomination: denomination}
}

func (l *DefaultLedger) Append(ctx context.Context, e Entry) error {
	if e.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, e)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, entries []Entry) error {
	// Check all idempotency keys first
	for _, e := range entries {
		if e.IdempotencyKey != "" {
			exists, err := l.Store.Exists(ctx, e.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	return l.Store.AppendBatch(ctx, entries)
}

func (l *DefaultLedger) Entries(ctx context.Context, accountID AccountID) ([]Entry, error) {
	return l.Store.Load(ctx, accountID)
}

func (l *DefaultLedger) EntriesInRange(ctx context.Context, accountID AccountID, from, to TimePoint) ([]Entry, error) {
	return l.Store.LoadRange(ctx, accountID, from, to)
}

func (l *DefaultLedger) BalanceAt(ctx context.Context, accountID AccountID, addr Address, at TimePoint) (Amount, error) {
	entries, err := l.Store.Load(ctx, accountID)
	if err != nil {
		return Amount{}, err
	}

	balance := NewAmount(0, l.Denomination)
	for _, e := range entries {
		if e.EffectiveAt.After(at) {
			break
		}
		if e.Address == addr {
			balance = balance.Add(e.Delta)
		}
	}
	return balance, nil
}

func (l *DefaultLedger) BalancesAt(ctx context.Context, accountID AccountID, at TimePoint) (map[Address]Amount, error) {
	entries, err := l.Store.Load(ctx, accountID)
	if err != nil {
		return nil, err
	}

	balances := make(map[Address]Amount)
	for _, e := range entries {
		if e.EffectiveAt.After(at) {
			break
		}
		cur, ok := balances[e.Address]
		if !ok {
			cur = NewAmount(0, l.Denomination)
		}
		balances[e.Address] = cur.Add(e.Delta)
	}
	for addr, amt := range balances {
		if amt.IsZero() {
			delete(balances, addr)
		}
	}
	return balances, nil
}
