// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/card-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	entries     map[engine.AccountID][]engine.Entry
	idempotency map[string]bool
	marks       map[markKey]bool
	accounts    map[engine.AccountID]engine.AccountRecord
	statements  map[engine.AccountID][]engine.StatementRecord
}

type markKey struct {
	AccountID engine.AccountID
	Key       string
}

func NewMemory() *Memory {
	return &Memory{
		entries:     make(map[engine.AccountID][]engine.Entry),
		idempotency: make(map[string]bool),
		marks:       make(map[markKey]bool),
		accounts:    make(map[engine.AccountID]engine.AccountRecord),
		statements:  make(map[engine.AccountID][]engine.StatementRecord),
	}
}

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, e engine.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(e)
}

// AppendBatch adds multiple entries atomically.
func (m *Memory) AppendBatch(_ context.Context, entries []engine.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all idempotency keys first (atomic check)
	for _, e := range entries {
		if e.IdempotencyKey != "" && m.idempotency[e.IdempotencyKey] {
			return engine.ErrDuplicateIdempotencyKey
		}
	}

	// Append all (atomic write)
	for _, e := range entries {
		if err := m.appendLocked(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) appendLocked(e engine.Entry) error {
	if e.IdempotencyKey != "" && m.idempotency[e.IdempotencyKey] {
		return engine.ErrDuplicateIdempotencyKey
	}

	entries := m.entries[e.AccountID]

	// Binary search for insertion point: keeps entries ordered by EffectiveAt
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].EffectiveAt.After(e.EffectiveAt)
	})

	entries = append(entries, engine.Entry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	m.entries[e.AccountID] = entries

	if e.IdempotencyKey != "" {
		m.idempotency[e.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) Load(_ context.Context, accountID engine.AccountID) ([]engine.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]engine.Entry, len(m.entries[accountID]))
	copy(result, m.entries[accountID])
	return result, nil
}

func (m *Memory) LoadRange(_ context.Context, accountID engine.AccountID, from, to engine.TimePoint) ([]engine.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.Entry
	for _, e := range m.entries[accountID] {
		if from.BeforeOrEqual(e.EffectiveAt) && e.EffectiveAt.BeforeOrEqual(to) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// Mark records a schedule firing. Returns false if already marked.
func (m *Memory) Mark(_ context.Context, accountID engine.AccountID, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := markKey{AccountID: accountID, Key: key}
	if m.marks[k] {
		return false, nil
	}
	m.marks[k] = true
	return true, nil
}

func (m *Memory) Marked(_ context.Context, accountID engine.AccountID, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.marks[markKey{AccountID: accountID, Key: key}], nil
}

// =============================================================================
// ARCHIVE - Account and statement records
// =============================================================================

// SaveAccount upserts an account record.
func (m *Memory) SaveAccount(_ context.Context, rec engine.AccountRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[rec.ID] = rec
	return nil
}

// GetAccount returns nil when the account is unknown.
func (m *Memory) GetAccount(_ context.Context, id engine.AccountID) (*engine.AccountRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// ListAccounts returns all records ordered by account ID.
func (m *Memory) ListAccounts(_ context.Context) ([]engine.AccountRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.AccountRecord, 0, len(m.accounts))
	for _, rec := range m.accounts {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveStatement upserts a statement; the same account/cut-date pair updates
// in place (a re-fired SCOD never duplicates a statement).
func (m *Memory) SaveStatement(_ context.Context, rec engine.StatementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stmts := m.statements[rec.AccountID]
	for i, st := range stmts {
		if st.CutAt.SameDay(rec.CutAt) {
			stmts[i] = rec
			return nil
		}
	}
	m.statements[rec.AccountID] = append(stmts, rec)
	return nil
}

// GetStatements returns an account's statements, newest first.
func (m *Memory) GetStatements(_ context.Context, id engine.AccountID) ([]engine.StatementRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stmts := make([]engine.StatementRecord, len(m.statements[id]))
	copy(stmts, m.statements[id])
	sort.Slice(stmts, func(i, j int) bool { return stmts[j].CutAt.Before(stmts[i].CutAt) })
	return stmts, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	txStore := &txMemoryView{parent: tm}

	if err := fn(txStore); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	entriesCopy := make(map[engine.AccountID][]engine.Entry)
	for k, v := range tm.entries {
		entriesCopy[k] = append([]engine.Entry{}, v...)
	}
	idempCopy := make(map[string]bool)
	for k, v := range tm.idempotency {
		idempCopy[k] = v
	}
	return memorySnapshot{entries: entriesCopy, idempotency: idempCopy}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.entries = s.entries
	tm.idempotency = s.idempotency
}

type memorySnapshot struct {
	entries     map[engine.AccountID][]engine.Entry
	idempotency map[string]bool
}

type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Append(ctx context.Context, e engine.Entry) error {
	return tv.parent.appendLocked(e)
}

func (tv *txMemoryView) AppendBatch(ctx context.Context, entries []engine.Entry) error {
	for _, e := range entries {
		if err := tv.parent.appendLocked(e); err != nil {
			return err
		}
	}
	return nil
}

func (tv *txMemoryView) Load(ctx context.Context, accountID engine.AccountID) ([]engine.Entry, error) {
	return tv.parent.entries[accountID], nil
}

func (tv *txMemoryView) LoadRange(ctx context.Context, accountID engine.AccountID, from, to engine.TimePoint) ([]engine.Entry, error) {
	var result []engine.Entry
	for _, e := range tv.parent.entries[accountID] {
		if from.BeforeOrEqual(e.EffectiveAt) && e.EffectiveAt.BeforeOrEqual(to) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (tv *txMemoryView) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return tv.parent.idempotency[idempotencyKey], nil
}
