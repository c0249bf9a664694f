/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the persistence interfaces (Store, TxStore, MarkStore,
  ArchiveStore) using SQLite. In production, the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

INTERFACES IMPLEMENTED:
  engine.Store:        Ledger entry persistence
  engine.TxStore:      Atomic multi-entry commits (posting batches)
  engine.MarkStore:    Schedule-firing marks
  engine.ArchiveStore: Account and statement records

APPEND-ONLY ENFORCEMENT:
  The Store enforces append-only semantics on the entries table:
  - No UPDATE statements on entries
  - No DELETE statements on entries
  - Corrections via reversing entries only

KEY TABLES:
  entries:        Immutable ledger of all balance movements
  accounts:       Account records with parameter JSON snapshots
  statements:     Generated statement records
  schedule_marks: Applied schedule firings (SCOD/PDD/accrual idempotence)

INDEXES:
  - idx_entries_account_effective: Balance calculation (hot path)
  - idx_entries_idempotency:       Duplicate posting detection
  - idx_entries_client_txn:        Authorization/settlement correlation

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/cards.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := engine.NewLedger(store, "GBP")

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/ledger.go: Higher-level ledger using Store
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/card-engine/engine"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Entries (append-only ledger)
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		address TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		delta_denomination TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		kind TEXT NOT NULL,
		client_transaction_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_at TEXT NOT NULL
	);

	-- Balance calculation (hot path)
	CREATE INDEX IF NOT EXISTS idx_entries_account_effective
		ON entries(account_id, effective_at);
	CREATE INDEX IF NOT EXISTS idx_entries_idempotency
		ON entries(idempotency_key) WHERE idempotency_key IS NOT NULL;
	-- Authorization/settlement correlation
	CREATE INDEX IF NOT EXISTS idx_entries_client_txn
		ON entries(client_transaction_id) WHERE client_transaction_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_entries_kind
		ON entries(kind);

	-- Accounts (parameter snapshots, updated on amendment)
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		opened_at TEXT NOT NULL,
		instance_json TEXT NOT NULL,
		template_json TEXT NOT NULL,
		flags_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Statements (one row per SCOD cut)
	CREATE TABLE IF NOT EXISTS statements (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		cut_at TEXT NOT NULL,
		due_at TEXT NOT NULL,
		statement_balance TEXT NOT NULL,
		minimum_amount_due TEXT NOT NULL,
		is_final BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL,
		UNIQUE(account_id, cut_at)
	);

	CREATE INDEX IF NOT EXISTS idx_statements_account
		ON statements(account_id, cut_at DESC);

	-- Schedule marks (applied firing keys, enforces at-most-once)
	CREATE TABLE IF NOT EXISTS schedule_marks (
		account_id TEXT NOT NULL,
		mark_key TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (account_id, mark_key)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRY STORE (engine.Store interface)
// =============================================================================

// Append adds an entry to the ledger.
func (s *Store) Append(ctx context.Context, e engine.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendEntry(ctx, s.db, e)
}

// dbConn abstracts *sql.DB and *sql.Tx so the same statement helpers serve
// both direct calls and WithTx.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) appendEntry(ctx context.Context, db dbConn, e engine.Entry) error {
	metadataJSON, _ := json.Marshal(e.Metadata)

	query := `
		INSERT INTO entries
		(id, account_id, address, delta_value, delta_denomination, effective_at,
		 kind, client_transaction_id, reason, idempotency_key, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		e.ID,
		e.AccountID,
		string(e.Address),
		e.Delta.Value.String(),
		e.Delta.Denomination,
		e.EffectiveAt.Time.Format(time.RFC3339),
		string(e.Kind),
		nullString(string(e.ClientTransactionID)),
		e.Reason,
		nullString(e.IdempotencyKey),
		string(metadataJSON),
		time.Now().UTC().Format(time.RFC3339),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}

	return nil
}

// AppendBatch adds multiple entries atomically.
func (s *Store) AppendBatch(ctx context.Context, entries []engine.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicate idempotency keys within the batch first
	keys := make(map[string]bool)
	for _, e := range entries {
		if e.IdempotencyKey != "" {
			if keys[e.IdempotencyKey] {
				return engine.ErrDuplicateIdempotencyKey
			}
			keys[e.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, e := range entries {
		if err := s.appendEntry(ctx, sqlTx, e); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// Load returns all entries for an account.
const loadQuery = `
	SELECT id, account_id, address, delta_value, delta_denomination, effective_at,
	       kind, client_transaction_id, reason, idempotency_key, metadata_json, created_at
	FROM entries
	WHERE account_id = ?
	ORDER BY effective_at ASC, created_at ASC
`

const loadRangeQuery = `
	SELECT id, account_id, address, delta_value, delta_denomination, effective_at,
	       kind, client_transaction_id, reason, idempotency_key, metadata_json, created_at
	FROM entries
	WHERE account_id = ?
	  AND effective_at >= ? AND effective_at <= ?
	ORDER BY effective_at ASC, created_at ASC
`

func (s *Store) Load(ctx context.Context, accountID engine.AccountID) ([]engine.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntries(ctx, s.db, loadQuery, accountID)
}

// LoadRange returns entries in a time range.
func (s *Store) LoadRange(ctx context.Context, accountID engine.AccountID, from, to engine.TimePoint) ([]engine.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntries(ctx, s.db, loadRangeQuery, accountID,
		from.Time.Format(time.RFC3339), to.Time.Format(time.RFC3339))
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.keyExists(ctx, s.db, idempotencyKey)
}

func (s *Store) keyExists(ctx context.Context, db dbConn, idempotencyKey string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entries WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

func (s *Store) queryEntries(ctx context.Context, db dbConn, query string, args ...any) ([]engine.Entry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []engine.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (engine.Entry, error) {
	var (
		e              engine.Entry
		address        string
		deltaValue     string
		deltaDenom     string
		effectiveAt    string
		kind           string
		clientTxnID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&e.ID, &e.AccountID, &address, &deltaValue, &deltaDenom,
		&effectiveAt, &kind, &clientTxnID, &reason, &idempotencyKey,
		&metadataJSON, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.Address = engine.Address(address)
	e.Delta = engine.Amount{Value: engine.MustParseDecimal(deltaValue), Denomination: deltaDenom}
	t, _ := time.Parse(time.RFC3339, effectiveAt)
	e.EffectiveAt = engine.TimePoint{Time: t}
	e.Kind = engine.EntryKind(kind)
	e.ClientTransactionID = engine.ClientTransactionID(clientTxnID.String)
	e.Reason = reason.String
	e.IdempotencyKey = idempotencyKey.String

	if metadataJSON.Valid && metadataJSON.String != "" {
		json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
	}

	c, _ := time.Parse(time.RFC3339, createdAt)
	e.CreatedAt = engine.TimePoint{Time: c}

	return e, nil
}

// =============================================================================
// TRANSACTIONAL STORE (engine.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx, parent: s}
	if err := fn(txStore); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) Append(ctx context.Context, e engine.Entry) error {
	return ts.parent.appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) AppendBatch(ctx context.Context, entries []engine.Entry) error {
	for _, e := range entries {
		if err := ts.parent.appendEntry(ctx, ts.tx, e); err != nil {
			return err
		}
	}
	return nil
}

// Reads inside the transaction run on the transaction handle: the parent
// holds the store mutex for the duration of WithTx.
func (ts *txStore) Load(ctx context.Context, accountID engine.AccountID) ([]engine.Entry, error) {
	return ts.parent.queryEntries(ctx, ts.tx, loadQuery, accountID)
}

func (ts *txStore) LoadRange(ctx context.Context, accountID engine.AccountID, from, to engine.TimePoint) ([]engine.Entry, error) {
	return ts.parent.queryEntries(ctx, ts.tx, loadRangeQuery, accountID,
		from.Time.Format(time.RFC3339), to.Time.Format(time.RFC3339))
}

func (ts *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return ts.parent.keyExists(ctx, ts.tx, idempotencyKey)
}

// =============================================================================
// MARK STORE (engine.MarkStore interface)
// =============================================================================

// Mark records a schedule firing. Returns false if the mark already existed.
func (s *Store) Mark(ctx context.Context, accountID engine.AccountID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO schedule_marks (account_id, mark_key, created_at) VALUES (?, ?, ?)",
		accountID, key, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to record mark: %w", err)
	}
	return true, nil
}

// Marked reports whether a schedule firing has been applied.
func (s *Store) Marked(ctx context.Context, accountID engine.AccountID, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schedule_marks WHERE account_id = ? AND mark_key = ?",
		accountID, key,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// ARCHIVE STORE (engine.ArchiveStore interface)
// =============================================================================

// SaveAccount saves an account record. Parameter amendments upsert.
func (s *Store) SaveAccount(ctx context.Context, a engine.AccountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO accounts (id, opened_at, instance_json, template_json, flags_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			instance_json = excluded.instance_json,
			template_json = excluded.template_json,
			flags_json = excluded.flags_json,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		string(a.ID), a.OpenedAt.Time.Format(time.RFC3339),
		a.InstanceJSON, a.TemplateJSON, a.FlagsJSON,
		now, now,
	)
	return err
}

// GetAccount retrieves an account record by ID; nil when unknown.
func (s *Store) GetAccount(ctx context.Context, id engine.AccountID) (*engine.AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a engine.AccountRecord
	var openedAt string
	var flagsJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		"SELECT id, opened_at, instance_json, template_json, flags_json FROM accounts WHERE id = ?",
		string(id),
	).Scan(&a.ID, &openedAt, &a.InstanceJSON, &a.TemplateJSON, &flagsJSON)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.OpenedAt, err = parseTimePoint(openedAt)
	if err != nil {
		return nil, err
	}
	a.FlagsJSON = flagsJSON.String
	return &a, nil
}

// ListAccounts returns all account records ordered by ID.
func (s *Store) ListAccounts(ctx context.Context) ([]engine.AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, opened_at, instance_json, template_json, flags_json FROM accounts ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []engine.AccountRecord
	for rows.Next() {
		var a engine.AccountRecord
		var openedAt string
		var flagsJSON sql.NullString
		if err := rows.Scan(&a.ID, &openedAt, &a.InstanceJSON, &a.TemplateJSON, &flagsJSON); err != nil {
			return nil, err
		}
		if a.OpenedAt, err = parseTimePoint(openedAt); err != nil {
			return nil, err
		}
		a.FlagsJSON = flagsJSON.String
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// SaveStatement saves a statement record. Re-cutting the same SCOD is an
// update of the same row, matching the schedule-mark idempotence upstream.
func (s *Store) SaveStatement(ctx context.Context, st engine.StatementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO statements
		(id, account_id, period_start, period_end, cut_at, due_at,
		 statement_balance, minimum_amount_due, is_final, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, cut_at) DO UPDATE SET
			statement_balance = excluded.statement_balance,
			minimum_amount_due = excluded.minimum_amount_due,
			is_final = excluded.is_final
	`

	_, err := s.db.ExecContext(ctx, query,
		st.ID, string(st.AccountID),
		st.PeriodStart.Time.Format(time.RFC3339), st.PeriodEnd.Time.Format(time.RFC3339),
		st.CutAt.Time.Format(time.RFC3339), st.DueAt.Time.Format(time.RFC3339),
		st.StatementBalance.String(), st.MinimumAmountDue.String(), st.IsFinal,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetStatements returns all statements for an account, newest first.
func (s *Store) GetStatements(ctx context.Context, accountID engine.AccountID) ([]engine.StatementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, account_id, period_start, period_end, cut_at, due_at,
		       statement_balance, minimum_amount_due, is_final
		FROM statements
		WHERE account_id = ?
		ORDER BY cut_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, string(accountID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statements []engine.StatementRecord
	for rows.Next() {
		var st engine.StatementRecord
		var periodStart, periodEnd, cutAt, dueAt, balance, mad string
		if err := rows.Scan(&st.ID, &st.AccountID, &periodStart, &periodEnd, &cutAt, &dueAt,
			&balance, &mad, &st.IsFinal); err != nil {
			return nil, err
		}
		if st.PeriodStart, err = parseTimePoint(periodStart); err != nil {
			return nil, err
		}
		if st.PeriodEnd, err = parseTimePoint(periodEnd); err != nil {
			return nil, err
		}
		if st.CutAt, err = parseTimePoint(cutAt); err != nil {
			return nil, err
		}
		if st.DueAt, err = parseTimePoint(dueAt); err != nil {
			return nil, err
		}
		if st.StatementBalance, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		if st.MinimumAmountDue, err = decimal.NewFromString(mad); err != nil {
			return nil, err
		}
		statements = append(statements, st)
	}
	return statements, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"entries", "statements", "schedule_marks", "accounts"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func parseTimePoint(s string) (engine.TimePoint, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return engine.TimePoint{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return engine.TimePoint{Time: t}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
