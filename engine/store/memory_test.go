package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/card-engine/engine"
	"github.com/warp/card-engine/engine/store"
)

func memEntry(key string, at engine.TimePoint) engine.Entry {
	return engine.Entry{
		ID:             engine.EntryID("e-" + key),
		AccountID:      "acc-1",
		Address:        "PURCHASE_CHARGED",
		Delta:          engine.NewAmount(10, "GBP"),
		EffectiveAt:    at,
		Kind:           engine.KindPosting,
		IdempotencyKey: key,
		CreatedAt:      at,
	}
}

func TestMemoryKeepsEntriesOrderedByEffectiveAt(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	day := func(d int) engine.TimePoint { return engine.NewTimePoint(2025, time.January, d) }

	// Appended out of order.
	require.NoError(t, m.Append(ctx, memEntry("k3", day(10))))
	require.NoError(t, m.Append(ctx, memEntry("k1", day(1))))
	require.NoError(t, m.Append(ctx, memEntry("k2", day(5))))

	entries, err := m.Load(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "k1", entries[0].IdempotencyKey)
	assert.Equal(t, "k2", entries[1].IdempotencyKey)
	assert.Equal(t, "k3", entries[2].IdempotencyKey)
}

func TestMemoryMarkFiresOnce(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	first, err := m.Mark(ctx, "acc-1", "scod:2025-02-01")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := m.Mark(ctx, "acc-1", "scod:2025-02-01")
	require.NoError(t, err)
	assert.False(t, again)

	// Marks are account-scoped.
	other, err := m.Mark(ctx, "acc-2", "scod:2025-02-01")
	require.NoError(t, err)
	assert.True(t, other)

	marked, err := m.Marked(ctx, "acc-1", "scod:2025-02-01")
	require.NoError(t, err)
	assert.True(t, marked)
}

func TestMemoryArchiveUpserts(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	rec := engine.AccountRecord{
		ID:           "acc-1",
		OpenedAt:     engine.NewTimePoint(2025, time.January, 1),
		InstanceJSON: `{"CreditLimit":"10000"}`,
	}
	require.NoError(t, m.SaveAccount(ctx, rec))

	// An amendment overwrites the same record.
	rec.InstanceJSON = `{"CreditLimit":"20000"}`
	require.NoError(t, m.SaveAccount(ctx, rec))

	got, err := m.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `{"CreditLimit":"20000"}`, got.InstanceJSON)

	missing, err := m.GetAccount(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := m.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStatementsUpsertPerCutDate(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	cut := func(month time.Month) engine.StatementRecord {
		return engine.StatementRecord{
			ID:        "stmt-" + month.String(),
			AccountID: "acc-1",
			CutAt:     engine.NewTimePoint(2025, month, 1),
		}
	}

	require.NoError(t, m.SaveStatement(ctx, cut(time.February)))
	require.NoError(t, m.SaveStatement(ctx, cut(time.January)))

	// Re-saving the same cut date replaces, never appends.
	require.NoError(t, m.SaveStatement(ctx, cut(time.February)))

	stmts, err := m.GetStatements(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, time.February, stmts[0].CutAt.Month())
	assert.Equal(t, time.January, stmts[1].CutAt.Month())
}

func TestTxMemoryRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	tm := store.NewTxMemory()
	at := engine.NewTimePoint(2025, time.January, 1)

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(s engine.Store) error {
		if err := s.Append(ctx, memEntry("k1", at)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// Nothing from the failed transaction is visible.
	err = tm.WithTx(ctx, func(s engine.Store) error {
		entries, err := s.Load(ctx, "acc-1")
		if err != nil {
			return err
		}
		assert.Empty(t, entries)
		return nil
	})
	require.NoError(t, err)
}

func TestTxMemoryCommits(t *testing.T) {
	ctx := context.Background()
	tm := store.NewTxMemory()
	at := engine.NewTimePoint(2025, time.January, 1)

	err := tm.WithTx(ctx, func(s engine.Store) error {
		return s.Append(ctx, memEntry("k1", at))
	})
	require.NoError(t, err)

	err = tm.WithTx(ctx, func(s engine.Store) error {
		entries, err := s.Load(ctx, "acc-1")
		if err != nil {
			return err
		}
		assert.Len(t, entries, 1)
		return nil
	})
	require.NoError(t, err)
}
