/*
restore.go - Account persistence and restart recovery

PURPOSE:
  Accounts and statements are written to the archive store as they change;
  on startup Restore rebuilds the in-memory registry from those records.
  Balances are never stored: they replay deterministically from the
  append-only entry log, so the log stays the single source of truth and
  the archive only carries what the log cannot derive (parameters, flags,
  statement metadata).

RECOVERY ORDER PER ACCOUNT:
  1. Decode instance/template parameters and flags from the record
  2. Replay the entry log into balances and posting bookkeeping
  3. Reattach the statement history and last cut date
  4. Reseed the schedule queue; durable marks keep re-pushed firings from
     applying twice
*/
package card

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/card-engine/engine"
)

// =============================================================================
// PERSISTENCE
// =============================================================================

// persistAccount writes the account's parameter and flag snapshot. A nil
// archive (plain entry store) makes this a no-op.
func (s *Service) persistAccount(ctx context.Context, acct *Account) error {
	if s.archive == nil {
		return nil
	}
	rec, err := accountRecord(acct)
	if err != nil {
		return err
	}
	return s.archive.SaveAccount(ctx, rec)
}

// persistLastStatement writes the most recently cut statement.
func (s *Service) persistLastStatement(ctx context.Context, acct *Account) error {
	if s.archive == nil {
		return nil
	}
	stmts := acct.Statements()
	if len(stmts) == 0 {
		return nil
	}
	return s.archive.SaveStatement(ctx, statementRecord(stmts[len(stmts)-1]))
}

func accountRecord(acct *Account) (engine.AccountRecord, error) {
	instJSON, err := json.Marshal(acct.Instance)
	if err != nil {
		return engine.AccountRecord{}, fmt.Errorf("instance parameters: %w", err)
	}
	tplJSON, err := json.Marshal(acct.Template)
	if err != nil {
		return engine.AccountRecord{}, fmt.Errorf("template parameters: %w", err)
	}
	flagsJSON, err := marshalFlags(acct.Flags)
	if err != nil {
		return engine.AccountRecord{}, fmt.Errorf("flags: %w", err)
	}
	return engine.AccountRecord{
		ID:           acct.ID,
		OpenedAt:     acct.OpenedAt,
		InstanceJSON: string(instJSON),
		TemplateJSON: string(tplJSON),
		FlagsJSON:    flagsJSON,
	}, nil
}

func statementRecord(st *Statement) engine.StatementRecord {
	return engine.StatementRecord{
		ID:               st.ID,
		AccountID:        st.AccountID,
		PeriodStart:      st.PeriodStart,
		PeriodEnd:        st.PeriodEnd,
		CutAt:            st.CutAt,
		DueAt:            st.DueAt,
		StatementBalance: st.StatementBalance,
		MinimumAmountDue: st.MinimumAmountDue,
		IsFinal:          st.IsFinal,
	}
}

func statementFromRecord(rec engine.StatementRecord) *Statement {
	return &Statement{
		ID:               rec.ID,
		AccountID:        rec.AccountID,
		PeriodStart:      rec.PeriodStart,
		PeriodEnd:        rec.PeriodEnd,
		CutAt:            rec.CutAt,
		DueAt:            rec.DueAt,
		StatementBalance: rec.StatementBalance,
		MinimumAmountDue: rec.MinimumAmountDue,
		IsFinal:          rec.IsFinal,
	}
}

// storedFlag is the persisted flag shape.
type storedFlag struct {
	Name      string `json:"name"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func marshalFlags(fs *FlagSet) (string, error) {
	flags := fs.All()
	out := make([]storedFlag, 0, len(flags))
	for _, f := range flags {
		sf := storedFlag{Name: f.Name}
		if !f.ExpiresAt.IsZero() {
			sf.ExpiresAt = f.ExpiresAt.Time.Format(time.RFC3339)
		}
		out = append(out, sf)
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func unmarshalFlags(data string, fs *FlagSet) error {
	if data == "" {
		return nil
	}
	var stored []storedFlag
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return err
	}
	for _, sf := range stored {
		var expires engine.TimePoint
		if sf.ExpiresAt != "" {
			t, err := time.Parse(time.RFC3339, sf.ExpiresAt)
			if err != nil {
				return fmt.Errorf("flag %s expiry: %w", sf.Name, err)
			}
			expires = engine.TimePoint{Time: t}
		}
		fs.Activate(sf.Name, expires)
	}
	return nil
}

// =============================================================================
// RESTORE
// =============================================================================

// Restore rebuilds the account registry from the archive. Call once on
// startup, before the scheduler ticks. A nil archive restores nothing.
func (s *Service) Restore(ctx context.Context) error {
	if s.archive == nil {
		return nil
	}
	recs, err := s.archive.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	for _, rec := range recs {
		if err := s.restoreAccount(ctx, rec); err != nil {
			return fmt.Errorf("restore account %s: %w", rec.ID, err)
		}
	}
	return nil
}

func (s *Service) restoreAccount(ctx context.Context, rec engine.AccountRecord) error {
	var inst InstanceParams
	if err := json.Unmarshal([]byte(rec.InstanceJSON), &inst); err != nil {
		return fmt.Errorf("instance parameters: %w", err)
	}
	var tpl TemplateParams
	if err := json.Unmarshal([]byte(rec.TemplateJSON), &tpl); err != nil {
		return fmt.Errorf("template parameters: %w", err)
	}

	ledger := engine.NewLedger(s.store, inst.Denomination)
	acct := NewAccount(rec.ID, inst, tpl, rec.OpenedAt, ledger)
	acct.marks = s.marks
	if err := unmarshalFlags(rec.FlagsJSON, acct.Flags); err != nil {
		return err
	}

	entries, err := s.store.Load(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	stmts, err := s.archive.GetStatements(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("load statements: %w", err)
	}
	acct.restoreState(entries, stmts)

	s.mu.Lock()
	s.accounts[rec.ID] = acct
	s.mu.Unlock()

	return s.reseedSchedule(ctx, acct, entries)
}

// reseedSchedule re-pushes the account's recurring events. Firings that
// already applied before the restart are marked, so an event landing on an
// already-processed day is a no-op.
func (s *Service) reseedSchedule(ctx context.Context, acct *Account, entries []engine.Entry) error {
	// Accrual resumes at the first unmarked day after the last recorded
	// activity; any fully missed days in between fire late, against live
	// balances, exactly as a lagged scheduler would.
	seed := acct.OpenedAt.StartOfDay()
	for _, e := range entries {
		if e.EffectiveAt.After(seed) {
			seed = e.EffectiveAt.StartOfDay()
		}
	}
	if acct.lastSCOD.After(seed) {
		seed = acct.lastSCOD
	}
	day := seed.AddDays(1)
	if s.marks != nil {
		for {
			marked, err := s.marks.Marked(ctx, acct.ID, "accrue:"+day.DateString())
			if err != nil {
				return err
			}
			if !marked {
				break
			}
			day = day.AddDays(1)
		}
	}
	s.pushAccrual(acct.ID, day)

	base := acct.lastSCOD
	if base.IsZero() {
		base = acct.OpenedAt
	}
	s.pushStatementCut(acct, acct.NextSCOD(base))

	// The last open statement's due date may still be pending; if it
	// already processed, the mark suppresses the re-fire.
	if stmts := acct.Statements(); len(stmts) > 0 {
		if last := stmts[len(stmts)-1]; !last.IsFinal {
			s.pushPaymentDue(acct, last.DueAt)
		}
	}

	year := acct.OpenedAt.Year() + 1
	if s.marks != nil {
		for {
			marked, err := s.marks.Marked(ctx, acct.ID, "annual_fee:"+fmt.Sprint(year))
			if err != nil {
				return err
			}
			if !marked {
				break
			}
			year++
		}
	}
	s.pushAnnualFee(acct, year)
	return nil
}

// =============================================================================
// ENTRY-LOG REPLAY
// =============================================================================

// restoreState replays the entry log and statement history into the
// account's in-memory bookkeeping.
func (a *Account) restoreState(entries []engine.Entry, records []engine.StatementRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Records arrive newest first; the in-memory history runs oldest first.
	for i := len(records) - 1; i >= 0; i-- {
		a.statements = append(a.statements, statementFromRecord(records[i]))
	}
	if len(records) > 0 {
		a.lastSCOD = records[0].CutAt.StartOfDay()
	}

	idx := a.addressIndexLocked()
	for _, e := range entries {
		a.balances[e.Address] = a.balanceLocked(e.Address).Add(e.Delta.Value)
		a.replayBookkeepingLocked(e, idx)
	}

	// Authorizations fully settled or released net to zero.
	for ctid, rec := range a.auths {
		if !rec.Remaining.IsPositive() {
			delete(a.auths, ctid)
		}
	}
	// A used balance-transfer reference whose principal is back to zero has
	// been repaid and cannot be reused.
	for ref := range a.usedReferences {
		if a.principalLocked(engine.TypeBalanceTransfer, ref).IsZero() {
			a.repaidReferences[ref] = true
		}
	}
}

type addressInfo struct {
	txType engine.TransactionType
	ref    string
	sub    engine.SubState
}

// addressIndexLocked maps the generated addresses replay cares about back
// to their (type, reference, sub-state) origin.
func (a *Account) addressIndexLocked() map[engine.Address]addressInfo {
	idx := make(map[engine.Address]addressInfo)
	for _, t := range a.Template.TransactionTypes {
		for _, ref := range a.referencesLocked(t) {
			for _, sub := range []engine.SubState{engine.SubAuth, engine.SubCharged, engine.SubFeesCharged} {
				idx[engine.NewAddress(t, ref, sub)] = addressInfo{txType: t, ref: ref, sub: sub}
			}
		}
	}
	return idx
}

func (a *Account) replayBookkeepingLocked(e engine.Entry, idx map[engine.Address]addressInfo) {
	info, ok := idx[e.Address]
	if !ok {
		return
	}
	switch info.sub {
	case engine.SubAuth:
		if e.ClientTransactionID == "" {
			return
		}
		rec, ok := a.auths[e.ClientTransactionID]
		if !ok {
			rec = &authRecord{Type: info.txType, Reference: info.ref}
			a.auths[e.ClientTransactionID] = rec
		}
		rec.Remaining = rec.Remaining.Add(e.Delta.Value)

	case engine.SubCharged:
		if e.Kind != engine.KindPosting || !e.Delta.Value.IsPositive() {
			return
		}
		if e.ClientTransactionID != "" {
			a.spends[e.ClientTransactionID] = &spendRecord{
				Type:      info.txType,
				Reference: info.ref,
				Remaining: e.Delta.Value,
				SettledAt: e.EffectiveAt,
			}
		}
		if info.txType == engine.TypeBalanceTransfer && info.ref != "" {
			a.usedReferences[info.ref] = true
		}

	case engine.SubFeesCharged:
		// Same-cycle combined fee totals: only fees since the last cut count
		// against a Combine cap.
		if e.Kind == engine.KindFee && e.EffectiveAt.After(a.lastSCOD) {
			a.cycleFees[info.txType] = a.cycleFees[info.txType].Add(e.Delta.Value)
		}
	}
}
