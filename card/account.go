/*
account.go - Account state and posting-batch processing

PURPOSE:
  An Account owns one balance ledger (a map of generated addresses to
  running totals, mirrored into the append-only entry log), its instance
  and template parameters, its active flags, and the bookkeeping the
  engine needs between schedule firings: outstanding authorizations,
  settled spends (for dispute matching), used/repaid balance-transfer
  references, same-cycle fee totals, and statement history.

EVENT MODEL:
  Postings and schedule firings are applied strictly in timestamp order
  against one account at a time. Acceptance is decided synchronously for a
  whole batch before any mutation; a rejected batch leaves the ledger
  untouched.

DERIVED BALANCES:
  DEFAULT            = sum of all charged/billed/unpaid principal, interest
                       and fee sub-balances, minus DEPOSIT
  AVAILABLE_BALANCE  = credit_limit (+ overlimit if opted in) - DEFAULT
                       - outstanding authorizations
  OUTSTANDING_BALANCE = DEFAULT (kept as an exposed alias)

SEE ALSO:
  - classify.go, authorize.go: accept/reject pipeline
  - fees.go, interest.go, statement.go, repayment.go, dispute.go
*/
package card

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/card-engine/engine"
)

// =============================================================================
// ACCOUNT
// =============================================================================

type Account struct {
	ID       engine.AccountID
	OpenedAt engine.TimePoint
	Instance InstanceParams
	Template TemplateParams
	Flags    *FlagSet

	mu     sync.Mutex
	ledger engine.Ledger

	// Durable schedule marks; nil falls back to the in-process map only.
	marks engine.MarkStore

	balances map[engine.Address]decimal.Decimal

	// Outstanding authorizations by client transaction.
	auths map[engine.ClientTransactionID]*authRecord

	// Settled spends for dispute matching.
	spends map[engine.ClientTransactionID]*spendRecord

	// Balance-transfer reference lifecycle: a reference that has been used
	// and fully repaid cannot be reused.
	usedReferences   map[string]bool
	repaidReferences map[string]bool

	// Same-cycle combined fee totals per type (for FeeSpec.Combine caps).
	cycleFees map[engine.TransactionType]decimal.Decimal

	// Schedule idempotence marks.
	fired map[string]bool

	statements []*Statement
	lastSCOD   engine.TimePoint
}

type authRecord struct {
	Type      engine.TransactionType
	Reference string
	Remaining decimal.Decimal
}

type spendRecord struct {
	Type      engine.TransactionType
	Reference string
	Remaining decimal.Decimal
	SettledAt engine.TimePoint
}

func NewAccount(id engine.AccountID, inst InstanceParams, tpl TemplateParams, openedAt engine.TimePoint, ledger engine.Ledger) *Account {
	return &Account{
		ID:               id,
		OpenedAt:         openedAt,
		Instance:         inst,
		Template:         tpl,
		Flags:            NewFlagSet(),
		ledger:           ledger,
		balances:         make(map[engine.Address]decimal.Decimal),
		auths:            make(map[engine.ClientTransactionID]*authRecord),
		spends:           make(map[engine.ClientTransactionID]*spendRecord),
		usedReferences:   make(map[string]bool),
		repaidReferences: make(map[string]bool),
		cycleFees:        make(map[engine.TransactionType]decimal.Decimal),
		fired:            make(map[string]bool),
	}
}

// AmendCreditLimit changes the credit limit in place.
func (a *Account) AmendCreditLimit(limit decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Instance.CreditLimit = limit
}

// Statements returns the statement history, oldest first.
func (a *Account) Statements() []*Statement {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Statement, len(a.statements))
	copy(out, a.statements)
	return out
}

// CloseEligible reports whether the account may transition to closed:
// the net position must be zero.
func (a *Account) CloseEligible() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.defaultBalanceLocked().IsZero()
}

// =============================================================================
// BALANCE ACCESS
// =============================================================================

// Balance returns a single address balance (zero if the address is unused).
func (a *Account) Balance(addr engine.Address) decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balanceLocked(addr)
}

func (a *Account) balanceLocked(addr engine.Address) decimal.Decimal {
	if v, ok := a.balances[addr]; ok {
		return v
	}
	return decimal.Zero
}

// Balances returns all nonzero tracked balances plus the derived DEFAULT,
// OUTSTANDING_BALANCE and AVAILABLE_BALANCE addresses.
func (a *Account) Balances() map[engine.Address]decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[engine.Address]decimal.Decimal, len(a.balances)+3)
	for addr, v := range a.balances {
		if !v.IsZero() {
			out[addr] = v
		}
	}
	def := a.defaultBalanceLocked()
	out[engine.AddressDefault] = def
	out[engine.AddressOutstanding] = def
	out[engine.AddressAvailable] = a.availableBalanceLocked()
	return out
}

// DefaultBalance is the net outstanding position.
func (a *Account) DefaultBalance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.defaultBalanceLocked()
}

func (a *Account) defaultBalanceLocked() decimal.Decimal {
	total := decimal.Zero
	for _, addr := range a.outstandingAddressesLocked() {
		total = total.Add(a.balanceLocked(addr))
	}
	return total.Sub(a.balanceLocked(engine.AddressDeposit))
}

// AvailableBalance is the spendable headroom: limit (+ opted-in overlimit)
// minus net outstanding minus reserved authorizations.
func (a *Account) AvailableBalance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.availableBalanceLocked()
}

func (a *Account) availableBalanceLocked() decimal.Decimal {
	limit := a.Instance.CreditLimit
	if a.Instance.OverlimitOptIn {
		limit = limit.Add(a.Instance.Overlimit)
	}
	return limit.Sub(a.defaultBalanceLocked()).Sub(a.authReservedLocked())
}

func (a *Account) authReservedLocked() decimal.Decimal {
	total := decimal.Zero
	for _, rec := range a.auths {
		total = total.Add(rec.Remaining)
	}
	return total
}

// outstandingAddressesLocked enumerates every address that contributes to
// DEFAULT: principal, applied interest, and fees in charged/billed/unpaid
// states, for each configured type/reference and account-level fee family.
// Uncharged interest is excluded until it is applied.
func (a *Account) outstandingAddressesLocked() []engine.Address {
	var addrs []engine.Address
	for _, t := range a.Template.TransactionTypes {
		for _, ref := range a.referencesLocked(t) {
			for _, s := range []engine.SubState{
				engine.SubCharged, engine.SubBilled, engine.SubUnpaid,
				engine.SubInterestCharged, engine.SubInterestBilled, engine.SubInterestUnpaid,
				engine.SubFeesCharged, engine.SubFeesBilled, engine.SubFeesUnpaid,
			} {
				addrs = append(addrs, engine.NewAddress(t, ref, s))
			}
		}
	}
	for _, fam := range []engine.FeeFamily{
		engine.FeeLateRepayment, engine.FeeOverlimit, engine.FeeAnnual,
		engine.FeeDispute, engine.FeeExternal,
	} {
		for _, s := range engine.FeeStates {
			addrs = append(addrs, engine.FeeAddress(fam, s))
		}
	}
	return addrs
}

// referencesLocked returns the iteration set for a type: the configured
// references for balance transfers, or the single unnamed reference.
func (a *Account) referencesLocked(t engine.TransactionType) []string {
	if refs := a.Instance.TransactionReferences[t]; len(refs) > 0 {
		return refs
	}
	return []string{""}
}

// principalLocked sums charged+billed+unpaid principal for a type/reference.
func (a *Account) principalLocked(t engine.TransactionType, ref string) decimal.Decimal {
	total := decimal.Zero
	for _, s := range engine.PrincipalStates {
		total = total.Add(a.balanceLocked(engine.NewAddress(t, ref, s)))
	}
	return total
}

// typePrincipalLocked sums principal across all references of a type.
func (a *Account) typePrincipalLocked(t engine.TransactionType) decimal.Decimal {
	total := decimal.Zero
	for _, ref := range a.referencesLocked(t) {
		total = total.Add(a.principalLocked(t, ref))
	}
	return total
}

// =============================================================================
// LEDGER MUTATION
// =============================================================================

// post applies a delta to one address and records it in the entry log.
func (a *Account) post(ctx context.Context, addr engine.Address, delta decimal.Decimal, at engine.TimePoint, kind engine.EntryKind, ctid engine.ClientTransactionID, reason string) error {
	if delta.IsZero() {
		return nil
	}
	e := engine.Entry{
		ID:                  engine.EntryID(uuid.NewString()),
		AccountID:           a.ID,
		Address:             addr,
		Delta:               engine.NewAmountFromDecimal(delta, a.Instance.Denomination),
		EffectiveAt:         at,
		Kind:                kind,
		ClientTransactionID: ctid,
		Reason:              reason,
		CreatedAt:           at,
	}
	if a.ledger != nil {
		if err := a.ledger.Append(ctx, e); err != nil {
			return fmt.Errorf("%w: %s", engine.ErrEntryFailed, err)
		}
	}
	a.balances[addr] = a.balanceLocked(addr).Add(delta)
	return nil
}

// move shifts an amount between two addresses (a lifecycle transfer).
func (a *Account) move(ctx context.Context, from, to engine.Address, amount decimal.Decimal, at engine.TimePoint, kind engine.EntryKind, reason string) error {
	if amount.IsZero() {
		return nil
	}
	if err := a.post(ctx, from, amount.Neg(), at, kind, "", reason); err != nil {
		return err
	}
	return a.post(ctx, to, amount, at, kind, "", reason)
}

// setTracker forces a tracking address (REVOLVER, MAD_BALANCE, ...) to a
// value by posting the difference.
func (a *Account) setTracker(ctx context.Context, addr engine.Address, value decimal.Decimal, at engine.TimePoint, reason string) error {
	delta := value.Sub(a.balanceLocked(addr))
	return a.post(ctx, addr, delta, at, engine.KindStatement, "", reason)
}

// firedOnce marks a schedule firing, returning false if already applied.
// Marks go through the durable MarkStore when one is attached, so a
// restarted process never re-applies a firing from before the restart.
func (a *Account) firedOnce(ctx context.Context, key string) (bool, error) {
	if a.fired[key] {
		return false, nil
	}
	if a.marks != nil {
		first, err := a.marks.Mark(ctx, a.ID, key)
		if err != nil {
			return false, fmt.Errorf("schedule mark %s: %w", key, err)
		}
		if !first {
			a.fired[key] = true
			return false, nil
		}
	}
	a.fired[key] = true
	return true, nil
}

// =============================================================================
// POSTING BATCH PROCESSING
// =============================================================================

// ProcessBatch classifies and authorizes every instruction in the batch,
// then commits the whole batch. Any rejection aborts the batch before any
// ledger mutation.
func (a *Account) ProcessBatch(ctx context.Context, batch PostingBatch) (*BatchResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := &BatchResult{Accepted: true}

	// Phase 1: classify + authorize against the live snapshot, accumulating
	// in-batch deltas so cumulative limits hold across the batch.
	type planned struct {
		pi PostingInstruction
		cl Classification
	}
	var plan []planned
	tally := newBatchTally()

	for _, pi := range batch.Instructions {
		cl, rej := a.classifyLocked(pi)
		if rej != nil {
			result.reject(pi, rej)
			continue
		}
		if rej := a.authorizeLocked(pi, cl, tally); rej != nil {
			result.reject(pi, rej)
			continue
		}
		tally.add(pi, cl)
		result.accept(pi)
		plan = append(plan, planned{pi: pi, cl: cl})
	}

	if !result.Accepted {
		// No partial application of a rejected batch.
		return result, nil
	}

	// Phase 2: commit.
	for _, p := range plan {
		if err := a.commitLocked(ctx, p.pi, p.cl); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// commitLocked applies one accepted instruction to the ledger.
func (a *Account) commitLocked(ctx context.Context, pi PostingInstruction, cl Classification) error {
	at := pi.ValueTimestamp

	switch {
	case cl.IsFee:
		return a.chargeDirectFeeLocked(ctx, cl.FeeFamily, pi.Amount, at, pi.ClientTransactionID)

	case pi.Type == PostingOutboundAuth:
		return a.openAuthLocked(ctx, pi, cl)

	case pi.Type == PostingAuthAdjustment:
		return a.adjustAuthLocked(ctx, pi, cl)

	case pi.Type == PostingRelease:
		return a.releaseAuthLocked(ctx, pi, cl)

	case pi.Type == PostingSettlement:
		return a.settleAuthLocked(ctx, pi, cl)

	case pi.Type == PostingOutboundHardSettlement || pi.Type == PostingTransfer:
		return a.commitSpendLocked(ctx, cl.Type, cl.Reference, pi.Amount, at, pi.ClientTransactionID)

	case pi.IsDispute():
		return a.processDisputeLocked(ctx, pi)

	case pi.IsInbound():
		return a.allocateRepaymentLocked(ctx, pi.Amount, at, pi.ClientTransactionID)
	}
	return nil
}

// openAuthLocked reserves available balance for a pending authorization.
func (a *Account) openAuthLocked(ctx context.Context, pi PostingInstruction, cl Classification) error {
	rec, ok := a.auths[pi.ClientTransactionID]
	if !ok {
		rec = &authRecord{Type: cl.Type, Reference: cl.Reference, Remaining: decimal.Zero}
		a.auths[pi.ClientTransactionID] = rec
	}
	rec.Remaining = rec.Remaining.Add(pi.Amount)
	return a.post(ctx, engine.NewAddress(cl.Type, cl.Reference, engine.SubAuth), pi.Amount,
		pi.ValueTimestamp, engine.KindPosting, pi.ClientTransactionID, "authorization")
}

func (a *Account) adjustAuthLocked(ctx context.Context, pi PostingInstruction, cl Classification) error {
	rec, ok := a.auths[pi.ClientTransactionID]
	if !ok {
		return a.openAuthLocked(ctx, pi, cl)
	}
	rec.Remaining = rec.Remaining.Add(pi.Amount)
	if rec.Remaining.IsNegative() {
		rec.Remaining = decimal.Zero
	}
	return a.post(ctx, engine.NewAddress(rec.Type, rec.Reference, engine.SubAuth), pi.Amount,
		pi.ValueTimestamp, engine.KindPosting, pi.ClientTransactionID, "authorization adjustment")
}

func (a *Account) releaseAuthLocked(ctx context.Context, pi PostingInstruction, cl Classification) error {
	rec, ok := a.auths[pi.ClientTransactionID]
	if !ok {
		return nil
	}
	remaining := rec.Remaining
	delete(a.auths, pi.ClientTransactionID)
	return a.post(ctx, engine.NewAddress(rec.Type, rec.Reference, engine.SubAuth), remaining.Neg(),
		pi.ValueTimestamp, engine.KindPosting, pi.ClientTransactionID, "authorization released")
}

// settleAuthLocked converts a pending authorization into charged principal.
// Settlement may exceed the authorized amount; a final settlement releases
// any remainder.
func (a *Account) settleAuthLocked(ctx context.Context, pi PostingInstruction, cl Classification) error {
	txType, ref := cl.Type, cl.Reference
	settled := pi.Amount

	if rec, ok := a.auths[pi.ClientTransactionID]; ok {
		txType, ref = rec.Type, rec.Reference
		fromAuth := engine.MinDecimal(rec.Remaining, settled)
		rec.Remaining = rec.Remaining.Sub(fromAuth)
		if err := a.post(ctx, engine.NewAddress(txType, ref, engine.SubAuth), fromAuth.Neg(),
			pi.ValueTimestamp, engine.KindPosting, pi.ClientTransactionID, "authorization settled"); err != nil {
			return err
		}
		if pi.Final {
			if !rec.Remaining.IsZero() {
				if err := a.post(ctx, engine.NewAddress(txType, ref, engine.SubAuth), rec.Remaining.Neg(),
					pi.ValueTimestamp, engine.KindPosting, pi.ClientTransactionID, "final settlement released remainder"); err != nil {
					return err
				}
			}
			delete(a.auths, pi.ClientTransactionID)
		} else if rec.Remaining.IsZero() {
			delete(a.auths, pi.ClientTransactionID)
		}
	}

	return a.commitSpendLocked(ctx, txType, ref, settled, pi.ValueTimestamp, pi.ClientTransactionID)
}

// commitSpendLocked posts settled principal, drawing down DEPOSIT first,
// then runs the fee engine for the transaction type.
func (a *Account) commitSpendLocked(ctx context.Context, t engine.TransactionType, ref string, amount decimal.Decimal, at engine.TimePoint, ctid engine.ClientTransactionID) error {
	deposit := a.balanceLocked(engine.AddressDeposit)
	drawn := engine.MinDecimal(deposit, amount)
	onCredit := amount.Sub(drawn)

	if drawn.IsPositive() {
		if err := a.post(ctx, engine.AddressDeposit, drawn.Neg(), at, engine.KindPosting, ctid, "spend drawn from deposit"); err != nil {
			return err
		}
	}
	if onCredit.IsPositive() {
		if err := a.post(ctx, engine.NewAddress(t, ref, engine.SubCharged), onCredit, at, engine.KindPosting, ctid, "settled"); err != nil {
			return err
		}
	}

	if t == engine.TypeBalanceTransfer && ref != "" {
		a.usedReferences[ref] = true
	}
	if ctid != "" {
		a.spends[ctid] = &spendRecord{Type: t, Reference: ref, Remaining: amount, SettledAt: at}
	}

	depositCovered := onCredit.IsZero()
	return a.applyTransactionFeeLocked(ctx, t, ref, amount, depositCovered, at, ctid)
}
