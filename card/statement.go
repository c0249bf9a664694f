/*
statement.go - Statement cycle (SCOD/PDD) state machine

PURPOSE:
  The periodic jobs that close a statement period and age unpaid balances.

  At SCOD (statement cut-off date):
    1. Apply uncharged (grace) interest into charged interest
    2. Sweep every *_CHARGED into *_BILLED (principal, interest, fees)
    3. Compute the statement balance and the minimum amount due (MAD)
    4. Reset cycle trackers, evaluate the overlimit fee, emit a
       statement-data notification

  At PDD (payment due date = SCOD + payment_due_period days, no weekend or
  holiday adjustment, day-of-month clamped to short months):
    1. Evaluate the late-repayment fee against the unpaid minimum due
    2. Age overdue buckets (OVERDUE_n -> OVERDUE_n+1) and open OVERDUE_1
    3. Set the REVOLVER marker if the statement was not paid in full
    4. Sweep every *_BILLED into *_UNPAID

  Blocking flags (e.g. REPAYMENT_HOLIDAY) suppress the whole PDD
  transition: billed amounts stay billed, no overdue bucket, no late fee.

  Both jobs are idempotent per cycle: re-evaluating an already-billed
  period produces no balance change. A repayment landing between the
  logical PDD instant and the job's execution is reflected against live
  balances, never a stale snapshot.
*/
package card

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/card-engine/engine"
)

// =============================================================================
// STATEMENT
// =============================================================================

type Statement struct {
	ID        string
	AccountID engine.AccountID

	PeriodStart engine.TimePoint
	PeriodEnd   engine.TimePoint
	CutAt       engine.TimePoint
	DueAt       engine.TimePoint

	StatementBalance decimal.Decimal
	MinimumAmountDue decimal.Decimal
	IsFinal          bool
}

// StatementNotification is the outbound statement-data event.
type StatementNotification struct {
	AccountID               engine.AccountID
	PaymentDueAt            engine.TimePoint
	NextPaymentDueAt        engine.TimePoint
	MinimumAmountDue        decimal.Decimal
	StartOfStatementPeriod  engine.TimePoint
	EndOfStatementPeriod    engine.TimePoint
	CurrentStatementBalance decimal.Decimal
	NextStatementCutOff     engine.TimePoint
	IsFinal                 bool
}

// NextSCOD returns the first statement cut strictly after the given time.
// Cuts keep the opening day-of-month, clamped to shorter months, and the
// full day recovers in longer months (a Jan-31 opening cuts Feb 28 then
// Mar 31).
func (a *Account) NextSCOD(after engine.TimePoint) engine.TimePoint {
	year, month := a.OpenedAt.Year(), a.OpenedAt.Month()
	for {
		month++
		if month > time.December {
			month = time.January
			year++
		}
		cut := engine.ClampedDate(year, month, a.OpenedAt.Day())
		if cut.After(after) {
			return cut
		}
	}
}

// =============================================================================
// SCOD
// =============================================================================

// CutStatement closes the statement period ending at the day before at.
// Idempotent per cut date.
func (a *Account) CutStatement(ctx context.Context, at engine.TimePoint, isFinal bool) (*StatementNotification, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	first, err := a.firedOnce(ctx, "scod:"+at.DateString())
	if err != nil {
		return nil, err
	}
	if !first {
		return nil, nil
	}

	// 1. Apply grace interest: uncharged rounds to 2dp and becomes charged.
	for _, t := range a.Template.TransactionTypes {
		for _, ref := range a.referencesLocked(t) {
			if err := a.applyUnchargedInterestLocked(ctx, t, ref, at); err != nil {
				return nil, err
			}
		}
	}

	// 2. Bill everything charged.
	if err := a.sweepLocked(ctx, at, chargedToBilled); err != nil {
		return nil, err
	}

	statementBalance := engine.MaxDecimal(a.defaultBalanceLocked(), decimal.Zero).Round(2)

	// 3. Minimum amount due.
	mad := a.computeMADLocked(statementBalance, at)
	if err := a.setTracker(ctx, engine.AddressMADBalance, mad, at, "minimum amount due set"); err != nil {
		return nil, err
	}
	if err := a.setTracker(ctx, engine.AddressTotalRepaymentsLastStatement, decimal.Zero, at, "repayment tracker reset"); err != nil {
		return nil, err
	}

	// 4. Overlimit fee lands after billing so it belongs to the next cycle.
	if err := a.chargeOverlimitFeeIfDueLocked(ctx, at); err != nil {
		return nil, err
	}
	a.cycleFees = make(map[engine.TransactionType]decimal.Decimal)

	periodStart := a.lastSCOD
	if periodStart.IsZero() {
		periodStart = a.OpenedAt.StartOfDay()
	}
	stmt := &Statement{
		ID:               uuid.NewString(),
		AccountID:        a.ID,
		PeriodStart:      periodStart,
		PeriodEnd:        at.StartOfDay().AddDays(-1),
		CutAt:            at,
		DueAt:            a.paymentDueDate(at),
		StatementBalance: statementBalance,
		MinimumAmountDue: mad,
		IsFinal:          isFinal,
	}
	a.statements = append(a.statements, stmt)
	a.lastSCOD = at.StartOfDay()

	nextCut := a.NextSCOD(at)
	return &StatementNotification{
		AccountID:               a.ID,
		PaymentDueAt:            stmt.DueAt,
		NextPaymentDueAt:        a.paymentDueDate(nextCut),
		MinimumAmountDue:        mad,
		StartOfStatementPeriod:  stmt.PeriodStart,
		EndOfStatementPeriod:    stmt.PeriodEnd,
		CurrentStatementBalance: statementBalance,
		NextStatementCutOff:     nextCut,
		IsFinal:                 isFinal,
	}, nil
}

// paymentDueDate is SCOD + payment_due_period days. Weekends do not shift
// it; only short months clamp the day.
func (a *Account) paymentDueDate(cut engine.TimePoint) engine.TimePoint {
	return cut.StartOfDay().AddDays(a.Instance.PaymentDuePeriod)
}

func (a *Account) applyUnchargedInterestLocked(ctx context.Context, t engine.TransactionType, ref string, at engine.TimePoint) error {
	addr := engine.NewAddress(t, ref, engine.SubInterestUncharged)
	uncharged := a.balanceLocked(addr)
	if uncharged.IsZero() {
		return nil
	}
	applied := uncharged.Round(2)
	if err := a.post(ctx, addr, uncharged.Neg(), at, engine.KindInterest, "", "uncharged interest applied"); err != nil {
		return err
	}
	if applied.IsPositive() {
		return a.post(ctx, engine.NewAddress(t, ref, engine.SubInterestCharged), applied, at,
			engine.KindInterest, "", "uncharged interest applied")
	}
	return nil
}

// computeMADLocked evaluates the flag rule list, then the formula:
// per-type percentages of billed principal, plus the interest and fees
// percentages, plus the full overdue carry, floored by the fixed minimum
// and capped at the statement balance.
func (a *Account) computeMADLocked(statementBalance decimal.Decimal, at engine.TimePoint) decimal.Decimal {
	switch EvaluateMADOverride(a.Template, a.Flags, at) {
	case MADZero:
		return decimal.Zero
	case MADFullOutstanding:
		return engine.MaxDecimal(a.defaultBalanceLocked(), decimal.Zero).Round(2)
	case MADFullStatement:
		return statementBalance
	}

	mad := decimal.Zero
	for _, t := range a.Template.TransactionTypes {
		pct, ok := a.Template.MinimumPercentageDue[string(t)]
		if !ok {
			continue
		}
		billed := decimal.Zero
		for _, ref := range a.referencesLocked(t) {
			billed = billed.Add(a.balanceLocked(engine.NewAddress(t, ref, engine.SubBilled))).
				Add(a.balanceLocked(engine.NewAddress(t, ref, engine.SubUnpaid)))
		}
		mad = mad.Add(pct.Mul(billed))
	}
	if pct, ok := a.Template.MinimumPercentageDue["interest"]; ok {
		mad = mad.Add(pct.Mul(a.billedCategoryLocked(engine.SubInterestBilled, engine.SubInterestUnpaid)))
	}
	if pct, ok := a.Template.MinimumPercentageDue["fees"]; ok {
		mad = mad.Add(pct.Mul(a.billedCategoryLocked(engine.SubFeesBilled, engine.SubFeesUnpaid)))
	}
	mad = mad.Add(a.overdueTotalLocked())

	if statementBalance.IsPositive() {
		mad = engine.MaxDecimal(mad, a.Template.MinimumAmountDue)
	}
	return engine.MinDecimal(mad.Round(2), statementBalance)
}

func (a *Account) billedCategoryLocked(states ...engine.SubState) decimal.Decimal {
	total := decimal.Zero
	for _, t := range a.Template.TransactionTypes {
		for _, ref := range a.referencesLocked(t) {
			for _, s := range states {
				total = total.Add(a.balanceLocked(engine.NewAddress(t, ref, s)))
			}
		}
	}
	for _, fam := range []engine.FeeFamily{
		engine.FeeLateRepayment, engine.FeeOverlimit, engine.FeeAnnual,
		engine.FeeDispute, engine.FeeExternal,
	} {
		for _, s := range states {
			if s == engine.SubFeesBilled || s == engine.SubFeesUnpaid {
				total = total.Add(a.balanceLocked(engine.FeeAddress(fam, s)))
			}
		}
	}
	return total
}

func (a *Account) overdueTotalLocked() decimal.Decimal {
	total := decimal.Zero
	for addr, v := range a.balances {
		if _, ok := engine.ParseOverdue(addr); ok {
			total = total.Add(v)
		}
	}
	return total
}

func (a *Account) maxOverdueLocked() int {
	max := 0
	for addr, v := range a.balances {
		if n, ok := engine.ParseOverdue(addr); ok && !v.IsZero() && n > max {
			max = n
		}
	}
	return max
}

// =============================================================================
// PDD
// =============================================================================

// ProcessPaymentDue ages the prior statement once its due date passes.
// Idempotent per due date; evaluated against live balances so a repayment
// in the scheduling-lag window still counts.
func (a *Account) ProcessPaymentDue(ctx context.Context, at engine.TimePoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	first, err := a.firedOnce(ctx, "pdd:"+at.DateString())
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	// Either blocking flag list suppresses the whole transition: billed
	// stays billed, no overdue bucket, no late fee, even though the nominal
	// PDD has passed.
	if BlocksBilledToUnpaid(a.Template, a.Flags, at) || BlocksOverdue(a.Template, a.Flags, at) {
		return nil
	}

	unpaidMAD := a.balanceLocked(engine.AddressMADBalance)

	if unpaidMAD.IsPositive() {
		if err := a.chargeLateFeeLocked(ctx, at); err != nil {
			return err
		}

		// Age existing buckets, oldest first so no shift collides.
		for n := a.maxOverdueLocked(); n >= 1; n-- {
			amt := a.balanceLocked(engine.OverdueAddress(n))
			if amt.IsZero() {
				continue
			}
			if err := a.move(ctx, engine.OverdueAddress(n), engine.OverdueAddress(n+1), amt, at,
				engine.KindStatement, fmt.Sprintf("overdue aged to %d cycles", n+1)); err != nil {
				return err
			}
		}
		// The new bucket carries only the newly-missed portion; the
		// aged buckets already carry the rest of the unpaid minimum.
		newOverdue := engine.MaxDecimal(unpaidMAD.Sub(a.overdueTotalLocked()), decimal.Zero)
		if newOverdue.IsPositive() {
			if err := a.post(ctx, engine.OverdueAddress(1), newOverdue, at,
				engine.KindStatement, "", "minimum amount due unpaid at PDD"); err != nil {
				return err
			}
		}
	}

	// Revolver marker: set while any part of the statement remains unpaid.
	billedRemaining := a.billedCategoryLocked(engine.SubBilled, engine.SubInterestBilled, engine.SubFeesBilled).
		Add(a.billedCategoryLocked(engine.SubUnpaid, engine.SubInterestUnpaid, engine.SubFeesUnpaid))
	if billedRemaining.IsPositive() {
		if err := a.setTracker(ctx, engine.AddressRevolver, decimal.NewFromInt(-1), at, "revolver set"); err != nil {
			return err
		}
	}

	// Billed ages to unpaid.
	return a.sweepLocked(ctx, at, billedToUnpaid)
}

// =============================================================================
// LIFECYCLE SWEEPS
// =============================================================================

type sweepKind int

const (
	chargedToBilled sweepKind = iota
	billedToUnpaid
)

var sweepTransitions = map[sweepKind][]struct{ from, to engine.SubState }{
	chargedToBilled: {
		{engine.SubCharged, engine.SubBilled},
		{engine.SubInterestCharged, engine.SubInterestBilled},
		{engine.SubFeesCharged, engine.SubFeesBilled},
	},
	billedToUnpaid: {
		{engine.SubBilled, engine.SubUnpaid},
		{engine.SubInterestBilled, engine.SubInterestUnpaid},
		{engine.SubFeesBilled, engine.SubFeesUnpaid},
	},
}

var sweepFeeTransitions = map[sweepKind]struct{ from, to engine.SubState }{
	chargedToBilled: {engine.SubFeesCharged, engine.SubFeesBilled},
	billedToUnpaid:  {engine.SubFeesBilled, engine.SubFeesUnpaid},
}

// sweepLocked moves every positive balance through one lifecycle stage for
// all transaction types, references and fee families.
func (a *Account) sweepLocked(ctx context.Context, at engine.TimePoint, kind sweepKind) error {
	reason := "statement cut"
	if kind == billedToUnpaid {
		reason = "payment due date passed"
	}

	for _, t := range a.Template.TransactionTypes {
		for _, ref := range a.referencesLocked(t) {
			for _, tr := range sweepTransitions[kind] {
				from := engine.NewAddress(t, ref, tr.from)
				amt := a.balanceLocked(from)
				if amt.IsPositive() {
					if err := a.move(ctx, from, engine.NewAddress(t, ref, tr.to), amt, at,
						engine.KindStatement, reason); err != nil {
						return err
					}
				}
			}
		}
	}

	tr := sweepFeeTransitions[kind]
	for _, fam := range []engine.FeeFamily{
		engine.FeeLateRepayment, engine.FeeOverlimit, engine.FeeAnnual,
		engine.FeeDispute, engine.FeeExternal,
	} {
		from := engine.FeeAddress(fam, tr.from)
		amt := a.balanceLocked(from)
		if amt.IsPositive() {
			if err := a.move(ctx, from, engine.FeeAddress(fam, tr.to), amt, at,
				engine.KindStatement, reason); err != nil {
				return err
			}
		}
	}
	return nil
}
