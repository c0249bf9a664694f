package card_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/card-engine/card"
	"github.com/warp/card-engine/engine"
)

// =============================================================================
// CUT DATES
// =============================================================================

func TestNextSCODKeepsOpeningDayOfMonth(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 15))

	first := acct.NextSCOD(day(time.January, 15))
	assert.True(t, first.Equal(day(time.February, 15)))

	second := acct.NextSCOD(first)
	assert.True(t, second.Equal(day(time.March, 15)))
}

func TestNextSCODClampsShortMonths(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 31))

	first := acct.NextSCOD(day(time.January, 31))
	assert.True(t, first.Equal(day(time.February, 28)))

	// The day-of-month recovers in longer months.
	second := acct.NextSCOD(first)
	assert.True(t, second.Equal(day(time.March, 31)))
}

// =============================================================================
// STATEMENT CUT
// =============================================================================

func TestStatementCutBillsChargedBalances(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 10), spend("txn-1", "3000"))
	notif := cut(t, acct, day(time.February, 1))
	require.NotNil(t, notif)

	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubCharged), "0")
	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubBilled), "3000")

	assert.True(t, notif.CurrentStatementBalance.Equal(dec("3000")))
	assert.True(t, notif.PaymentDueAt.Equal(day(time.February, 22)), "due 21 days after the cut")
	assert.True(t, notif.NextStatementCutOff.Equal(day(time.March, 1)))
	assert.False(t, notif.IsFinal)

	stmts := acct.Statements()
	require.Len(t, stmts, 1)
	assert.True(t, stmts[0].StatementBalance.Equal(dec("3000")))
	assert.True(t, stmts[0].PeriodEnd.Equal(day(time.January, 31)))
}

func TestStatementCutIsIdempotentPerDay(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 10), spend("txn-1", "3000"))
	require.NotNil(t, cut(t, acct, day(time.February, 1)))

	// A re-fired cut for the same day does nothing.
	assert.Nil(t, cut(t, acct, day(time.February, 1)))
	assert.Len(t, acct.Statements(), 1)
}

// =============================================================================
// MINIMUM AMOUNT DUE
// =============================================================================

func TestMADFormulaWithFloor(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 10), spend("txn-1", "3000"))
	notif := cut(t, acct, day(time.February, 1))

	// 1% of 3000 = 30, floored at the fixed minimum of 100.
	require.NotNil(t, notif)
	assert.True(t, notif.MinimumAmountDue.Equal(dec("100")))
	requireBalance(t, acct, engine.AddressMADBalance, "100")
}

func TestMADCappedAtStatementBalance(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	// Statement balance below the fixed minimum.
	submit(t, acct, day(time.January, 10), spend("txn-1", "60"))
	notif := cut(t, acct, day(time.February, 1))

	require.NotNil(t, notif)
	assert.True(t, notif.MinimumAmountDue.Equal(dec("60")))
}

func TestMADIncludesFullInterestAndFees(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), aprTemplate("0.365"), day(time.January, 1))

	// 9000 principal, one day of interest (9.00), one direct fee (25).
	submit(t, acct, day(time.January, 5), spend("txn-1", "9000"))
	accrue(t, acct, day(time.January, 6))

	fee := spend("fee-1", "25")
	fee.InstructionDetails = map[string]string{card.DetailFeeType: card.FeeTypeDispute}
	submit(t, acct, day(time.January, 7), fee)

	notif := cut(t, acct, day(time.February, 1))

	// 1% of 9000 + 100% of interest + 100% of fees = 90 + 9 + 25.
	require.NotNil(t, notif)
	assert.True(t, notif.MinimumAmountDue.Equal(dec("124")), "got %s", notif.MinimumAmountDue)
}

func TestMADZeroFlagWins(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))
	acct.Flags.Activate("REPAYMENT_HOLIDAY", engine.TimePoint{})
	acct.Flags.Activate("OVER_90_DPD", engine.TimePoint{})

	submit(t, acct, day(time.January, 10), spend("txn-1", "3000"))
	notif := cut(t, acct, day(time.February, 1))

	// Zero-MAD takes precedence over full-statement.
	require.NotNil(t, notif)
	assert.True(t, notif.MinimumAmountDue.IsZero())
}

func TestMADFullStatementFlag(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))
	acct.Flags.Activate("OVER_90_DPD", engine.TimePoint{})

	submit(t, acct, day(time.January, 10), spend("txn-1", "3000"))
	notif := cut(t, acct, day(time.February, 1))

	require.NotNil(t, notif)
	assert.True(t, notif.MinimumAmountDue.Equal(dec("3000")))
}

func TestMADFullOutstandingOnClosureRequest(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))
	acct.Flags.Activate("ACCOUNT_CLOSURE_REQUESTED", engine.TimePoint{})

	submit(t, acct, day(time.January, 10), spend("txn-1", "3000"))
	notif := cut(t, acct, day(time.February, 1))

	require.NotNil(t, notif)
	assert.True(t, notif.MinimumAmountDue.Equal(dec("3000")))
}

func TestExpiredFlagNoLongerApplies(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))
	acct.Flags.Activate("REPAYMENT_HOLIDAY", day(time.January, 20))

	submit(t, acct, day(time.January, 10), spend("txn-1", "3000"))
	notif := cut(t, acct, day(time.February, 1))

	// The holiday expired before the cut: the normal formula applies.
	require.NotNil(t, notif)
	assert.True(t, notif.MinimumAmountDue.Equal(dec("100")))
}

// =============================================================================
// PAYMENT DUE DATE
// =============================================================================

func TestPDDAgesBilledToUnpaidAndOpensOverdue(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 10), spend("txn-1", "3000"))
	cut(t, acct, day(time.February, 1))
	processPDD(t, acct, day(time.February, 22))

	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubBilled), "0")
	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubUnpaid), "3000")
	requireBalance(t, acct, engine.OverdueAddress(1), "100")
	assert.True(t, acct.Revolver())
}

func TestOverdueBucketsAgeEachMissedCycle(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 10), spend("txn-1", "3000"))

	// Two missed cycles.
	cut(t, acct, day(time.February, 1))
	processPDD(t, acct, day(time.February, 22))
	cut(t, acct, day(time.March, 1))
	processPDD(t, acct, day(time.March, 22))

	// The first missed minimum has aged one bucket; the second cycle's
	// newly-missed portion fills bucket one.
	requireBalance(t, acct, engine.OverdueAddress(2), "100")
	assert.True(t, acct.Balance(engine.OverdueAddress(1)).IsPositive())
}

func TestPartialRepaymentBeforePDDStillAges(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 10), spend("txn-1", "3000"))
	cut(t, acct, day(time.February, 1))

	// Repay half the minimum due before the due date.
	submit(t, acct, day(time.February, 10), repay("pay-1", "50"))
	processPDD(t, acct, day(time.February, 22))

	// Only the unpaid half of the minimum lands in the overdue bucket.
	requireBalance(t, acct, engine.OverdueAddress(1), "50")
	assert.True(t, acct.Revolver())
}

func TestFullRepaymentBeforePDDLeavesNoTrace(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 10), spend("txn-1", "3000"))
	cut(t, acct, day(time.February, 1))
	submit(t, acct, day(time.February, 10), repay("pay-1", "3000"))
	processPDD(t, acct, day(time.February, 22))

	requireBalance(t, acct, engine.OverdueAddress(1), "0")
	assert.False(t, acct.Revolver())
	assert.True(t, acct.DefaultBalance().IsZero())
}

// =============================================================================
// BLOCKING FLAGS
// =============================================================================

func TestRepaymentHolidaySuppressesPDDTransition(t *testing.T) {
	inst := baseInstance()
	inst.LateRepaymentFee = dec("100")
	acct := newTestAccount(t, inst, zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 10), spend("txn-1", "3000"))
	cut(t, acct, day(time.February, 1))

	acct.Flags.Activate("REPAYMENT_HOLIDAY", engine.TimePoint{})
	processPDD(t, acct, day(time.February, 22))

	// Billed stays billed; no late fee, no overdue, no revolver.
	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubBilled), "3000")
	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubUnpaid), "0")
	requireBalance(t, acct, engine.FeeAddress(engine.FeeLateRepayment, engine.SubFeesCharged), "0")
	requireBalance(t, acct, engine.OverdueAddress(1), "0")
	assert.False(t, acct.Revolver())
}

func TestOverdueOnlyBlockingFlagSuppressesWholeTransition(t *testing.T) {
	// GIVEN a product where only the overdue-blocking list names the flag
	inst := baseInstance()
	inst.LateRepaymentFee = dec("100")
	tpl := zeroRateTemplate()
	tpl.OverdueAmountBlockingFlags = []string{"NO_OVERDUE"}
	tpl.BilledToUnpaidTransferBlockingFlags = nil
	acct := newTestAccount(t, inst, tpl, day(time.January, 1))

	submit(t, acct, day(time.January, 10), spend("txn-1", "3000"))
	cut(t, acct, day(time.February, 1))

	acct.Flags.Activate("NO_OVERDUE", engine.TimePoint{})
	processPDD(t, acct, day(time.February, 22))

	// THEN either active blocking list suppresses the whole transition:
	// billed stays billed, no late fee, no overdue bucket
	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubBilled), "3000")
	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubUnpaid), "0")
	requireBalance(t, acct, engine.FeeAddress(engine.FeeLateRepayment, engine.SubFeesCharged), "0")
	requireBalance(t, acct, engine.OverdueAddress(1), "0")
	assert.False(t, acct.Revolver())
}
