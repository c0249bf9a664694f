package card_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/card-engine/card"
	"github.com/warp/card-engine/engine"
)

// aprTemplate returns a template with a single controlled rate. 0.365 in a
// non-leap year gives a daily rate of exactly 0.001.
func aprTemplate(apr string) card.TemplateParams {
	tpl := card.DefaultTemplateParams()
	tpl.AnnualPercentageRate = dec(apr)
	return tpl
}

var (
	purchaseCharged   = engine.NewAddress(engine.TypePurchase, "", engine.SubCharged)
	purchaseUncharged = engine.NewAddress(engine.TypePurchase, "", engine.SubInterestUncharged)
	purchaseIntCharg  = engine.NewAddress(engine.TypePurchase, "", engine.SubInterestCharged)
)

// =============================================================================
// ACCRUAL FROM TRANSACTION DAY
// =============================================================================

func TestDailyAccrualOnChargedBalanceIsUncharged(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), aprTemplate("0.365"), day(time.January, 1))

	submit(t, acct, day(time.January, 5), spend("txn-1", "1000"))
	accrue(t, acct, day(time.January, 6))

	// 1000 * 0.365/365 = 1.00000, held in the grace partition.
	requireBalance(t, acct, purchaseUncharged, "1")
	requireBalance(t, acct, purchaseIntCharg, "0")

	// Grace interest is not outstanding until applied.
	assert.True(t, acct.DefaultBalance().Equal(dec("1000")))
}

func TestAccrualRoundsToFiveDecimalPlaces(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), aprTemplate("0.249"), day(time.January, 1))

	submit(t, acct, day(time.January, 5), spend("txn-1", "1000"))
	accrue(t, acct, day(time.January, 6))

	// 1000 * 0.249/365 = 0.68219178... -> 0.68219
	requireBalance(t, acct, purchaseUncharged, "0.68219")
}

func TestAccrualDenominatorFollowsCalendarYear(t *testing.T) {
	// GIVEN a balance carried across a Dec->Jan leap boundary
	opened := engine.NewTimePoint(2023, time.December, 1)
	acct := newTestAccount(t, baseInstance(), aprTemplate("0.249"), opened)

	submit(t, acct, engine.NewTimePoint(2023, time.December, 20), spend("txn-1", "1000"))

	// WHEN accrual runs in each year
	accrue(t, acct, engine.NewTimePoint(2023, time.December, 31))
	dec31 := acct.Balance(purchaseUncharged)

	accrue(t, acct, engine.NewTimePoint(2024, time.January, 1))
	jan1Delta := acct.Balance(purchaseUncharged).Sub(dec31)

	// THEN the denominator switches from 365 to 366
	assert.True(t, dec31.Equal(dec("0.68219")), "365-day rate, got %s", dec31)
	assert.True(t, jan1Delta.Equal(dec("0.68033")), "366-day rate, got %s", jan1Delta)
}

func TestCashAdvanceInterestBillsAcrossLeapBoundary(t *testing.T) {
	// GIVEN an 8000 cash advance at 11.25% APR late in a non-leap December
	opened := engine.NewTimePoint(2019, time.December, 15)
	acct := newTestAccount(t, baseInstance(), aprTemplate("0.1125"), opened)

	submit(t, acct, engine.NewTimePoint(2019, time.December, 30),
		spendCoded("atm-1", "8000", "cash_advance"))

	// WHEN accrual runs daily through the year boundary up to the cut
	accrue(t, acct, engine.NewTimePoint(2019, time.December, 31))
	for d := 1; d <= 15; d++ {
		accrue(t, acct, engine.NewTimePoint(2020, time.January, d))
	}
	cut(t, acct, engine.NewTimePoint(2020, time.January, 15))

	// THEN one 365-day accrual and fifteen 366-day accruals bill together:
	// 2.46575 + 15 * 2.45902 = 39.35105 -> 39.35
	requireBalance(t, acct, engine.NewAddress(engine.TypeCashAdvance, "", engine.SubInterestBilled), "39.35")
}

func TestAccrualIsIdempotentPerDay(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), aprTemplate("0.365"), day(time.January, 1))

	submit(t, acct, day(time.January, 5), spend("txn-1", "1000"))
	accrue(t, acct, day(time.January, 6))
	accrue(t, acct, day(time.January, 6)) // re-fired job

	requireBalance(t, acct, purchaseUncharged, "1")
}

// =============================================================================
// ACCRUAL FROM STATEMENT CUT
// =============================================================================

func TestFromSCODModeSkipsSameCycleBalances(t *testing.T) {
	tpl := aprTemplate("0.365")
	tpl.AccrueInterestFromTxnDay[engine.TypePurchase] = false
	acct := newTestAccount(t, baseInstance(), tpl, day(time.January, 1))

	submit(t, acct, day(time.January, 5), spend("txn-1", "1000"))

	// Charged balance: no accrual at all in this mode.
	accrue(t, acct, day(time.January, 6))
	requireBalance(t, acct, purchaseUncharged, "0")
	requireBalance(t, acct, purchaseIntCharg, "0")

	// Once billed, interest accrues directly as charged interest.
	cut(t, acct, day(time.February, 1))
	accrue(t, acct, day(time.February, 2))
	requireBalance(t, acct, purchaseIntCharg, "1")
}

// =============================================================================
// APPLICATION AND CANCELLATION
// =============================================================================

func TestStatementCutAppliesGraceInterest(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), aprTemplate("0.249"), day(time.January, 1))

	submit(t, acct, day(time.January, 5), spend("txn-1", "1000"))
	for d := 6; d <= 8; d++ {
		accrue(t, acct, day(time.January, d))
	}
	// 3 * 0.68219 = 2.04657 accrued at 5dp.
	requireBalance(t, acct, purchaseUncharged, "2.04657")

	cut(t, acct, day(time.February, 1))

	// Applied at 2dp, then immediately billed by the cut's sweep.
	requireBalance(t, acct, purchaseUncharged, "0")
	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubInterestBilled), "2.05")
}

func TestFullRepaymentCancelsGraceInterest(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), aprTemplate("0.365"), day(time.January, 1))

	submit(t, acct, day(time.January, 5), spend("txn-1", "1000"))
	accrue(t, acct, day(time.January, 6))
	accrue(t, acct, day(time.January, 7))
	requireBalance(t, acct, purchaseUncharged, "2")

	// GIVEN the principal repaid in full before the cut
	submit(t, acct, day(time.January, 10), repay("pay-1", "1000"))

	// THEN the grace partition is written off, nothing is owed
	requireBalance(t, acct, purchaseUncharged, "0")
	assert.True(t, acct.DefaultBalance().IsZero())
}

func TestPartialRepaymentKeepsGraceInterest(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), aprTemplate("0.365"), day(time.January, 1))

	submit(t, acct, day(time.January, 5), spend("txn-1", "1000"))
	accrue(t, acct, day(time.January, 6))

	submit(t, acct, day(time.January, 10), repay("pay-1", "400"))

	requireBalance(t, acct, purchaseCharged, "600")
	requireBalance(t, acct, purchaseUncharged, "1")
}

// =============================================================================
// PER-REFERENCE RATES
// =============================================================================

func TestPerReferenceAPROverride(t *testing.T) {
	inst := btInstance()
	inst.TransactionAPR = map[string]decimal.Decimal{
		"balance_transfer:ref1": dec("0.365"),
		"balance_transfer:ref2": dec("0.730"),
	}
	acct := newTestAccount(t, inst, aprTemplate("0"), day(time.January, 1))

	submit(t, acct, day(time.January, 5),
		balanceTransfer("bt-1", "1000", "ref1"),
		balanceTransfer("bt-2", "1000", "ref2"),
	)
	accrue(t, acct, day(time.January, 6))

	requireBalance(t, acct, engine.NewAddress(engine.TypeBalanceTransfer, "ref1", engine.SubInterestUncharged), "1")
	requireBalance(t, acct, engine.NewAddress(engine.TypeBalanceTransfer, "ref2", engine.SubInterestUncharged), "2")
}

func TestRevolverMarker(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))
	assert.False(t, acct.Revolver())

	submit(t, acct, day(time.January, 10), spend("txn-1", "1000"))
	cut(t, acct, day(time.February, 1))
	processPDD(t, acct, day(time.February, 22))

	assert.True(t, acct.Revolver())

	submit(t, acct, day(time.February, 25), repay("pay-1", "1100"))
	assert.False(t, acct.Revolver())
}
