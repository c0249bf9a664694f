package card_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/card-engine/card"
	"github.com/warp/card-engine/engine"
)

// =============================================================================
// WATERFALL ORDER
// =============================================================================

func TestAllocationOrderPutsFeesBeforeInterestBeforePrincipal(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	order := acct.AllocationOrder()

	idx := func(addr engine.Address) int {
		for i, a := range order {
			if a == addr {
				return i
			}
		}
		t.Fatalf("address %s missing from allocation order", addr)
		return -1
	}

	// Category order: fees, then interest, then principal.
	assert.Less(t,
		idx(engine.FeeAddress(engine.FeeLateRepayment, engine.SubFeesUnpaid)),
		idx(engine.NewAddress(engine.TypeCashAdvance, "", engine.SubInterestUnpaid)))
	assert.Less(t,
		idx(engine.NewAddress(engine.TypeCashAdvance, "", engine.SubInterestUnpaid)),
		idx(engine.NewAddress(engine.TypeCashAdvance, "", engine.SubUnpaid)))

	// State order within a category: unpaid before billed before charged.
	assert.Less(t,
		idx(engine.NewAddress(engine.TypePurchase, "", engine.SubUnpaid)),
		idx(engine.NewAddress(engine.TypePurchase, "", engine.SubBilled)))
	assert.Less(t,
		idx(engine.NewAddress(engine.TypePurchase, "", engine.SubBilled)),
		idx(engine.NewAddress(engine.TypePurchase, "", engine.SubCharged)))

	// Type order within a tier: cash advance before purchase.
	assert.Less(t,
		idx(engine.NewAddress(engine.TypeCashAdvance, "", engine.SubUnpaid)),
		idx(engine.NewAddress(engine.TypePurchase, "", engine.SubUnpaid)))
}

func TestRepaymentClearsFeesBeforePrincipal(t *testing.T) {
	// GIVEN unpaid principal, billed principal and a billed late fee
	inst := baseInstance()
	inst.LateRepaymentFee = dec("100")
	acct := newTestAccount(t, inst, zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 10), spend("txn-1", "1000"))
	cut(t, acct, day(time.February, 1))
	processPDD(t, acct, day(time.February, 22)) // unpaid 1000, late fee charged 100
	submit(t, acct, day(time.February, 25), spend("txn-2", "500"))
	cut(t, acct, day(time.March, 1)) // late fee billed, new principal billed

	// WHEN a payment covering only the fee arrives
	submit(t, acct, day(time.March, 5), repay("pay-1", "100"))

	// THEN the fee clears first, principal untouched
	requireBalance(t, acct, engine.FeeAddress(engine.FeeLateRepayment, engine.SubFeesBilled), "0")
	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubUnpaid), "1000")
	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubBilled), "500")
}

func TestRepaymentExhaustsOlderPrincipalFirst(t *testing.T) {
	inst := baseInstance()
	acct := newTestAccount(t, inst, zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 10), spend("txn-1", "1000"))
	cut(t, acct, day(time.February, 1))
	processPDD(t, acct, day(time.February, 22))
	submit(t, acct, day(time.February, 25), spend("txn-2", "500"))
	cut(t, acct, day(time.March, 1))
	submit(t, acct, day(time.March, 5), spend("txn-3", "200"))

	// unpaid 1000, billed 500, charged 200; a 1200 payment crosses two tiers.
	submit(t, acct, day(time.March, 10), repay("pay-1", "1200"))

	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubUnpaid), "0")
	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubBilled), "300")
	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubCharged), "200")
}

// =============================================================================
// TRACKERS
// =============================================================================

func TestRepaymentReducesMADAndOverdue(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 10), spend("txn-1", "3000"))
	cut(t, acct, day(time.February, 1))
	processPDD(t, acct, day(time.February, 22))
	requireBalance(t, acct, engine.AddressMADBalance, "100")
	requireBalance(t, acct, engine.OverdueAddress(1), "100")

	submit(t, acct, day(time.February, 25), repay("pay-1", "100"))

	requireBalance(t, acct, engine.AddressMADBalance, "0")
	requireBalance(t, acct, engine.OverdueAddress(1), "0")
}

func TestRepaymentClearsOldestOverdueFirst(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 10), spend("txn-1", "3000"))
	cut(t, acct, day(time.February, 1))
	processPDD(t, acct, day(time.February, 22))
	cut(t, acct, day(time.March, 1))
	processPDD(t, acct, day(time.March, 22))

	// OVERDUE_2 carries 100, OVERDUE_1 the newly-missed 30.
	requireBalance(t, acct, engine.OverdueAddress(2), "100")
	requireBalance(t, acct, engine.OverdueAddress(1), "30")

	// A 110 payment clears the oldest bucket, then part of the newest.
	submit(t, acct, day(time.March, 25), repay("pay-1", "110"))

	requireBalance(t, acct, engine.OverdueAddress(2), "0")
	requireBalance(t, acct, engine.OverdueAddress(1), "20")
}

func TestRepaymentRecordedAgainstStatementTotal(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 10), spend("txn-1", "1000"))
	cut(t, acct, day(time.February, 1))

	submit(t, acct, day(time.February, 10), repay("pay-1", "200"))
	submit(t, acct, day(time.February, 12), repay("pay-2", "300"))
	requireBalance(t, acct, engine.AddressTotalRepaymentsLastStatement, "500")

	// The tracker resets at the next cut.
	cut(t, acct, day(time.March, 1))
	requireBalance(t, acct, engine.AddressTotalRepaymentsLastStatement, "0")
}

// =============================================================================
// OVERPAYMENT
// =============================================================================

func TestOverpaymentHeldAsDeposit(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 5), spend("txn-1", "800"))
	submit(t, acct, day(time.January, 10), repay("pay-1", "1000"))

	requireBalance(t, acct, engine.AddressDeposit, "200")
	assert.True(t, acct.DefaultBalance().Equal(dec("-200")))

	// Deposit extends available balance past the credit limit.
	assert.True(t, acct.AvailableBalance().Equal(dec("10200")))
}

// =============================================================================
// TIER INTEGRITY
// =============================================================================

func TestPartialTierNeverSpills(t *testing.T) {
	// Two balance-transfer references in configured order; a payment
	// covering one and a half clears the first fully, the second partially.
	acct := newTestAccount(t, btInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 5),
		balanceTransfer("bt-1", "400", "ref1"),
		balanceTransfer("bt-2", "400", "ref2"),
	)
	submit(t, acct, day(time.January, 10), repay("pay-1", "600"))

	requireBalance(t, acct, engine.NewAddress(engine.TypeBalanceTransfer, "ref1", engine.SubCharged), "0")
	requireBalance(t, acct, engine.NewAddress(engine.TypeBalanceTransfer, "ref2", engine.SubCharged), "200")
}

func TestRepaymentViaPostingInstruction(t *testing.T) {
	// The inbound settlement path and AllocateRepayment agree.
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 5), spend("txn-1", "500"))

	pi := card.PostingInstruction{
		Type:                card.PostingInboundHardSettlement,
		Amount:              dec("500"),
		Denomination:        "GBP",
		ClientTransactionID: "pay-1",
	}
	submit(t, acct, day(time.January, 10), pi)

	assert.True(t, acct.DefaultBalance().IsZero())
}
