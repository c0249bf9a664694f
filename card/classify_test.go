package card_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/card-engine/card"
	"github.com/warp/card-engine/engine"
)

// =============================================================================
// DENOMINATION
// =============================================================================

func TestRejectsUnsupportedDenomination(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	pi := spend("txn-1", "100")
	pi.Denomination = "USD"

	res := trySubmit(t, acct, day(time.January, 5), pi)
	assert.False(t, res.Accepted)
	assert.Equal(t, engine.RejectWrongDenomination, rejectionCode(t, res, "txn-1"))
}

func TestAcceptsAdditionalDenomination(t *testing.T) {
	inst := baseInstance()
	inst.AdditionalDenominations = []string{"USD"}
	acct := newTestAccount(t, inst, zeroRateTemplate(), day(time.January, 1))

	pi := spend("txn-1", "100")
	pi.Denomination = "USD"

	res := trySubmit(t, acct, day(time.January, 5), pi)
	assert.True(t, res.Accepted)
}

// =============================================================================
// TRANSACTION CODES
// =============================================================================

func TestUncodedSpendDefaultsToPurchase(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 5), spend("txn-1", "250"))

	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubCharged), "250")
}

func TestTransactionCodeSelectsType(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 5), spendCoded("txn-1", "400", "cash_advance"))

	requireBalance(t, acct, engine.NewAddress(engine.TypeCashAdvance, "", engine.SubCharged), "400")
	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubCharged), "0")
}

func TestRejectsUnknownTransactionCode(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	res := trySubmit(t, acct, day(time.January, 5), spendCoded("txn-1", "100", "wire_transfer"))
	assert.False(t, res.Accepted)
	assert.Equal(t, engine.RejectUnknownType, rejectionCode(t, res, "txn-1"))
}

// =============================================================================
// BALANCE-TRANSFER REFERENCES
// =============================================================================

func btInstance() card.InstanceParams {
	inst := baseInstance()
	inst.TransactionReferences = map[engine.TransactionType][]string{
		engine.TypeBalanceTransfer: {"ref1", "ref2"},
	}
	return inst
}

func TestBalanceTransferRequiresConfiguredReference(t *testing.T) {
	acct := newTestAccount(t, btInstance(), zeroRateTemplate(), day(time.January, 1))

	// Missing reference.
	res := trySubmit(t, acct, day(time.January, 5), spendCoded("txn-1", "100", "balance_transfer"))
	assert.Equal(t, engine.RejectUnknownReference, rejectionCode(t, res, "txn-1"))

	// Unconfigured reference.
	res = trySubmit(t, acct, day(time.January, 5), balanceTransfer("txn-2", "100", "ref9"))
	assert.Equal(t, engine.RejectUnknownReference, rejectionCode(t, res, "txn-2"))
}

func TestBalanceTransferReferenceIsCaseInsensitive(t *testing.T) {
	acct := newTestAccount(t, btInstance(), zeroRateTemplate(), day(time.January, 1))

	submit(t, acct, day(time.January, 5), balanceTransfer("txn-1", "300", "REF1"))

	requireBalance(t, acct, engine.NewAddress(engine.TypeBalanceTransfer, "ref1", engine.SubCharged), "300")
}

func TestReferenceOnNonTransferTypeIsIgnored(t *testing.T) {
	acct := newTestAccount(t, btInstance(), zeroRateTemplate(), day(time.January, 1))

	pi := spend("txn-1", "100")
	pi.InstructionDetails = map[string]string{card.DetailTransactionRef: "ref1"}
	submit(t, acct, day(time.January, 5), pi)

	// The reference is dropped: principal lands on the plain purchase address.
	requireBalance(t, acct, engine.NewAddress(engine.TypePurchase, "", engine.SubCharged), "100")
}

// =============================================================================
// DIRECT FEE POSTINGS
// =============================================================================

func TestDirectFeePostingChargesImmediately(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	pi := spend("fee-1", "25")
	pi.InstructionDetails = map[string]string{card.DetailFeeType: card.FeeTypeDispute}
	submit(t, acct, day(time.January, 5), pi)

	requireBalance(t, acct, engine.FeeAddress(engine.FeeDispute, engine.SubFeesCharged), "25")
}

func TestRejectsUnknownFeeType(t *testing.T) {
	acct := newTestAccount(t, baseInstance(), zeroRateTemplate(), day(time.January, 1))

	pi := spend("fee-1", "25")
	pi.InstructionDetails = map[string]string{card.DetailFeeType: "MYSTERY_FEE"}

	res := trySubmit(t, acct, day(time.January, 5), pi)
	assert.Equal(t, engine.RejectUnknownType, rejectionCode(t, res, "fee-1"))
}
