/*
card_test.go - Shared test fixtures for the card package

Accounts under test run against an in-memory store so every balance
assertion is backed by real ledger entries. Monetary assertions compare
decimals by value, never by string representation.
*/
package card_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/card-engine/card"
	"github.com/warp/card-engine/engine"
	"github.com/warp/card-engine/engine/store"
)

// =============================================================================
// FIXTURES
// =============================================================================

func day(month time.Month, d int) engine.TimePoint {
	return engine.NewTimePoint(2025, month, d)
}

func dec(s string) decimal.Decimal {
	return engine.MustParseDecimal(s)
}

// baseInstance is a plain account: 10000 limit, 21-day due period, GBP.
func baseInstance() card.InstanceParams {
	return card.InstanceParams{
		CreditLimit:      dec("10000"),
		PaymentDuePeriod: 21,
		Denomination:     "GBP",
	}
}

// zeroRateTemplate keeps interest out of tests that are not about interest.
func zeroRateTemplate() card.TemplateParams {
	tpl := card.DefaultTemplateParams()
	tpl.AnnualPercentageRate = decimal.Zero
	return tpl
}

func newTestAccount(t *testing.T, inst card.InstanceParams, tpl card.TemplateParams, openedAt engine.TimePoint) *card.Account {
	t.Helper()
	ledger := engine.NewLedger(store.NewMemory(), inst.Denomination)
	return card.NewAccount("acc-test", inst, tpl, openedAt, ledger)
}

// =============================================================================
// INSTRUCTION BUILDERS
// =============================================================================

func spend(id string, amount string) card.PostingInstruction {
	return card.PostingInstruction{
		Type:                card.PostingOutboundHardSettlement,
		Amount:              dec(amount),
		Denomination:        "GBP",
		ClientTransactionID: engine.ClientTransactionID(id),
	}
}

func spendCoded(id, amount, code string) card.PostingInstruction {
	pi := spend(id, amount)
	pi.InstructionDetails = map[string]string{card.DetailTransactionCode: code}
	return pi
}

func balanceTransfer(id, amount, ref string) card.PostingInstruction {
	pi := spend(id, amount)
	pi.InstructionDetails = map[string]string{
		card.DetailTransactionCode: "balance_transfer",
		card.DetailTransactionRef:  ref,
	}
	return pi
}

func auth(id, amount string) card.PostingInstruction {
	pi := spend(id, amount)
	pi.Type = card.PostingOutboundAuth
	return pi
}

func settle(id, amount string, final bool) card.PostingInstruction {
	pi := spend(id, amount)
	pi.Type = card.PostingSettlement
	pi.Final = final
	return pi
}

func release(id string) card.PostingInstruction {
	return card.PostingInstruction{
		Type:                card.PostingRelease,
		Denomination:        "GBP",
		ClientTransactionID: engine.ClientTransactionID(id),
	}
}

func repay(id, amount string) card.PostingInstruction {
	pi := spend(id, amount)
	pi.Type = card.PostingInboundHardSettlement
	return pi
}

// =============================================================================
// SUBMISSION HELPERS
// =============================================================================

// submit processes a batch at the given time and requires full acceptance.
func submit(t *testing.T, acct *card.Account, at engine.TimePoint, instructions ...card.PostingInstruction) {
	t.Helper()
	res := trySubmit(t, acct, at, instructions...)
	require.True(t, res.Accepted, "batch unexpectedly rejected: %+v", res.Results)
}

// trySubmit processes a batch and returns the result without asserting.
func trySubmit(t *testing.T, acct *card.Account, at engine.TimePoint, instructions ...card.PostingInstruction) *card.BatchResult {
	t.Helper()
	for i := range instructions {
		instructions[i].ValueTimestamp = at
	}
	res, err := acct.ProcessBatch(context.Background(), card.PostingBatch{
		Instructions:   instructions,
		ValueTimestamp: at,
	})
	require.NoError(t, err)
	return res
}

// rejectionCode digs the single rejection code out of a batch result.
func rejectionCode(t *testing.T, res *card.BatchResult, id string) engine.RejectionCode {
	t.Helper()
	for _, r := range res.Results {
		if r.ClientTransactionID == engine.ClientTransactionID(id) {
			require.NotNil(t, r.Rejection, "instruction %s was not rejected", id)
			return r.Rejection.Code
		}
	}
	t.Fatalf("instruction %s not found in results", id)
	return ""
}

// requireBalance asserts one address balance by decimal value.
func requireBalance(t *testing.T, acct *card.Account, addr engine.Address, want string) {
	t.Helper()
	got := acct.Balance(addr)
	require.True(t, got.Equal(dec(want)), "balance %s: want %s, got %s", addr, want, got)
}

// cut closes the current statement period and returns the notification.
func cut(t *testing.T, acct *card.Account, at engine.TimePoint) *card.StatementNotification {
	t.Helper()
	notif, err := acct.CutStatement(context.Background(), at, false)
	require.NoError(t, err)
	return notif
}

func processPDD(t *testing.T, acct *card.Account, at engine.TimePoint) {
	t.Helper()
	require.NoError(t, acct.ProcessPaymentDue(context.Background(), at))
}

func accrue(t *testing.T, acct *card.Account, at engine.TimePoint) {
	t.Helper()
	require.NoError(t, acct.AccrueInterest(context.Background(), at))
}
