/*
dispute.go - Dispute / reversal handling

PURPOSE:
  An inbound settlement tagged as a dispute reversal is matched to the
  original spend by client transaction id and unwound from whichever
  sub-balance still holds the disputed amount, preferring the least-aged
  bucket (charged, then billed, then unpaid). Interest already accrued
  against the now-reduced principal is reversed proportionally, and the
  disputed amount reduces the unpaid minimum due and overdue buckets it
  contributed to.

FALLBACK:
  If the disputed amount no longer matches an outstanding balance (the
  original was already repaid), the reversal is handled as an ordinary
  inbound adjustment through the repayment hierarchy. The historical
  platform behavior of double-counting the dispute fee in this path is a
  known defect and is deliberately not reproduced.
*/
package card

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/card-engine/engine"
)

// DetailOriginalTransaction points a dispute at the spend being reversed.
const DetailOriginalTransaction = "original_client_transaction_id"

// disputeBucketOrder prefers the least-aged bucket first.
var disputeBucketOrder = []engine.SubState{engine.SubCharged, engine.SubBilled, engine.SubUnpaid}

func (a *Account) processDisputeLocked(ctx context.Context, pi PostingInstruction) error {
	at := pi.ValueTimestamp
	amount := pi.Amount

	orig := engine.ClientTransactionID(pi.Detail(DetailOriginalTransaction))
	if orig == "" {
		orig = pi.ClientTransactionID
	}

	rec, ok := a.spends[orig]
	if !ok || a.principalLocked(rec.Type, rec.Reference).LessThan(amount) {
		// The original has already cleared; nothing left to unwind.
		return a.allocateRepaymentLocked(ctx, amount, at, pi.ClientTransactionID)
	}

	principalBefore := a.principalLocked(rec.Type, rec.Reference)

	// Unwind principal, least-aged bucket first.
	left := amount
	for _, s := range disputeBucketOrder {
		if !left.IsPositive() {
			break
		}
		addr := engine.NewAddress(rec.Type, rec.Reference, s)
		bal := a.balanceLocked(addr)
		if !bal.IsPositive() {
			continue
		}
		take := engine.MinDecimal(bal, left)
		if err := a.post(ctx, addr, take.Neg(), at, engine.KindDispute, pi.ClientTransactionID, "disputed amount reversed"); err != nil {
			return err
		}
		left = left.Sub(take)
	}
	rec.Remaining = engine.MaxDecimal(rec.Remaining.Sub(amount), decimal.Zero)

	// Reverse same-period interest proportional to the disputed share.
	fraction := amount.Div(principalBefore)
	for _, pair := range []struct {
		state engine.SubState
		scale int32
	}{
		{engine.SubInterestUncharged, accrualPrecision},
		{engine.SubInterestCharged, 2},
	} {
		addr := engine.NewAddress(rec.Type, rec.Reference, pair.state)
		bal := a.balanceLocked(addr)
		if !bal.IsPositive() {
			continue
		}
		reversal := bal.Mul(fraction).Round(pair.scale)
		if reversal.IsPositive() {
			if err := a.post(ctx, addr, reversal.Neg(), at, engine.KindDispute, pi.ClientTransactionID, "interest reversed with dispute"); err != nil {
				return err
			}
		}
	}

	if err := a.reduceRepaymentTrackersLocked(ctx, amount, amount, at); err != nil {
		return err
	}
	return a.afterRepaymentLocked(ctx, at)
}
