/*
authorize.go - Authorization and limit enforcement

PURPOSE:
  Given a classified instruction and the live ledger snapshot, decide
  accept/reject before anything commits. Checks run both individually and
  cumulatively within a batch (the tally carries in-batch deltas).

CHECKS, IN ORDER:
  1. Time window:   allowed_days_after_opening, exclusive boundary
  2. Reference:     a repaid balance-transfer reference cannot be reused
  3. Type limits:   flat and percentage-of-credit-limit caps over
                    existing charged+billed+unpaid + in-batch + new
  4. Overlimit gate: once available balance is negative, no new outbound
                    may grow the exposure (in-flight settlements of prior
                    authorizations excepted)
  5. Available:     the posting must not drive available balance negative

  Advice (stand-in/offline) instructions bypass 3-5. Inbound settlements
  are always accepted.
*/
package card

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/card-engine/engine"
)

// batchTally accumulates in-batch exposure so cumulative limits hold.
type batchTally struct {
	outbound decimal.Decimal
	byType   map[engine.TransactionType]decimal.Decimal
}

func newBatchTally() *batchTally {
	return &batchTally{outbound: decimal.Zero, byType: make(map[engine.TransactionType]decimal.Decimal)}
}

func (bt *batchTally) add(pi PostingInstruction, cl Classification) {
	if !isOutbound(pi, cl) {
		return
	}
	bt.outbound = bt.outbound.Add(pi.Amount)
	bt.byType[cl.Type] = bt.byType[cl.Type].Add(pi.Amount)
}

func isOutbound(pi PostingInstruction, cl Classification) bool {
	if cl.IsFee || pi.IsInbound() {
		return false
	}
	switch pi.Type {
	case PostingOutboundAuth, PostingOutboundHardSettlement, PostingTransfer:
		return true
	}
	return false
}

// authorizeLocked validates one classified instruction against the live
// snapshot plus the in-batch tally. Returns nil on acceptance.
func (a *Account) authorizeLocked(pi PostingInstruction, cl Classification, tally *batchTally) *engine.RejectionError {
	// Fee postings, inbound settlements, releases, and settlements of prior
	// authorizations ride on decisions already made.
	if cl.IsFee || pi.IsInbound() || pi.Type == PostingRelease {
		return nil
	}
	if pi.Type == PostingSettlement || pi.Type == PostingAuthAdjustment {
		if _, ok := a.auths[pi.ClientTransactionID]; ok {
			return nil
		}
	}

	// Time-windowed limit applies regardless of advice.
	if limit, ok := a.Instance.TransactionTypeLimits[cl.Type]; ok && limit.AllowedDaysAfterOpening != nil {
		elapsed := engine.DaysBetween(a.OpenedAt, pi.ValueTimestamp)
		if elapsed >= *limit.AllowedDaysAfterOpening {
			return &engine.RejectionError{
				Code:                engine.RejectTimeWindowExpired,
				ClientTransactionID: pi.ClientTransactionID,
				Message: fmt.Sprintf("%s window of %d days after opening has passed",
					cl.Type, *limit.AllowedDaysAfterOpening),
			}
		}
	}

	// A balance-transfer reference, once fully repaid, is spent.
	if cl.Type == engine.TypeBalanceTransfer && a.repaidReferences[cl.Reference] {
		return &engine.RejectionError{
			Code:                engine.RejectReferenceRepaid,
			ClientTransactionID: pi.ClientTransactionID,
			Message:             fmt.Sprintf("reference %q already repaid", cl.Reference),
		}
	}

	// Stand-in/offline postings bypass balance and per-type-limit checks.
	if pi.Advice {
		return nil
	}

	if rej := a.checkTypeLimitLocked(pi, cl, tally); rej != nil {
		return rej
	}

	// Overlimit usage gating: once the exposure exceeds what the account is
	// entitled to, nothing new may grow it.
	if a.availableBalanceLocked().Sub(tally.outbound).IsNegative() {
		return &engine.RejectionError{
			Code:                engine.RejectOverlimitInUse,
			ClientTransactionID: pi.ClientTransactionID,
			Message:             "overlimit in use; no further transactions until balance recovers",
		}
	}

	// Available-balance check, net of deposit cover: a spend absorbed by the
	// DEPOSIT balance never draws on the credit line.
	deposit := a.balanceLocked(engine.AddressDeposit)
	creditDraw := engine.MaxDecimal(pi.Amount.Sub(engine.MaxDecimal(deposit.Sub(tally.outbound), decimal.Zero)), decimal.Zero)
	if a.availableBalanceLocked().Sub(tally.outbound).Sub(creditDraw).IsNegative() {
		return &engine.RejectionError{
			Code:                engine.RejectInsufficientAvailable,
			ClientTransactionID: pi.ClientTransactionID,
			Message: fmt.Sprintf("amount %s exceeds available balance %s",
				pi.Amount, a.availableBalanceLocked()),
		}
	}
	return nil
}

func (a *Account) checkTypeLimitLocked(pi PostingInstruction, cl Classification, tally *batchTally) *engine.RejectionError {
	limit, ok := a.Instance.TransactionTypeLimits[cl.Type]
	if !ok || limit.Unrestricted() {
		return nil
	}

	exposure := a.typePrincipalLocked(cl.Type).Add(tally.byType[cl.Type]).Add(pi.Amount)

	if limit.Flat != nil && exposure.GreaterThan(*limit.Flat) {
		return &engine.RejectionError{
			Code:                engine.RejectTypeLimitExceeded,
			ClientTransactionID: pi.ClientTransactionID,
			Message: fmt.Sprintf("%s exposure %s exceeds flat limit %s",
				cl.Type, exposure, *limit.Flat),
		}
	}
	if limit.Percentage != nil {
		cap := a.Instance.CreditLimit.Mul(*limit.Percentage)
		if exposure.GreaterThan(cap) {
			return &engine.RejectionError{
				Code:                engine.RejectTypeLimitExceeded,
				ClientTransactionID: pi.ClientTransactionID,
				Message: fmt.Sprintf("%s exposure %s exceeds %s%% of credit limit",
					cl.Type, exposure, limit.Percentage.Mul(decimal.NewFromInt(100))),
			}
		}
	}
	return nil
}
