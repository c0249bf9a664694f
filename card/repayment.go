/*
repayment.go - Repayment hierarchy allocator

PURPOSE:
  Distributes an inbound payment across outstanding balances in strict
  descending priority, each tier exhausted before the next is touched.
  The waterfall is an explicit ordered list of (category, sub-state)
  tiers - not an implicit iteration order - so it is testable on its own:

    fees UNPAID -> fees BILLED -> fees CHARGED
    -> interest UNPAID -> interest BILLED -> interest CHARGED
    -> principal UNPAID -> principal BILLED -> principal CHARGED

  Within a tier, account-level fee families come first, then transaction
  types in their fixed order (cash advance, purchase, balance-transfer
  references in configured order, transfer).

OVERPAYMENT:
  Any remainder beyond total outstanding becomes DEPOSIT: an overpayment
  credit drawn down by subsequent spends before the credit line is touched.

SIDE EFFECTS:
  Clears overdue buckets oldest-first, reduces the unpaid minimum due,
  cancels uncharged grace interest on fully-repaid balances, retires
  fully-repaid balance-transfer references, and clears the revolver
  marker once nothing is outstanding. Allocation is exact to two decimal
  places; a partial tier never spills into the next.
*/
package card

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/card-engine/engine"
)

// =============================================================================
// ALLOCATION ORDER
// =============================================================================

// allocationTier pairs a balance category with a lifecycle sub-state.
type allocationTier struct {
	principal bool
	state     engine.SubState
}

// allocationTiers is the waterfall, highest priority first.
var allocationTiers = []allocationTier{
	{state: engine.SubFeesUnpaid},
	{state: engine.SubFeesBilled},
	{state: engine.SubFeesCharged},
	{state: engine.SubInterestUnpaid},
	{state: engine.SubInterestBilled},
	{state: engine.SubInterestCharged},
	{principal: true, state: engine.SubUnpaid},
	{principal: true, state: engine.SubBilled},
	{principal: true, state: engine.SubCharged},
}

var feeFamilies = []engine.FeeFamily{
	engine.FeeLateRepayment, engine.FeeOverlimit, engine.FeeAnnual,
	engine.FeeDispute, engine.FeeExternal,
}

// AllocationOrder returns the full ordered address list for the account's
// configured types and references.
func (a *Account) AllocationOrder() []engine.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocationOrderLocked()
}

func (a *Account) allocationOrderLocked() []engine.Address {
	var order []engine.Address
	for _, tier := range allocationTiers {
		if !tier.principal {
			switch tier.state {
			case engine.SubFeesUnpaid, engine.SubFeesBilled, engine.SubFeesCharged:
				for _, fam := range feeFamilies {
					order = append(order, engine.FeeAddress(fam, tier.state))
				}
			}
		}
		for _, t := range a.Template.TransactionTypes {
			for _, ref := range a.referencesLocked(t) {
				order = append(order, engine.NewAddress(t, ref, tier.state))
			}
		}
	}
	return order
}

// =============================================================================
// ALLOCATION
// =============================================================================

// AllocateRepayment applies an inbound settlement through the waterfall.
func (a *Account) AllocateRepayment(ctx context.Context, amount decimal.Decimal, at engine.TimePoint, ctid engine.ClientTransactionID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocateRepaymentLocked(ctx, amount, at, ctid)
}

func (a *Account) allocateRepaymentLocked(ctx context.Context, amount decimal.Decimal, at engine.TimePoint, ctid engine.ClientTransactionID) error {
	remaining := amount

	for _, addr := range a.allocationOrderLocked() {
		if !remaining.IsPositive() {
			break
		}
		bal := a.balanceLocked(addr)
		if !bal.IsPositive() {
			continue
		}
		take := engine.MinDecimal(bal, remaining)
		if err := a.post(ctx, addr, take.Neg(), at, engine.KindRepayment, ctid, "repayment allocated"); err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}

	applied := amount.Sub(remaining)

	// Overpayment becomes a deposit credit.
	if remaining.IsPositive() {
		if err := a.post(ctx, engine.AddressDeposit, remaining, at, engine.KindRepayment, ctid, "overpayment held as deposit"); err != nil {
			return err
		}
	}

	if err := a.reduceRepaymentTrackersLocked(ctx, applied, amount, at); err != nil {
		return err
	}
	return a.afterRepaymentLocked(ctx, at)
}

// reduceRepaymentTrackersLocked updates MAD_BALANCE, the overdue buckets
// (oldest first) and the statement repayment total.
func (a *Account) reduceRepaymentTrackersLocked(ctx context.Context, applied, received decimal.Decimal, at engine.TimePoint) error {
	if applied.IsPositive() {
		mad := a.balanceLocked(engine.AddressMADBalance)
		if mad.IsPositive() {
			reduce := engine.MinDecimal(mad, applied)
			if err := a.post(ctx, engine.AddressMADBalance, reduce.Neg(), at, engine.KindRepayment, "", "minimum due reduced"); err != nil {
				return err
			}
		}

		// Oldest (highest index) buckets clear first.
		left := applied
		for n := a.maxOverdueLocked(); n >= 1 && left.IsPositive(); n-- {
			bal := a.balanceLocked(engine.OverdueAddress(n))
			if !bal.IsPositive() {
				continue
			}
			take := engine.MinDecimal(bal, left)
			if err := a.post(ctx, engine.OverdueAddress(n), take.Neg(), at, engine.KindRepayment, "", "overdue cleared"); err != nil {
				return err
			}
			left = left.Sub(take)
		}
	}

	if received.IsPositive() {
		if err := a.post(ctx, engine.AddressTotalRepaymentsLastStatement, received, at,
			engine.KindRepayment, "", "repayment recorded"); err != nil {
			return err
		}
	}
	return nil
}

// afterRepaymentLocked handles full-repayment consequences: uncharged
// interest cancellation, reference retirement, revolver reset.
func (a *Account) afterRepaymentLocked(ctx context.Context, at engine.TimePoint) error {
	for _, t := range a.Template.TransactionTypes {
		for _, ref := range a.referencesLocked(t) {
			if a.principalLocked(t, ref).IsZero() {
				if err := a.cancelUnchargedInterestLocked(ctx, t, ref, at); err != nil {
					return err
				}
				if t == engine.TypeBalanceTransfer && ref != "" && a.usedReferences[ref] {
					a.repaidReferences[ref] = true
				}
			}
		}
	}

	if !a.defaultBalanceLocked().IsPositive() {
		if !a.balanceLocked(engine.AddressRevolver).IsZero() {
			if err := a.setTracker(ctx, engine.AddressRevolver, decimal.Zero, at, "revolver cleared"); err != nil {
				return err
			}
		}
	}
	return nil
}
