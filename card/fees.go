/*
fees.go - Fee engine

PURPOSE:
  Computes and posts every fee the product charges, each with the same
  charged -> billed (SCOD) -> unpaid (PDD) lifecycle:

  - Transaction-type fees: percentage + flat at the moment of a qualifying
    settlement (never at authorization); combinable with a same-cycle cap;
    waived when over_deposit_only and the DEPOSIT balance absorbed the spend
  - Late repayment fee: once per cycle at PDD when the minimum due was not
    cleared; a zero parameter disables it
  - Overlimit fee: at SCOD when settled principal alone exceeds the credit
    limit; fees and interest pushing the account over do NOT trigger it
  - Annual fee: on the account anniversary
  - Dispute/external fees: explicit fee-type postings, charged immediately
*/
package card

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/card-engine/engine"
)

// applyTransactionFeeLocked charges the configured fee for a settled spend.
func (a *Account) applyTransactionFeeLocked(ctx context.Context, t engine.TransactionType, ref string, amount decimal.Decimal, depositCovered bool, at engine.TimePoint, ctid engine.ClientTransactionID) error {
	spec, ok := a.Instance.TransactionTypeFees[t]
	if !ok || !spec.Enabled() {
		return nil
	}
	if spec.OverDepositOnly && depositCovered {
		return nil
	}

	fee := spec.PercentageFee.Mul(amount).Add(spec.FlatFee).Round(2)

	if spec.Combine && spec.FeeCap.IsPositive() {
		already := a.cycleFees[t]
		headroom := spec.FeeCap.Sub(already)
		if !headroom.IsPositive() {
			return nil
		}
		fee = engine.MinDecimal(fee, headroom)
		a.cycleFees[t] = already.Add(fee)
	}

	if !fee.IsPositive() {
		return nil
	}
	return a.post(ctx, engine.NewAddress(t, ref, engine.SubFeesCharged), fee, at,
		engine.KindFee, ctid, fmt.Sprintf("%s fee", t))
}

// chargeDirectFeeLocked posts an explicit fee-type instruction straight to
// its family's charged balance, independent of the billing cycle.
func (a *Account) chargeDirectFeeLocked(ctx context.Context, family engine.FeeFamily, amount decimal.Decimal, at engine.TimePoint, ctid engine.ClientTransactionID) error {
	return a.post(ctx, engine.FeeAddress(family, engine.SubFeesCharged), amount, at,
		engine.KindFee, ctid, fmt.Sprintf("%s fee posting", family))
}

// chargeLateFeeLocked fires at PDD when the minimum due was not cleared.
func (a *Account) chargeLateFeeLocked(ctx context.Context, at engine.TimePoint) error {
	fee := a.Instance.LateRepaymentFee
	if !fee.IsPositive() {
		return nil
	}
	return a.post(ctx, engine.FeeAddress(engine.FeeLateRepayment, engine.SubFeesCharged), fee, at,
		engine.KindFee, "", "late repayment fee")
}

// chargeOverlimitFeeIfDueLocked fires at SCOD. The trigger looks at settled
// principal only: same-cycle fees and interest are excluded, so an account
// pushed over the limit by its own fees is not charged.
func (a *Account) chargeOverlimitFeeIfDueLocked(ctx context.Context, at engine.TimePoint) error {
	fee := a.Instance.OverlimitFee
	if !fee.IsPositive() || !a.Instance.Overlimit.IsPositive() {
		return nil
	}

	principal := decimal.Zero
	for _, t := range a.Template.TransactionTypes {
		principal = principal.Add(a.typePrincipalLocked(t))
	}
	if !principal.GreaterThan(a.Instance.CreditLimit) {
		return nil
	}
	return a.post(ctx, engine.FeeAddress(engine.FeeOverlimit, engine.SubFeesCharged), fee, at,
		engine.KindFee, "", "overlimit fee")
}

// ChargeAnnualFee posts the annual fee on the account anniversary. The
// firing key keeps re-fired schedules idempotent per anniversary year.
func (a *Account) ChargeAnnualFee(ctx context.Context, at engine.TimePoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	first, err := a.firedOnce(ctx, "annual_fee:"+fmt.Sprint(at.Year()))
	if err != nil {
		return err
	}
	if !first {
		return nil
	}
	fee := a.Instance.AnnualFee
	if !fee.IsPositive() {
		return nil
	}
	return a.post(ctx, engine.FeeAddress(engine.FeeAnnual, engine.SubFeesCharged), fee, at,
		engine.KindFee, "", "annual fee")
}

// AnnualFeeDate returns the anniversary date in the given year. A Feb-29
// opening bills on Feb 28 in non-leap years.
func (a *Account) AnnualFeeDate(year int) engine.TimePoint {
	return engine.ClampedDate(year, a.OpenedAt.Month(), a.OpenedAt.Day())
}
