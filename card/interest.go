/*
interest.go - Daily interest accrual

PURPOSE:
  Runs once per (logical) day, before any of that day's postings. For each
  transaction type/reference carrying principal, derives the daily rate from
  the annual percentage rate and the current calendar year's day count
  (365 or 366 - the denominator switches mid-run across a Dec->Jan leap
  boundary) and accrues against the eligible base.

TWO ACCRUAL MODES (per type, charge_interest_from_transaction_date):
  From transaction date:
    Charged principal accrues into *_INTEREST_UNCHARGED: the grace
    partition, cancelled if the balance is fully repaid before billing and
    applied into charged interest at SCOD otherwise. Billed/unpaid
    principal accrues straight into *_INTEREST_CHARGED.
  From SCOD only:
    Only billed/unpaid principal accrues (into *_INTEREST_CHARGED); a
    balance fully repaid before its first SCOD accrues nothing.

PRECISION:
  Daily accrual is held at 5 decimal places; amounts are rounded to 2 when
  applied/billed at SCOD.
*/
package card

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/card-engine/engine"
)

// accrualPrecision is the scale accruals are held at before application.
const accrualPrecision = 5

// AccrueInterest performs the daily accrual run for the day containing at.
// Idempotent per day: a re-fired job is a no-op.
func (a *Account) AccrueInterest(ctx context.Context, at engine.TimePoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	first, err := a.firedOnce(ctx, "accrue:"+at.DateString())
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	days := decimal.NewFromInt(int64(at.DaysInYear()))

	for _, t := range a.Template.TransactionTypes {
		for _, ref := range a.referencesLocked(t) {
			apr := a.Template.APRFor(a.Instance, t, ref)
			if !apr.IsPositive() {
				continue
			}
			rate := apr.Div(days)

			if err := a.accrueForLocked(ctx, t, ref, rate, at); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Account) accrueForLocked(ctx context.Context, t engine.TransactionType, ref string, rate decimal.Decimal, at engine.TimePoint) error {
	billedBase := a.balanceLocked(engine.NewAddress(t, ref, engine.SubBilled)).
		Add(a.balanceLocked(engine.NewAddress(t, ref, engine.SubUnpaid)))

	if billedBase.IsPositive() {
		accrued := billedBase.Mul(rate).Round(accrualPrecision)
		if accrued.IsPositive() {
			if err := a.post(ctx, engine.NewAddress(t, ref, engine.SubInterestCharged), accrued, at,
				engine.KindInterest, "", fmt.Sprintf("daily interest on billed %s", t)); err != nil {
				return err
			}
		}
	}

	if !a.Template.AccruesFromTxnDay(t) {
		// From-SCOD mode: same-cycle charged amounts carry no interest.
		return nil
	}

	chargedBase := a.balanceLocked(engine.NewAddress(t, ref, engine.SubCharged))
	if chargedBase.IsPositive() {
		accrued := chargedBase.Mul(rate).Round(accrualPrecision)
		if accrued.IsPositive() {
			if err := a.post(ctx, engine.NewAddress(t, ref, engine.SubInterestUncharged), accrued, at,
				engine.KindInterest, "", fmt.Sprintf("daily interest on charged %s", t)); err != nil {
				return err
			}
		}
	}
	return nil
}

// cancelUnchargedInterestLocked zeroes the grace partition for balances
// repaid in full before their interest was applied.
func (a *Account) cancelUnchargedInterestLocked(ctx context.Context, t engine.TransactionType, ref string, at engine.TimePoint) error {
	addr := engine.NewAddress(t, ref, engine.SubInterestUncharged)
	uncharged := a.balanceLocked(addr)
	if uncharged.IsZero() {
		return nil
	}
	return a.post(ctx, addr, uncharged.Neg(), at, engine.KindInterest, "",
		fmt.Sprintf("uncharged interest reversed on full repayment of %s", t))
}

// Revolver reports whether the account is carrying a balance past due date.
func (a *Account) Revolver() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balanceLocked(engine.AddressRevolver).Equal(decimal.NewFromInt(-1))
}
