/*
params.go - Account and product parameter definitions

PURPOSE:
  Parameters are configuration structs, not files. InstanceParams are
  per-account and amendable in place (e.g. a credit-limit increase);
  TemplateParams are product-wide and shared by every account on the
  product. Together they fully determine the engine's behavior for an
  account: which transaction types exist, what they cost, how interest
  accrues, and how the minimum amount due is computed.

KEY CONCEPTS:
  - FeeSpec: percentage + flat transaction-type fee, combinable and capped,
    optionally waived when a DEPOSIT balance absorbs the spend
  - LimitSpec: flat and/or percentage-of-credit-limit cap per type, plus an
    optional days-after-opening window; an empty spec means no restriction
  - MinimumPercentageDue: per-category percentages feeding the MAD formula
  - Flag lists: data-declared flag names that override MAD or suppress the
    billed->unpaid/overdue transition

SEE ALSO:
  - flags.go: Priority-ordered evaluation of the flag lists
  - factory/params.go: JSON decoding of the map-valued parameters
*/
package card

import (
	"github.com/shopspring/decimal"

	"github.com/warp/card-engine/engine"
)

// =============================================================================
// FEE AND LIMIT SPECS
// =============================================================================

// FeeSpec defines the fee charged when a settlement of its transaction type
// commits. Zero values disable the corresponding component.
type FeeSpec struct {
	// PercentageFee is a fraction of the settled amount (0.02 = 2%).
	PercentageFee decimal.Decimal

	// FlatFee is added on top of the percentage component.
	FlatFee decimal.Decimal

	// OverDepositOnly waives the fee when the spend is fully absorbed by the
	// DEPOSIT balance and never draws on the credit line.
	OverDepositOnly bool

	// Combine sums same-cycle fees for this type and caps them at FeeCap.
	Combine bool
	FeeCap  decimal.Decimal
}

// Enabled reports whether this fee charges anything at all.
func (f FeeSpec) Enabled() bool {
	return f.PercentageFee.IsPositive() || f.FlatFee.IsPositive()
}

// LimitSpec caps outstanding exposure for one transaction type. A zero-value
// spec imposes no restriction.
type LimitSpec struct {
	// Flat caps (existing charged+billed+unpaid) + new amount.
	Flat *decimal.Decimal

	// Percentage caps the same total at a fraction of the credit limit.
	Percentage *decimal.Decimal

	// AllowedDaysAfterOpening rejects instructions once this many whole days
	// have elapsed since account opening (exclusive boundary).
	AllowedDaysAfterOpening *int
}

// Unrestricted reports whether this limit imposes no cap at all.
func (l LimitSpec) Unrestricted() bool {
	return l.Flat == nil && l.Percentage == nil && l.AllowedDaysAfterOpening == nil
}

// =============================================================================
// INSTANCE PARAMETERS (per account)
// =============================================================================

type InstanceParams struct {
	CreditLimit      decimal.Decimal
	PaymentDuePeriod int // days from SCOD to PDD

	Overlimit      decimal.Decimal
	OverlimitOptIn bool
	OverlimitFee   decimal.Decimal

	AnnualFee        decimal.Decimal
	LateRepaymentFee decimal.Decimal

	TransactionTypeFees   map[engine.TransactionType]FeeSpec
	TransactionTypeLimits map[engine.TransactionType]LimitSpec

	// TransactionReferences names the balance-transfer references configured
	// for the account, in allocation order.
	TransactionReferences map[engine.TransactionType][]string

	// TransactionAPR overrides the template APR per type (key "cash_advance")
	// or per reference (key "balance_transfer:ref1").
	TransactionAPR map[string]decimal.Decimal

	// TransactionBaseRates are additive base rates per the same keys.
	TransactionBaseRates map[string]decimal.Decimal

	Denomination            string
	AdditionalDenominations []string
}

// SupportsDenomination reports whether the account accepts postings in denom.
func (p InstanceParams) SupportsDenomination(denom string) bool {
	if denom == p.Denomination {
		return true
	}
	for _, d := range p.AdditionalDenominations {
		if d == denom {
			return true
		}
	}
	return false
}

// ReferencesFor returns the configured references for a type, nil if none.
func (p InstanceParams) ReferencesFor(t engine.TransactionType) []string {
	return p.TransactionReferences[t]
}

// HasReference reports whether ref is configured for the type.
func (p InstanceParams) HasReference(t engine.TransactionType, ref string) bool {
	for _, r := range p.TransactionReferences[t] {
		if r == ref {
			return true
		}
	}
	return false
}

// =============================================================================
// TEMPLATE PARAMETERS (product-wide)
// =============================================================================

type TemplateParams struct {
	// TransactionTypes lists the types the product supports, in repayment
	// allocation order (cash advance before purchase before balance transfer
	// before transfer).
	TransactionTypes []engine.TransactionType

	// TransactionCodes maps instruction-detail transaction_code hints to
	// transaction types. Postings with no code default to purchase.
	TransactionCodes map[string]engine.TransactionType

	// MinimumPercentageDue feeds the MAD formula. Keys are transaction types
	// plus the pseudo-categories "interest" and "fees".
	MinimumPercentageDue map[string]decimal.Decimal

	// MinimumAmountDue floors the computed MAD.
	MinimumAmountDue decimal.Decimal

	// AnnualPercentageRate is the product default APR; per-type and
	// per-reference overrides live on InstanceParams.
	AnnualPercentageRate decimal.Decimal

	// BaseInterestRate is added to the APR when a base-rate override exists.
	BaseInterestRate decimal.Decimal

	// AccrueInterestFromTxnDay selects the accrual mode per type: true means
	// interest runs from the day after settlement; false means interest only
	// accrues on balances that survived a statement cut.
	AccrueInterestFromTxnDay map[engine.TransactionType]bool

	// Flag lists, evaluated by FlagRules in declared priority order.
	MADAsFullStatementFlags []string
	MADEqualToZeroFlags     []string
	AccountClosureFlags     []string

	OverdueAmountBlockingFlags          []string
	BilledToUnpaidTransferBlockingFlags []string
}

// APRFor resolves the annual rate for a type/reference, most specific first.
func (t TemplateParams) APRFor(inst InstanceParams, txType engine.TransactionType, ref string) decimal.Decimal {
	if ref != "" {
		if apr, ok := inst.TransactionAPR[string(txType)+":"+ref]; ok {
			return t.withBase(inst, string(txType)+":"+ref, apr)
		}
	}
	if apr, ok := inst.TransactionAPR[string(txType)]; ok {
		return t.withBase(inst, string(txType), apr)
	}
	return t.AnnualPercentageRate
}

func (t TemplateParams) withBase(inst InstanceParams, key string, apr decimal.Decimal) decimal.Decimal {
	if base, ok := inst.TransactionBaseRates[key]; ok {
		return apr.Add(base)
	}
	return apr
}

// AccruesFromTxnDay reports the accrual mode for a type.
func (t TemplateParams) AccruesFromTxnDay(txType engine.TransactionType) bool {
	return t.AccrueInterestFromTxnDay[txType]
}

// ClassifyCode resolves a transaction_code hint. Empty code means purchase.
func (t TemplateParams) ClassifyCode(code string) (engine.TransactionType, bool) {
	if code == "" {
		return engine.TypePurchase, true
	}
	txType, ok := t.TransactionCodes[code]
	return txType, ok
}

// =============================================================================
// DEFAULTS
// =============================================================================

// DefaultTemplateParams returns a product configuration matching common
// revolving-credit behavior: 24.9% APR, 1% principal MAD with 100% of
// interest and fees, monthly cycle.
func DefaultTemplateParams() TemplateParams {
	return TemplateParams{
		TransactionTypes: []engine.TransactionType{
			engine.TypeCashAdvance,
			engine.TypePurchase,
			engine.TypeBalanceTransfer,
			engine.TypeTransfer,
		},
		TransactionCodes: map[string]engine.TransactionType{
			"cash_advance":     engine.TypeCashAdvance,
			"transfer":         engine.TypeTransfer,
			"balance_transfer": engine.TypeBalanceTransfer,
		},
		MinimumPercentageDue: map[string]decimal.Decimal{
			string(engine.TypePurchase):        engine.MustParseDecimal("0.01"),
			string(engine.TypeCashAdvance):     engine.MustParseDecimal("0.01"),
			string(engine.TypeBalanceTransfer): engine.MustParseDecimal("0.01"),
			string(engine.TypeTransfer):        engine.MustParseDecimal("0.01"),
			"interest":                         engine.MustParseDecimal("1.0"),
			"fees":                             engine.MustParseDecimal("1.0"),
		},
		MinimumAmountDue:     engine.MustParseDecimal("100"),
		AnnualPercentageRate: engine.MustParseDecimal("0.249"),
		AccrueInterestFromTxnDay: map[engine.TransactionType]bool{
			engine.TypePurchase:        true,
			engine.TypeCashAdvance:     true,
			engine.TypeBalanceTransfer: true,
			engine.TypeTransfer:        true,
		},
		MADAsFullStatementFlags:             []string{"OVER_90_DPD"},
		MADEqualToZeroFlags:                 []string{"REPAYMENT_HOLIDAY"},
		AccountClosureFlags:                 []string{"ACCOUNT_CLOSURE_REQUESTED"},
		OverdueAmountBlockingFlags:          []string{"REPAYMENT_HOLIDAY"},
		BilledToUnpaidTransferBlockingFlags: []string{"REPAYMENT_HOLIDAY"},
	}
}
