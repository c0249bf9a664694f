/*
Package factory provides JSON to Go parameter conversion.

PURPOSE:
  Converts JSON parameter definitions into card.InstanceParams and
  card.TemplateParams. This enables product configuration without code
  changes - product owners define fee maps, limit maps and flag lists in
  JSON, and the factory creates the proper Go structs.

WHY JSON?
  - Non-developers can modify product parameters
  - Easy integration with an admin surface
  - Version control for parameter definitions
  - The map-valued parameters (transaction_type_fees,
    transaction_type_limits, transaction_references) are JSON-encoded
    maps at the external interface by contract

JSON SCHEMA (instance):
  {
    "credit_limit": "30000",
    "payment_due_period": 21,
    "overlimit": "3000",
    "overlimit_opt_in": true,
    "annual_fee": "100",
    "late_repayment_fee": "100",
    "transaction_type_fees": {
      "cash_advance": {"percentage_fee": "0.02", "flat_fee": "100"}
    },
    "transaction_type_limits": {
      "balance_transfer": {"flat": "5000", "allowed_days_after_opening": 14}
    },
    "transaction_references": {"balance_transfer": ["ref1", "ref2"]},
    "transaction_annual_percentage_rate": {"cash_advance": "0.28"},
    "denomination": "GBP"
  }

USAGE:
  factory := NewParamsFactory()
  inst, err := factory.ParseInstanceParams(jsonStr)
  tpl, err := factory.ParseTemplateParams(jsonStr)

SEE ALSO:
  - card/params.go: Parameter struct definitions
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/card-engine/card"
	"github.com/warp/card-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// InstanceJSON is the JSON representation of per-account parameters.
// Monetary values and rates are strings to avoid float64 precision loss.
type InstanceJSON struct {
	CreditLimit      string `json:"credit_limit"`
	PaymentDuePeriod int    `json:"payment_due_period"`

	Overlimit      string `json:"overlimit,omitempty"`
	OverlimitOptIn bool   `json:"overlimit_opt_in,omitempty"`
	OverlimitFee   string `json:"overlimit_fee,omitempty"`

	AnnualFee        string `json:"annual_fee,omitempty"`
	LateRepaymentFee string `json:"late_repayment_fee,omitempty"`

	TransactionTypeFees   map[string]FeeJSON   `json:"transaction_type_fees,omitempty"`
	TransactionTypeLimits map[string]LimitJSON `json:"transaction_type_limits,omitempty"`
	TransactionReferences map[string][]string  `json:"transaction_references,omitempty"`

	TransactionAPR       map[string]string `json:"transaction_annual_percentage_rate,omitempty"`
	TransactionBaseRates map[string]string `json:"transaction_base_interest_rates,omitempty"`

	Denomination            string   `json:"denomination"`
	AdditionalDenominations []string `json:"additional_denominations,omitempty"`
}

// FeeJSON represents a transaction-type fee specification.
type FeeJSON struct {
	PercentageFee   string `json:"percentage_fee,omitempty"`
	FlatFee         string `json:"flat_fee,omitempty"`
	OverDepositOnly bool   `json:"over_deposit_only,omitempty"`
	Combine         bool   `json:"combine,omitempty"`
	FeeCap          string `json:"fee_cap,omitempty"`
}

// LimitJSON represents a transaction-type limit specification.
// An empty object {} means no restriction for that type.
type LimitJSON struct {
	Flat                    *string `json:"flat,omitempty"`
	Percentage              *string `json:"percentage,omitempty"`
	AllowedDaysAfterOpening *int    `json:"allowed_days_after_opening,omitempty"`
}

// TemplateJSON is the JSON representation of product-wide parameters.
type TemplateJSON struct {
	TransactionTypes []string          `json:"transaction_types,omitempty"`
	TransactionCodes map[string]string `json:"transaction_codes,omitempty"`

	MinimumPercentageDue map[string]string `json:"minimum_percentage_due,omitempty"`
	MinimumAmountDue     string            `json:"minimum_amount_due,omitempty"`

	AnnualPercentageRate string `json:"annual_percentage_rate,omitempty"`
	BaseInterestRate     string `json:"base_interest_rate,omitempty"`

	AccrueInterestFromTxnDay map[string]bool `json:"accrue_interest_from_txn_day,omitempty"`

	MADAsFullStatementFlags []string `json:"mad_as_full_statement_flags,omitempty"`
	MADEqualToZeroFlags     []string `json:"mad_equal_to_zero_flags,omitempty"`
	AccountClosureFlags     []string `json:"account_closure_flags,omitempty"`

	OverdueAmountBlockingFlags          []string `json:"overdue_amount_blocking_flags,omitempty"`
	BilledToUnpaidTransferBlockingFlags []string `json:"billed_to_unpaid_transfer_blocking_flags,omitempty"`
}

// =============================================================================
// PARAMS FACTORY
// =============================================================================

// ParamsFactory converts JSON parameters to Go structs.
type ParamsFactory struct{}

// NewParamsFactory creates a new params factory.
func NewParamsFactory() *ParamsFactory {
	return &ParamsFactory{}
}

// ParseInstanceParams parses a JSON string into InstanceParams.
func (f *ParamsFactory) ParseInstanceParams(jsonStr string) (card.InstanceParams, error) {
	var ij InstanceJSON
	if err := json.Unmarshal([]byte(jsonStr), &ij); err != nil {
		return card.InstanceParams{}, fmt.Errorf("failed to parse instance params JSON: %w", err)
	}
	return f.InstanceFromJSON(ij)
}

// InstanceFromJSON converts InstanceJSON to card.InstanceParams.
func (f *ParamsFactory) InstanceFromJSON(ij InstanceJSON) (card.InstanceParams, error) {
	creditLimit, err := parseDecimal("credit_limit", ij.CreditLimit, true)
	if err != nil {
		return card.InstanceParams{}, err
	}

	inst := card.InstanceParams{
		CreditLimit:             creditLimit,
		PaymentDuePeriod:        ij.PaymentDuePeriod,
		OverlimitOptIn:          ij.OverlimitOptIn,
		Denomination:            ij.Denomination,
		AdditionalDenominations: ij.AdditionalDenominations,
	}
	if inst.PaymentDuePeriod == 0 {
		inst.PaymentDuePeriod = 21
	}

	for name, dst := range map[string]*decimal.Decimal{
		"overlimit":          &inst.Overlimit,
		"overlimit_fee":      &inst.OverlimitFee,
		"annual_fee":         &inst.AnnualFee,
		"late_repayment_fee": &inst.LateRepaymentFee,
	} {
		val := map[string]string{
			"overlimit":          ij.Overlimit,
			"overlimit_fee":      ij.OverlimitFee,
			"annual_fee":         ij.AnnualFee,
			"late_repayment_fee": ij.LateRepaymentFee,
		}[name]
		d, err := parseDecimal(name, val, false)
		if err != nil {
			return card.InstanceParams{}, err
		}
		*dst = d
	}

	if len(ij.TransactionTypeFees) > 0 {
		inst.TransactionTypeFees = make(map[engine.TransactionType]card.FeeSpec, len(ij.TransactionTypeFees))
		for t, fj := range ij.TransactionTypeFees {
			spec, err := parseFeeSpec(t, fj)
			if err != nil {
				return card.InstanceParams{}, err
			}
			inst.TransactionTypeFees[engine.TransactionType(t)] = spec
		}
	}

	if len(ij.TransactionTypeLimits) > 0 {
		inst.TransactionTypeLimits = make(map[engine.TransactionType]card.LimitSpec, len(ij.TransactionTypeLimits))
		for t, lj := range ij.TransactionTypeLimits {
			spec, err := parseLimitSpec(t, lj)
			if err != nil {
				return card.InstanceParams{}, err
			}
			inst.TransactionTypeLimits[engine.TransactionType(t)] = spec
		}
	}

	if len(ij.TransactionReferences) > 0 {
		inst.TransactionReferences = make(map[engine.TransactionType][]string, len(ij.TransactionReferences))
		for t, refs := range ij.TransactionReferences {
			lowered := make([]string, len(refs))
			for i, r := range refs {
				lowered[i] = strings.ToLower(r)
			}
			inst.TransactionReferences[engine.TransactionType(t)] = lowered
		}
	}

	inst.TransactionAPR, err = parseDecimalMap("transaction_annual_percentage_rate", ij.TransactionAPR)
	if err != nil {
		return card.InstanceParams{}, err
	}
	inst.TransactionBaseRates, err = parseDecimalMap("transaction_base_interest_rates", ij.TransactionBaseRates)
	if err != nil {
		return card.InstanceParams{}, err
	}

	return inst, nil
}

// ParseTemplateParams parses a JSON string into TemplateParams, filling
// defaults for anything omitted.
func (f *ParamsFactory) ParseTemplateParams(jsonStr string) (card.TemplateParams, error) {
	var tj TemplateJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return card.TemplateParams{}, fmt.Errorf("failed to parse template params JSON: %w", err)
	}
	return f.TemplateFromJSON(tj)
}

// TemplateFromJSON converts TemplateJSON to card.TemplateParams.
func (f *ParamsFactory) TemplateFromJSON(tj TemplateJSON) (card.TemplateParams, error) {
	tpl := card.DefaultTemplateParams()

	if len(tj.TransactionTypes) > 0 {
		tpl.TransactionTypes = tpl.TransactionTypes[:0]
		for _, t := range tj.TransactionTypes {
			tpl.TransactionTypes = append(tpl.TransactionTypes, engine.TransactionType(t))
		}
	}
	if len(tj.TransactionCodes) > 0 {
		tpl.TransactionCodes = make(map[string]engine.TransactionType, len(tj.TransactionCodes))
		for code, t := range tj.TransactionCodes {
			tpl.TransactionCodes[code] = engine.TransactionType(t)
		}
	}
	if len(tj.MinimumPercentageDue) > 0 {
		mpd, err := parseDecimalMap("minimum_percentage_due", tj.MinimumPercentageDue)
		if err != nil {
			return card.TemplateParams{}, err
		}
		tpl.MinimumPercentageDue = mpd
	}
	if tj.MinimumAmountDue != "" {
		mad, err := parseDecimal("minimum_amount_due", tj.MinimumAmountDue, true)
		if err != nil {
			return card.TemplateParams{}, err
		}
		tpl.MinimumAmountDue = mad
	}
	if tj.AnnualPercentageRate != "" {
		apr, err := parseDecimal("annual_percentage_rate", tj.AnnualPercentageRate, true)
		if err != nil {
			return card.TemplateParams{}, err
		}
		tpl.AnnualPercentageRate = apr
	}
	if tj.BaseInterestRate != "" {
		base, err := parseDecimal("base_interest_rate", tj.BaseInterestRate, true)
		if err != nil {
			return card.TemplateParams{}, err
		}
		tpl.BaseInterestRate = base
	}
	if len(tj.AccrueInterestFromTxnDay) > 0 {
		tpl.AccrueInterestFromTxnDay = make(map[engine.TransactionType]bool, len(tj.AccrueInterestFromTxnDay))
		for t, v := range tj.AccrueInterestFromTxnDay {
			tpl.AccrueInterestFromTxnDay[engine.TransactionType(t)] = v
		}
	}

	if tj.MADAsFullStatementFlags != nil {
		tpl.MADAsFullStatementFlags = tj.MADAsFullStatementFlags
	}
	if tj.MADEqualToZeroFlags != nil {
		tpl.MADEqualToZeroFlags = tj.MADEqualToZeroFlags
	}
	if tj.AccountClosureFlags != nil {
		tpl.AccountClosureFlags = tj.AccountClosureFlags
	}
	if tj.OverdueAmountBlockingFlags != nil {
		tpl.OverdueAmountBlockingFlags = tj.OverdueAmountBlockingFlags
	}
	if tj.BilledToUnpaidTransferBlockingFlags != nil {
		tpl.BilledToUnpaidTransferBlockingFlags = tj.BilledToUnpaidTransferBlockingFlags
	}

	return tpl, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseDecimal(name, s string, required bool) (decimal.Decimal, error) {
	if s == "" {
		if required {
			return decimal.Zero, fmt.Errorf("%s is required", name)
		}
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return d, nil
}

func parseDecimalMap(name string, m map[string]string) (map[string]decimal.Decimal, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		d, err := parseDecimal(name+"."+k, v, true)
		if err != nil {
			return nil, err
		}
		out[k] = d
	}
	return out, nil
}

func parseFeeSpec(t string, fj FeeJSON) (card.FeeSpec, error) {
	pct, err := parseDecimal("transaction_type_fees."+t+".percentage_fee", fj.PercentageFee, false)
	if err != nil {
		return card.FeeSpec{}, err
	}
	flat, err := parseDecimal("transaction_type_fees."+t+".flat_fee", fj.FlatFee, false)
	if err != nil {
		return card.FeeSpec{}, err
	}
	cap, err := parseDecimal("transaction_type_fees."+t+".fee_cap", fj.FeeCap, false)
	if err != nil {
		return card.FeeSpec{}, err
	}
	return card.FeeSpec{
		PercentageFee:   pct,
		FlatFee:         flat,
		OverDepositOnly: fj.OverDepositOnly,
		Combine:         fj.Combine,
		FeeCap:          cap,
	}, nil
}

func parseLimitSpec(t string, lj LimitJSON) (card.LimitSpec, error) {
	var spec card.LimitSpec
	if lj.Flat != nil {
		flat, err := parseDecimal("transaction_type_limits."+t+".flat", *lj.Flat, true)
		if err != nil {
			return card.LimitSpec{}, err
		}
		spec.Flat = &flat
	}
	if lj.Percentage != nil {
		pct, err := parseDecimal("transaction_type_limits."+t+".percentage", *lj.Percentage, true)
		if err != nil {
			return card.LimitSpec{}, err
		}
		spec.Percentage = &pct
	}
	spec.AllowedDaysAfterOpening = lj.AllowedDaysAfterOpening
	return spec, nil
}
