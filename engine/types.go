/*
Package engine provides the core account ledger engine.

PURPOSE:
  This package contains product-agnostic types and algorithms for running a
  balance ledger over a stream of postings and schedule events. Whether the
  product is a credit card, a charge card, or a secured line, the same engine
  handles balance addressing, entry logging, and idempotent schedule firing.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A monetary quantity with a denomination
  - Entry: An immutable ledger record for a single balance-address delta
  - Account/Entry IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing account/entry IDs
  4. Auditability: Every entry has reason, client transaction, idempotency key

USAGE:
  amount := engine.NewAmount(5000, "GBP")
  e := engine.Entry{
      AccountID: "card-123",
      Address:   engine.NewAddress(engine.TypePurchase, "", engine.SubCharged),
      Delta:     amount,
      Kind:      engine.KindPosting,
  }

SEE ALSO:
  - address.go: Balance-address construction and parsing
  - ledger.go: Entry persistence interface
  - clock.go: Logical time and schedule event queue
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Monetary quantity with denomination
// =============================================================================

type Amount struct {
	Value        decimal.Decimal
	Denomination string
}

func NewAmount(value float64, denomination string) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Denomination: denomination}
}

func NewAmountFromDecimal(value decimal.Decimal, denomination string) Amount {
	return Amount{Value: value, Denomination: denomination}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Denomination: a.Denomination} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Denomination: a.Denomination} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Denomination: a.Denomination} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Denomination: a.Denomination} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Denomination: a.Denomination} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Round2() Amount               { return Amount{Value: a.Value.Round(2), Denomination: a.Denomination} }

// MinDecimal returns the smaller of two decimals.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxDecimal returns the larger of two decimals.
func MaxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type EntryID string
type ClientTransactionID string

// =============================================================================
// ENTRY - Atomic change to a single balance address
// =============================================================================

type EntryKind string

const (
	KindPosting    EntryKind = "posting"    // Accepted posting instruction
	KindFee        EntryKind = "fee"        // Fee charged by the engine
	KindInterest   EntryKind = "interest"   // Daily interest accrual or application
	KindStatement  EntryKind = "statement"  // SCOD/PDD lifecycle transfer
	KindRepayment  EntryKind = "repayment"  // Repayment allocation
	KindDispute    EntryKind = "dispute"    // Dispute reversal
	KindAdjustment EntryKind = "adjustment" // Manual or fallback adjustment
)

type Entry struct {
	ID                  EntryID
	AccountID           AccountID
	Address             Address
	Delta               Amount
	EffectiveAt         TimePoint
	Kind                EntryKind
	ClientTransactionID ClientTransactionID
	Reason              string
	IdempotencyKey      string
	Metadata            map[string]string

	// Audit fields
	CreatedAt TimePoint
}
