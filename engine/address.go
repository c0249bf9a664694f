/*
address.go - Balance address construction

PURPOSE:
  Every balance the engine tracks lives at an address generated from
  (transaction type, reference, sub-state). Adding a transaction type or a
  balance-transfer reference is a data change, not a schema change: the
  address space is generated, never enumerated.

ADDRESS SHAPE:
  PURCHASE_CHARGED
  CASH_ADVANCE_FEES_BILLED
  BALANCE_TRANSFER_REF1_INTEREST_UNPAID
  OVERDUE_2

SPECIAL ADDRESSES:
  DEFAULT            Net outstanding position (derived, see card package)
  AVAILABLE_BALANCE  Spendable headroom (derived)
  DEPOSIT            Overpayment credit held against future spend
  REVOLVER           -1 while the account revolves, 0 otherwise
  MAD_BALANCE        Unpaid portion of the current statement's minimum due
  OVERDUE_n          Minimum due still unpaid n statement cycles after PDD

SEE ALSO:
  - types.go: Entry records carrying address deltas
  - card/account.go: Derived balance calculation
*/
package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

type TransactionType string

const (
	TypePurchase        TransactionType = "purchase"
	TypeCashAdvance     TransactionType = "cash_advance"
	TypeTransfer        TransactionType = "transfer"
	TypeBalanceTransfer TransactionType = "balance_transfer"
)

// =============================================================================
// SUB-STATES - Lifecycle stage of a balance within its address family
// =============================================================================

type SubState string

const (
	SubAuth    SubState = "AUTH"
	SubCharged SubState = "CHARGED"
	SubBilled  SubState = "BILLED"
	SubUnpaid  SubState = "UNPAID"

	SubInterestUncharged SubState = "INTEREST_UNCHARGED"
	SubInterestCharged   SubState = "INTEREST_CHARGED"
	SubInterestBilled    SubState = "INTEREST_BILLED"
	SubInterestUnpaid    SubState = "INTEREST_UNPAID"

	SubFeesCharged SubState = "FEES_CHARGED"
	SubFeesBilled  SubState = "FEES_BILLED"
	SubFeesUnpaid  SubState = "FEES_UNPAID"
)

// PrincipalStates are the sub-states that carry spend principal.
var PrincipalStates = []SubState{SubCharged, SubBilled, SubUnpaid}

// InterestStates carry accrued and applied interest.
var InterestStates = []SubState{SubInterestUncharged, SubInterestCharged, SubInterestBilled, SubInterestUnpaid}

// FeeStates carry transaction-type fees.
var FeeStates = []SubState{SubFeesCharged, SubFeesBilled, SubFeesUnpaid}

// =============================================================================
// ADDRESS
// =============================================================================

type Address string

const (
	AddressDefault                      Address = "DEFAULT"
	AddressAvailable                    Address = "AVAILABLE_BALANCE"
	AddressDeposit                      Address = "DEPOSIT"
	AddressRevolver                     Address = "REVOLVER"
	AddressMADBalance                   Address = "MAD_BALANCE"
	AddressTotalRepaymentsLastStatement Address = "TOTAL_REPAYMENTS_LAST_STATEMENT"
	AddressOutstanding                  Address = "OUTSTANDING_BALANCE"
)

// FeeFamily identifies account-level fee families that are not tied to a
// transaction type (late repayment, overlimit, annual, dispute, external).
type FeeFamily string

const (
	FeeLateRepayment FeeFamily = "LATE_REPAYMENT"
	FeeOverlimit     FeeFamily = "OVERLIMIT"
	FeeAnnual        FeeFamily = "ANNUAL"
	FeeDispute       FeeFamily = "DISPUTE"
	FeeExternal      FeeFamily = "EXTERNAL"
)

// NewAddress builds the address for a transaction type, optional reference,
// and sub-state: ("balance_transfer", "ref1", SubCharged) ->
// BALANCE_TRANSFER_REF1_CHARGED.
func NewAddress(t TransactionType, reference string, s SubState) Address {
	prefix := strings.ToUpper(string(t))
	if reference != "" {
		prefix = prefix + "_" + strings.ToUpper(reference)
	}
	return Address(prefix + "_" + string(s))
}

// FeeAddress builds the address for an account-level fee family:
// (FeeLateRepayment, SubFeesCharged) -> LATE_REPAYMENT_FEES_CHARGED.
func FeeAddress(f FeeFamily, s SubState) Address {
	return Address(string(f) + "_" + string(s))
}

// OverdueAddress returns the bucket address for a balance n statement cycles
// in arrears: OverdueAddress(1) -> OVERDUE_1.
func OverdueAddress(n int) Address {
	return Address(fmt.Sprintf("OVERDUE_%d", n))
}

// ParseOverdue reports whether addr is an overdue bucket and, if so, its age.
func ParseOverdue(addr Address) (int, bool) {
	s := string(addr)
	if !strings.HasPrefix(s, "OVERDUE_") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "OVERDUE_"))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
