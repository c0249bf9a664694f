/*
classify.go - Transaction classification

PURPOSE:
  Maps an incoming posting instruction, via its instruction-detail hints,
  to a (transaction type, reference) tag and the target sub-balance. Pure:
  no side effects, feeds authorization and the ledger.

RULES:
  - fee_type             -> direct fee posting to the matching fee family
  - transaction_code     -> cash_advance / transfer / balance_transfer
  - transaction_ref      -> named balance-transfer reference; must be
                            configured on the account or the instruction
                            is rejected
  - no hints             -> purchase (the default type)
*/
package card

import (
	"fmt"
	"strings"

	"github.com/warp/card-engine/engine"
)

// Classification tags an instruction with its transaction type and target.
type Classification struct {
	Type      engine.TransactionType
	Reference string

	// Direct fee postings bypass the spend path entirely.
	IsFee     bool
	FeeFamily engine.FeeFamily
}

// classifyLocked interprets instruction details. Unknown or unconfigured
// hints yield a rejection, not an error: the posting simply does not post.
func (a *Account) classifyLocked(pi PostingInstruction) (Classification, *engine.RejectionError) {
	if !a.Instance.SupportsDenomination(pi.Denomination) {
		return Classification{}, &engine.RejectionError{
			Code:                engine.RejectWrongDenomination,
			ClientTransactionID: pi.ClientTransactionID,
			Message:             fmt.Sprintf("denomination %q not supported", pi.Denomination),
		}
	}

	if feeType := pi.Detail(DetailFeeType); feeType != "" {
		family, ok := feeFamilyFor(feeType)
		if !ok {
			return Classification{}, &engine.RejectionError{
				Code:                engine.RejectUnknownType,
				ClientTransactionID: pi.ClientTransactionID,
				Message:             fmt.Sprintf("unknown fee_type %q", feeType),
			}
		}
		return Classification{IsFee: true, FeeFamily: family}, nil
	}

	code := pi.Detail(DetailTransactionCode)
	txType, ok := a.Template.ClassifyCode(code)
	if !ok {
		return Classification{}, &engine.RejectionError{
			Code:                engine.RejectUnknownType,
			ClientTransactionID: pi.ClientTransactionID,
			Message:             fmt.Sprintf("unknown transaction_code %q", code),
		}
	}

	ref := strings.ToLower(pi.Detail(DetailTransactionRef))
	if txType == engine.TypeBalanceTransfer {
		if ref == "" || !a.Instance.HasReference(txType, ref) {
			return Classification{}, &engine.RejectionError{
				Code:                engine.RejectUnknownReference,
				ClientTransactionID: pi.ClientTransactionID,
				Message:             fmt.Sprintf("transaction_ref %q not configured", ref),
			}
		}
	} else {
		ref = ""
	}

	return Classification{Type: txType, Reference: ref}, nil
}

func feeFamilyFor(feeType string) (engine.FeeFamily, bool) {
	switch feeType {
	case FeeTypeDispute:
		return engine.FeeDispute, true
	case FeeTypeExternal:
		return engine.FeeExternal, true
	default:
		return "", false
	}
}
