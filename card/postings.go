/*
postings.go - Posting instruction and batch types

PURPOSE:
  Postings are the inbound interface of the engine. A batch carries one or
  more instructions sharing a value timestamp; acceptance is decided
  synchronously for the whole batch before any ledger mutation, and a
  rejected instruction is a no-op (spec'd as batch-rejected status to the
  external transport, which is not part of this engine).

INSTRUCTION DETAILS:
  transaction_code  selects cash_advance / transfer / balance_transfer
  transaction_ref   selects a named balance-transfer reference
  fee_type          routes the amount straight to a fee family
  dispute           marks an inbound settlement as a dispute reversal

SEE ALSO:
  - classify.go: Instruction-detail interpretation
  - authorize.go: Accept/reject decision
*/
package card

import (
	"github.com/shopspring/decimal"

	"github.com/warp/card-engine/engine"
)

// =============================================================================
// POSTING INSTRUCTIONS
// =============================================================================

type PostingType string

const (
	PostingOutboundAuth           PostingType = "outbound_authorization"
	PostingAuthAdjustment         PostingType = "authorization_adjustment"
	PostingSettlement             PostingType = "settlement"
	PostingRelease                PostingType = "release"
	PostingInboundHardSettlement  PostingType = "inbound_hard_settlement"
	PostingOutboundHardSettlement PostingType = "outbound_hard_settlement"
	PostingTransfer               PostingType = "transfer"
)

// Instruction detail keys.
const (
	DetailTransactionCode = "transaction_code"
	DetailTransactionRef  = "transaction_ref"
	DetailFeeType         = "fee_type"
	DetailDispute         = "dispute"
)

// Fee-type detail values accepted on direct fee postings.
const (
	FeeTypeDispute  = "DISPUTE_FEE"
	FeeTypeExternal = "EXTERNAL_FEE"
)

type PostingInstruction struct {
	Type                PostingType
	Amount              decimal.Decimal
	Denomination        string
	ClientTransactionID engine.ClientTransactionID
	InstructionDetails  map[string]string
	ValueTimestamp      engine.TimePoint

	// Advice marks stand-in/offline instructions that bypass balance and
	// per-type-limit checks.
	Advice bool

	// Final marks a final settlement (releases any auth remainder).
	Final bool
}

// Detail returns an instruction detail, empty string if absent.
func (pi PostingInstruction) Detail(key string) string {
	if pi.InstructionDetails == nil {
		return ""
	}
	return pi.InstructionDetails[key]
}

// IsInbound reports whether the instruction moves money into the account.
func (pi PostingInstruction) IsInbound() bool {
	return pi.Type == PostingInboundHardSettlement
}

// IsDispute reports whether an inbound settlement is tagged as a dispute
// reversal.
func (pi PostingInstruction) IsDispute() bool {
	return pi.IsInbound() && pi.Detail(DetailDispute) == "true"
}

type PostingBatch struct {
	Instructions   []PostingInstruction
	ValueTimestamp engine.TimePoint
}

// =============================================================================
// RESULTS
// =============================================================================

// InstructionResult is the per-instruction accept/reject decision.
type InstructionResult struct {
	ClientTransactionID engine.ClientTransactionID
	Accepted            bool
	Rejection           *engine.RejectionError
}

// BatchResult is the synchronous outcome for a posting batch.
type BatchResult struct {
	Accepted bool
	Results  []InstructionResult
}

func (br *BatchResult) reject(pi PostingInstruction, rej *engine.RejectionError) {
	br.Accepted = false
	br.Results = append(br.Results, InstructionResult{
		ClientTransactionID: pi.ClientTransactionID,
		Accepted:            false,
		Rejection:           rej,
	})
}

func (br *BatchResult) accept(pi PostingInstruction) {
	br.Results = append(br.Results, InstructionResult{
		ClientTransactionID: pi.ClientTransactionID,
		Accepted:            true,
	})
}
