/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Accounts:
    AccountDTO, OpenAccountRequest, AmendParametersRequest

  Postings:
    PostingBatchRequest, PostingInstructionDTO, BatchResultDTO

  Balances:
    BalanceDTO

  Statements:
    StatementDTO, StatementNotificationDTO

  Flags:
    FlagRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/params.go: InstanceJSON/TemplateJSON types
*/
package api

import (
	"time"

	"github.com/warp/card-engine/card"
	"github.com/warp/card-engine/engine"
	"github.com/warp/card-engine/factory"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID               string  `json:"id"`
	OpenedAt         string  `json:"opened_at"`
	CreditLimit      string  `json:"credit_limit"`
	DefaultBalance   string  `json:"default_balance"`
	AvailableBalance string  `json:"available_balance"`
	Revolver         bool    `json:"revolver"`
	ActiveFlags      []string `json:"active_flags,omitempty"`
}

// OpenAccountRequest is the request to open a new card account.
// Instance and template are the JSON parameter schemas; template fields
// are optional and fall back to product defaults.
type OpenAccountRequest struct {
	ID       string               `json:"id"`
	OpenedAt string               `json:"opened_at,omitempty"` // RFC3339, defaults to now
	Instance factory.InstanceJSON `json:"instance"`
	Template factory.TemplateJSON `json:"template,omitempty"`
}

// AmendParametersRequest is the request to amend instance parameters.
// Only credit_limit is amendable today.
type AmendParametersRequest struct {
	CreditLimit string `json:"credit_limit"`
}

// FlagRequest activates or describes an account flag.
type FlagRequest struct {
	Name      string `json:"name"`
	ExpiresAt string `json:"expires_at,omitempty"` // RFC3339, empty = never
}

// PostingInstructionDTO is one instruction in a posting batch.
type PostingInstructionDTO struct {
	Type                string            `json:"type"`
	Amount              string            `json:"amount"`
	Denomination        string            `json:"denomination"`
	ClientTransactionID string            `json:"client_transaction_id"`
	InstructionDetails  map[string]string `json:"instruction_details,omitempty"`
	Advice              bool              `json:"advice,omitempty"`
	Final               bool              `json:"final,omitempty"`
}

// PostingBatchRequest is the request to submit a posting batch.
type PostingBatchRequest struct {
	ValueTimestamp string                  `json:"value_timestamp"` // RFC3339
	Instructions   []PostingInstructionDTO `json:"instructions"`
}

// InstructionResultDTO is the per-instruction accept/reject decision.
type InstructionResultDTO struct {
	ClientTransactionID string `json:"client_transaction_id"`
	Accepted            bool   `json:"accepted"`
	RejectionCode       string `json:"rejection_code,omitempty"`
	RejectionMessage    string `json:"rejection_message,omitempty"`
}

// BatchResultDTO is the synchronous outcome for a posting batch.
type BatchResultDTO struct {
	Accepted bool                   `json:"accepted"`
	Results  []InstructionResultDTO `json:"results"`
}

// BalanceDTO represents the balance of a single address.
type BalanceDTO struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// EntryDTO represents a ledger entry.
type EntryDTO struct {
	ID                  string `json:"id"`
	Address             string `json:"address"`
	Delta               string `json:"delta"`
	Denomination        string `json:"denomination"`
	EffectiveAt         string `json:"effective_at"`
	Kind                string `json:"kind"`
	ClientTransactionID string `json:"client_transaction_id,omitempty"`
	Reason              string `json:"reason,omitempty"`
}

// StatementDTO represents a generated statement.
type StatementDTO struct {
	ID               string `json:"id"`
	AccountID        string `json:"account_id"`
	PeriodStart      string `json:"period_start"`
	PeriodEnd        string `json:"period_end"`
	CutAt            string `json:"cut_at"`
	DueAt            string `json:"due_at"`
	StatementBalance string `json:"statement_balance"`
	MinimumAmountDue string `json:"minimum_amount_due"`
	IsFinal          bool   `json:"is_final"`
}

// StatementNotificationDTO is the outbound statement-data event.
type StatementNotificationDTO struct {
	AccountID               string `json:"account_id"`
	PaymentDueAt            string `json:"payment_due_at"`
	NextPaymentDueAt        string `json:"next_payment_due_at"`
	MinimumAmountDue        string `json:"minimum_amount_due"`
	StartOfStatementPeriod  string `json:"start_of_statement_period"`
	EndOfStatementPeriod    string `json:"end_of_statement_period"`
	CurrentStatementBalance string `json:"current_statement_balance"`
	NextStatementCutOff     string `json:"next_statement_cut_off"`
	IsFinal                 bool   `json:"is_final"`
}

// AdvanceClockRequest moves the virtual clock forward (demo/testing).
type AdvanceClockRequest struct {
	To string `json:"to"` // RFC3339
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toBatchResultDTO(br *card.BatchResult) BatchResultDTO {
	out := BatchResultDTO{Accepted: br.Accepted}
	for _, r := range br.Results {
		dto := InstructionResultDTO{
			ClientTransactionID: string(r.ClientTransactionID),
			Accepted:            r.Accepted,
		}
		if r.Rejection != nil {
			dto.RejectionCode = string(r.Rejection.Code)
			dto.RejectionMessage = r.Rejection.Message
		}
		out.Results = append(out.Results, dto)
	}
	return out
}

func toEntryDTO(e engine.Entry) EntryDTO {
	return EntryDTO{
		ID:                  string(e.ID),
		Address:             string(e.Address),
		Delta:               e.Delta.Value.String(),
		Denomination:        e.Delta.Denomination,
		EffectiveAt:         e.EffectiveAt.Time.Format(time.RFC3339),
		Kind:                string(e.Kind),
		ClientTransactionID: string(e.ClientTransactionID),
		Reason:              e.Reason,
	}
}

func toStatementDTO(st *card.Statement) StatementDTO {
	return StatementDTO{
		ID:               st.ID,
		AccountID:        string(st.AccountID),
		PeriodStart:      st.PeriodStart.Time.Format(time.RFC3339),
		PeriodEnd:        st.PeriodEnd.Time.Format(time.RFC3339),
		CutAt:            st.CutAt.Time.Format(time.RFC3339),
		DueAt:            st.DueAt.Time.Format(time.RFC3339),
		StatementBalance: st.StatementBalance.StringFixed(2),
		MinimumAmountDue: st.MinimumAmountDue.StringFixed(2),
		IsFinal:          st.IsFinal,
	}
}

func toNotificationDTO(n card.StatementNotification) StatementNotificationDTO {
	return StatementNotificationDTO{
		AccountID:               string(n.AccountID),
		PaymentDueAt:            n.PaymentDueAt.Time.Format(time.RFC3339),
		NextPaymentDueAt:        n.NextPaymentDueAt.Time.Format(time.RFC3339),
		MinimumAmountDue:        n.MinimumAmountDue.StringFixed(2),
		StartOfStatementPeriod:  n.StartOfStatementPeriod.Time.Format(time.RFC3339),
		EndOfStatementPeriod:    n.EndOfStatementPeriod.Time.Format(time.RFC3339),
		CurrentStatementBalance: n.CurrentStatementBalance.StringFixed(2),
		NextStatementCutOff:     n.NextStatementCutOff.Time.Format(time.RFC3339),
		IsFinal:                 n.IsFinal,
	}
}
