/*
handlers.go - HTTP API handlers for the card account engine

PURPOSE:
  Exposes the card ledger engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                   List all accounts
    POST   /api/accounts                   Open account
    GET    /api/accounts/{id}              Account summary
    GET    /api/accounts/{id}/balances     All non-zero balance addresses
    GET    /api/accounts/{id}/entries      Ledger entry history
    GET    /api/accounts/{id}/statements   Generated statements
    POST   /api/accounts/{id}/postings     Submit posting batch
    POST   /api/accounts/{id}/flags        Activate flag
    DELETE /api/accounts/{id}/flags/{name} Expire flag
    PATCH  /api/accounts/{id}/parameters   Amend instance parameters
    POST   /api/accounts/{id}/close        Cut final statement

  Admin:
    GET    /api/notifications              Statement notifications emitted
    POST   /api/admin/advance              Advance the virtual clock

  Scenarios:
    GET    /api/scenarios                  List demo scenarios
    POST   /api/scenarios/load             Load a demo scenario
    POST   /api/scenarios/reset            Reset all state

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Service: Account registry + schedule driver
  - Store: Entry persistence (read side for history endpoints)
  - Factory: JSON to parameter conversion

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (service, account, ledger)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Account not found
  - 409: Conflict (duplicate idempotency key, closed-account rules)
  - 422: Posting batch rejected (the batch result carries the codes)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/card-engine/card"
	"github.com/warp/card-engine/engine"
	"github.com/warp/card-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *card.Service
	Store   engine.Store
	Factory *factory.ParamsFactory

	// Virtual clock when running in demo mode; nil under the system clock.
	VClock *engine.VirtualClock

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(svc *card.Service, store engine.Store) *Handler {
	return &Handler{
		Service: svc,
		Store:   store,
		Factory: factory.NewParamsFactory(),
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all open accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := h.Service.Accounts()
	dtos := make([]AccountDTO, len(accounts))
	for i, acct := range accounts {
		dtos[i] = h.toAccountDTO(acct)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAccount returns a single account summary.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.toAccountDTO(acct))
}

// OpenAccount opens a new card account.
func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Account id is required", nil)
		return
	}

	inst, err := h.Factory.InstanceFromJSON(req.Instance)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid instance parameters", err)
		return
	}
	tpl, err := h.Factory.TemplateFromJSON(req.Template)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid template parameters", err)
		return
	}

	openedAt := h.now()
	if req.OpenedAt != "" {
		t, err := time.Parse(time.RFC3339, req.OpenedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid opened_at (use RFC3339)", err)
			return
		}
		openedAt = engine.TimePoint{Time: t}
	}

	acct, err := h.Service.OpenAccount(r.Context(), engine.AccountID(req.ID), inst, tpl, openedAt)
	if err != nil {
		writeError(w, http.StatusConflict, "Failed to open account", err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toAccountDTO(acct))
}

// GetBalances returns all non-zero balance addresses plus the derived
// aggregates.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}

	balances := acct.Balances()
	dtos := make([]BalanceDTO, 0, len(balances))
	for addr, v := range balances {
		dtos = append(dtos, BalanceDTO{Address: string(addr), Amount: v.String()})
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].Address < dtos[j].Address })

	writeJSON(w, http.StatusOK, dtos)
}

// GetEntries returns the ledger entry history for an account.
func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}

	entries, err := h.Store.Load(r.Context(), acct.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load entries", err)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStatements returns all statements cut for an account, newest first.
func (h *Handler) GetStatements(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}

	statements := acct.Statements()
	dtos := make([]StatementDTO, len(statements))
	for i, st := range statements {
		dtos[len(statements)-1-i] = toStatementDTO(st)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// POSTING HANDLERS
// =============================================================================

// SubmitPostings processes a posting batch against an account.
// The whole batch is atomic: any rejection rejects every instruction.
func (h *Handler) SubmitPostings(w http.ResponseWriter, r *http.Request) {
	id := engine.AccountID(chi.URLParam(r, "id"))

	var req PostingBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Instructions) == 0 {
		writeError(w, http.StatusBadRequest, "At least one instruction is required", nil)
		return
	}

	valueTS := h.now()
	if req.ValueTimestamp != "" {
		t, err := time.Parse(time.RFC3339, req.ValueTimestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid value_timestamp (use RFC3339)", err)
			return
		}
		valueTS = engine.TimePoint{Time: t}
	}

	batch := card.PostingBatch{ValueTimestamp: valueTS}
	for _, dto := range req.Instructions {
		amount, err := decimal.NewFromString(dto.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid amount %q", dto.Amount), err)
			return
		}
		batch.Instructions = append(batch.Instructions, card.PostingInstruction{
			Type:                card.PostingType(dto.Type),
			Amount:              amount,
			Denomination:        dto.Denomination,
			ClientTransactionID: engine.ClientTransactionID(dto.ClientTransactionID),
			InstructionDetails:  dto.InstructionDetails,
			ValueTimestamp:      valueTS,
			Advice:              dto.Advice,
			Final:               dto.Final,
		})
	}

	result, err := h.Service.SubmitBatch(r.Context(), id, batch)
	if err != nil {
		if errors.Is(err, engine.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "Account not found", err)
			return
		}
		if errors.Is(err, engine.ErrDuplicateIdempotencyKey) {
			writeError(w, http.StatusConflict, "Duplicate posting", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to process batch", err)
		return
	}

	status := http.StatusOK
	if !result.Accepted {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, toBatchResultDTO(result))
}

// =============================================================================
// FLAG AND PARAMETER HANDLERS
// =============================================================================

// ActivateFlag applies an external flag event to an account.
func (h *Handler) ActivateFlag(w http.ResponseWriter, r *http.Request) {
	id := engine.AccountID(chi.URLParam(r, "id"))

	var req FlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Flag name is required", nil)
		return
	}

	expiresAt := engine.TimePoint{}
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid expires_at (use RFC3339)", err)
			return
		}
		expiresAt = engine.TimePoint{Time: t}
	}

	if err := h.Service.ActivateFlag(r.Context(), id, req.Name, expiresAt); err != nil {
		writeError(w, http.StatusNotFound, "Account not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExpireFlag removes an account flag.
func (h *Handler) ExpireFlag(w http.ResponseWriter, r *http.Request) {
	id := engine.AccountID(chi.URLParam(r, "id"))
	name := chi.URLParam(r, "name")

	if err := h.Service.ExpireFlag(r.Context(), id, name); err != nil {
		writeError(w, http.StatusNotFound, "Account not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AmendParameters applies an instance-parameter amendment.
func (h *Handler) AmendParameters(w http.ResponseWriter, r *http.Request) {
	id := engine.AccountID(chi.URLParam(r, "id"))

	var req AmendParametersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	limit, err := decimal.NewFromString(req.CreditLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid credit_limit", err)
		return
	}

	if err := h.Service.AmendCreditLimit(r.Context(), id, limit); err != nil {
		writeError(w, http.StatusNotFound, "Account not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CloseAccount cuts the final statement if the account is eligible.
// The final statement bills everything outstanding and demands it in full.
func (h *Handler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	id := engine.AccountID(chi.URLParam(r, "id"))

	notif, err := h.Service.CloseAccount(r.Context(), id, h.now())
	switch {
	case errors.Is(err, engine.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Account not found", err)
		return
	case errors.Is(err, card.ErrCloseNotEligible):
		writeError(w, http.StatusConflict,
			"Account has outstanding balances or open authorizations", nil)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to cut final statement", err)
		return
	}
	if notif == nil {
		// Already cut today; nothing to report.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toNotificationDTO(*notif))
}

// =============================================================================
// NOTIFICATION AND ADMIN HANDLERS
// =============================================================================

// ListNotifications returns all statement notifications emitted so far.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	notifs := h.Service.Notifications()
	dtos := make([]StatementNotificationDTO, len(notifs))
	for i, n := range notifs {
		dtos[i] = toNotificationDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AdvanceClock moves the virtual clock forward and fires every schedule
// event due on the way. Only available in demo mode.
func (h *Handler) AdvanceClock(w http.ResponseWriter, r *http.Request) {
	if h.VClock == nil {
		writeError(w, http.StatusConflict, "Server is running on the system clock", nil)
		return
	}

	var req AdvanceClockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	to, err := time.Parse(time.RFC3339, req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to (use RFC3339)", err)
		return
	}

	target := engine.TimePoint{Time: to}
	if target.Before(h.VClock.Now()) {
		writeError(w, http.StatusBadRequest, "Cannot move the clock backwards", nil)
		return
	}

	h.VClock.Set(target)
	if err := h.Service.Tick(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Schedule firing failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) account(w http.ResponseWriter, r *http.Request) (*card.Account, bool) {
	id := engine.AccountID(chi.URLParam(r, "id"))
	acct, err := h.Service.Account(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Account not found", err)
		return nil, false
	}
	return acct, true
}

func (h *Handler) now() engine.TimePoint {
	if h.VClock != nil {
		return h.VClock.Now()
	}
	return engine.Now()
}

func (h *Handler) toAccountDTO(acct *card.Account) AccountDTO {
	return AccountDTO{
		ID:               string(acct.ID),
		OpenedAt:         acct.OpenedAt.Time.Format(time.RFC3339),
		CreditLimit:      acct.Instance.CreditLimit.String(),
		DefaultBalance:   acct.DefaultBalance().StringFixed(2),
		AvailableBalance: acct.AvailableBalance().StringFixed(2),
		Revolver:         acct.Revolver(),
		ActiveFlags:      acct.Flags.ActiveNames(h.now()),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
