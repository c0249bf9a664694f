/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the engine with realistic
	card activity for testing and demos. Each scenario opens an account,
	submits posting batches, and advances the virtual clock through
	statement cycles so the resulting balances are interesting to inspect.

AVAILABLE SCENARIOS:

	purchase-lifecycle:  Auth, settlement, statement, repayment in full
	revolver-interest:   Partial repayment, revolver interest accrual
	cash-advance-fees:   Cash advance with percentage + flat fee
	balance-transfer:    Promo references with a time window
	overdue-late-fee:    Missed MAD, late fee, overdue aging
	overpayment-deposit: Repayment beyond balance parks in DEPOSIT

HOW SCENARIOS WORK:
 1. Reset state (fresh in-memory store, virtual clock, service)
 2. Open an account with scenario-specific parameters
 3. Submit posting batches at chosen value timestamps
 4. Advance the clock so accruals, SCOD, and PDD fire

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "revolver-interest"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Loading a scenario replaces the handler's service and store with fresh
	in-memory instances. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - card/params.go: Parameter definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/card-engine/card"
	"github.com/warp/card-engine/engine"
	memstore "github.com/warp/card-engine/engine/store"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "purchase-lifecycle",
		Name:        "Purchase Lifecycle",
		Description: "Authorization, settlement, statement cut, repayment in full",
	},
	{
		ID:          "revolver-interest",
		Name:        "Revolver Interest",
		Description: "Partial repayment leaves a revolving balance accruing daily interest",
	},
	{
		ID:          "cash-advance-fees",
		Name:        "Cash Advance Fees",
		Description: "Cash advance with a combined percentage + flat fee",
	},
	{
		ID:          "balance-transfer",
		Name:        "Balance Transfer",
		Description: "Promotional references with a post-opening time window",
	},
	{
		ID:          "overdue-late-fee",
		Name:        "Overdue & Late Fee",
		Description: "Missed minimum due: late fee, overdue aging, revolver marker",
	},
	{
		ID:          "overpayment-deposit",
		Name:        "Overpayment Deposit",
		Description: "Repayment beyond the outstanding balance parks as a deposit",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:   h.currentScenario,
		Name: h.currentScenario,
	})
}

// LoadScenario loads a predefined scenario into a fresh engine instance.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	h.resetWorld(engine.NewTimePoint(2025, time.January, 1))

	var err error
	switch req.ScenarioID {
	case "purchase-lifecycle":
		err = h.loadPurchaseLifecycleScenario(ctx)
	case "revolver-interest":
		err = h.loadRevolverInterestScenario(ctx)
	case "cash-advance-fees":
		err = h.loadCashAdvanceFeesScenario(ctx)
	case "balance-transfer":
		err = h.loadBalanceTransferScenario(ctx)
	case "overdue-late-fee":
		err = h.loadOverdueLateFeeScenario(ctx)
	case "overpayment-deposit":
		err = h.loadOverpaymentDepositScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// ResetScenarios discards all state and starts from an empty engine.
func (h *Handler) ResetScenarios(w http.ResponseWriter, r *http.Request) {
	h.resetWorld(engine.NewTimePoint(2025, time.January, 1))
	h.currentScenario = ""
	w.WriteHeader(http.StatusNoContent)
}

// resetWorld replaces the service, store, and clock with fresh in-memory
// instances starting at the given time.
func (h *Handler) resetWorld(start engine.TimePoint) {
	store := memstore.NewMemory()
	clock := engine.NewVirtualClock(start)
	h.Store = store
	h.VClock = clock
	h.Service = card.NewService(store, clock)
}

// =============================================================================
// SCENARIO BUILDING BLOCKS
// =============================================================================

func demoInstanceParams(creditLimit string) card.InstanceParams {
	return card.InstanceParams{
		CreditLimit:      engine.MustParseDecimal(creditLimit),
		PaymentDuePeriod: 21,
		LateRepaymentFee: engine.MustParseDecimal("100"),
		Denomination:     "GBP",
	}
}

func (h *Handler) openDemoAccount(ctx context.Context, id string, inst card.InstanceParams, tpl card.TemplateParams, openedAt engine.TimePoint) (*card.Account, error) {
	h.VClock.Set(openedAt)
	return h.Service.OpenAccount(ctx, engine.AccountID(id), inst, tpl, openedAt)
}

func (h *Handler) submit(ctx context.Context, id string, at engine.TimePoint, instructions ...card.PostingInstruction) error {
	for i := range instructions {
		instructions[i].ValueTimestamp = at
	}
	result, err := h.Service.SubmitBatch(ctx, engine.AccountID(id),
		card.PostingBatch{Instructions: instructions, ValueTimestamp: at})
	if err != nil {
		return err
	}
	if !result.Accepted {
		for _, r := range result.Results {
			if r.Rejection != nil {
				return fmt.Errorf("batch rejected: %s (%s)", r.Rejection.Code, r.ClientTransactionID)
			}
		}
		return fmt.Errorf("batch rejected")
	}
	return nil
}

func (h *Handler) advanceTo(ctx context.Context, t engine.TimePoint) error {
	h.VClock.Set(t)
	return h.Service.Tick(ctx)
}

func auth(ctid, amount string) card.PostingInstruction {
	return card.PostingInstruction{
		Type:                card.PostingOutboundAuth,
		Amount:              engine.MustParseDecimal(amount),
		Denomination:        "GBP",
		ClientTransactionID: engine.ClientTransactionID(ctid),
	}
}

func settle(ctid, amount string, final bool) card.PostingInstruction {
	return card.PostingInstruction{
		Type:                card.PostingSettlement,
		Amount:              engine.MustParseDecimal(amount),
		Denomination:        "GBP",
		ClientTransactionID: engine.ClientTransactionID(ctid),
		Final:               final,
	}
}

func spend(ctid, amount string, details map[string]string) card.PostingInstruction {
	return card.PostingInstruction{
		Type:                card.PostingOutboundHardSettlement,
		Amount:              engine.MustParseDecimal(amount),
		Denomination:        "GBP",
		ClientTransactionID: engine.ClientTransactionID(ctid),
		InstructionDetails:  details,
	}
}

func repay(ctid, amount string) card.PostingInstruction {
	return card.PostingInstruction{
		Type:                card.PostingInboundHardSettlement,
		Amount:              engine.MustParseDecimal(amount),
		Denomination:        "GBP",
		ClientTransactionID: engine.ClientTransactionID(ctid),
	}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadPurchaseLifecycleScenario demonstrates the transactor happy path:
// an authorization, a final settlement, a statement cut, and a repayment
// in full before the due date. No interest is ever charged.
func (h *Handler) loadPurchaseLifecycleScenario(ctx context.Context) error {
	const id = "alice"
	opened := engine.NewTimePoint(2025, time.January, 1)
	if _, err := h.openDemoAccount(ctx, id, demoInstanceParams("10000"), card.DefaultTemplateParams(), opened); err != nil {
		return err
	}

	// Auth on the 5th, final settlement on the 7th.
	if err := h.submit(ctx, id, engine.NewTimePointAt(2025, time.January, 5, 10, 0, 0), auth("pos-1", "1000")); err != nil {
		return err
	}
	if err := h.submit(ctx, id, engine.NewTimePointAt(2025, time.January, 7, 9, 0, 0), settle("pos-1", "1000", true)); err != nil {
		return err
	}

	// First statement cuts Feb 1; repay in full before the Feb 22 due date.
	if err := h.advanceTo(ctx, engine.NewTimePointAt(2025, time.February, 10, 0, 0, 0)); err != nil {
		return err
	}
	return h.submit(ctx, id, engine.NewTimePointAt(2025, time.February, 10, 12, 0, 0), repay("pay-1", "1000"))
}

// loadRevolverInterestScenario leaves half the statement balance unpaid, so
// the account becomes a revolver and uncharged grace interest converts to
// charged interest at the next cut.
func (h *Handler) loadRevolverInterestScenario(ctx context.Context) error {
	const id = "bob"
	opened := engine.NewTimePoint(2025, time.January, 1)
	if _, err := h.openDemoAccount(ctx, id, demoInstanceParams("10000"), card.DefaultTemplateParams(), opened); err != nil {
		return err
	}

	if err := h.submit(ctx, id, engine.NewTimePointAt(2025, time.January, 10, 10, 0, 0), spend("pos-1", "3000", nil)); err != nil {
		return err
	}

	// Statement cuts Feb 1. Pay half before the due date; the rest revolves.
	if err := h.submit(ctx, id, engine.NewTimePointAt(2025, time.February, 15, 12, 0, 0), repay("pay-1", "1500")); err != nil {
		return err
	}

	// Run through the second cut so the accrued interest is applied.
	return h.advanceTo(ctx, engine.NewTimePointAt(2025, time.March, 2, 0, 0, 0))
}

// loadCashAdvanceFeesScenario charges a 2% + 100 flat combined fee on a
// cash advance, with the higher cash-advance APR accruing from day one.
func (h *Handler) loadCashAdvanceFeesScenario(ctx context.Context) error {
	const id = "carol"
	inst := demoInstanceParams("10000")
	inst.TransactionTypeFees = map[engine.TransactionType]card.FeeSpec{
		engine.TypeCashAdvance: {
			PercentageFee: engine.MustParseDecimal("0.02"),
			FlatFee:       engine.MustParseDecimal("100"),
			Combine:       true,
			FeeCap:        engine.MustParseDecimal("500"),
		},
	}
	inst.TransactionAPR = map[string]decimal.Decimal{
		string(engine.TypeCashAdvance): engine.MustParseDecimal("0.36"),
	}

	opened := engine.NewTimePoint(2025, time.January, 1)
	if _, err := h.openDemoAccount(ctx, id, inst, card.DefaultTemplateParams(), opened); err != nil {
		return err
	}

	if err := h.submit(ctx, id, engine.NewTimePointAt(2025, time.January, 12, 15, 0, 0),
		spend("atm-1", "2000", map[string]string{card.DetailTransactionCode: "cash_advance"})); err != nil {
		return err
	}

	return h.advanceTo(ctx, engine.NewTimePointAt(2025, time.February, 2, 0, 0, 0))
}

// loadBalanceTransferScenario uses promotional references that are only
// usable within 14 days of opening, each at its own promo APR.
func (h *Handler) loadBalanceTransferScenario(ctx context.Context) error {
	const id = "dave"
	days := 14
	inst := demoInstanceParams("10000")
	inst.TransactionReferences = map[engine.TransactionType][]string{
		engine.TypeBalanceTransfer: {"ref1", "ref2"},
	}
	inst.TransactionTypeLimits = map[engine.TransactionType]card.LimitSpec{
		engine.TypeBalanceTransfer: {AllowedDaysAfterOpening: &days},
	}
	inst.TransactionAPR = map[string]decimal.Decimal{
		string(engine.TypeBalanceTransfer) + ":ref1": engine.MustParseDecimal("0.01"),
		string(engine.TypeBalanceTransfer) + ":ref2": engine.MustParseDecimal("0.05"),
	}

	opened := engine.NewTimePoint(2025, time.January, 1)
	if _, err := h.openDemoAccount(ctx, id, inst, card.DefaultTemplateParams(), opened); err != nil {
		return err
	}

	// Two transfers inside the window, one per reference.
	if err := h.submit(ctx, id, engine.NewTimePointAt(2025, time.January, 3, 9, 0, 0),
		spend("bt-1", "2500", map[string]string{
			card.DetailTransactionCode: "balance_transfer",
			card.DetailTransactionRef:  "REF1",
		})); err != nil {
		return err
	}
	if err := h.submit(ctx, id, engine.NewTimePointAt(2025, time.January, 8, 9, 0, 0),
		spend("bt-2", "1500", map[string]string{
			card.DetailTransactionCode: "balance_transfer",
			card.DetailTransactionRef:  "REF2",
		})); err != nil {
		return err
	}

	return h.advanceTo(ctx, engine.NewTimePointAt(2025, time.February, 2, 0, 0, 0))
}

// loadOverdueLateFeeScenario misses the first minimum due entirely: a late
// fee posts, the unpaid MAD ages into OVERDUE_1, and billed principal
// becomes unpaid.
func (h *Handler) loadOverdueLateFeeScenario(ctx context.Context) error {
	const id = "erin"
	opened := engine.NewTimePoint(2025, time.January, 1)
	if _, err := h.openDemoAccount(ctx, id, demoInstanceParams("10000"), card.DefaultTemplateParams(), opened); err != nil {
		return err
	}

	if err := h.submit(ctx, id, engine.NewTimePointAt(2025, time.January, 10, 10, 0, 0), spend("pos-1", "5000", nil)); err != nil {
		return err
	}

	// Statement cuts Feb 1, due Feb 22. Pay nothing and run past the due
	// date into the next cycle.
	return h.advanceTo(ctx, engine.NewTimePointAt(2025, time.March, 2, 0, 0, 0))
}

// loadOverpaymentDepositScenario repays more than everything owed; the
// excess parks in DEPOSIT and the next spend draws it down first.
func (h *Handler) loadOverpaymentDepositScenario(ctx context.Context) error {
	const id = "frank"
	opened := engine.NewTimePoint(2025, time.January, 1)
	if _, err := h.openDemoAccount(ctx, id, demoInstanceParams("10000"), card.DefaultTemplateParams(), opened); err != nil {
		return err
	}

	if err := h.submit(ctx, id, engine.NewTimePointAt(2025, time.January, 5, 10, 0, 0), spend("pos-1", "800", nil)); err != nil {
		return err
	}

	// Repay 1000 against an 800 balance: 200 lands in DEPOSIT.
	if err := h.submit(ctx, id, engine.NewTimePointAt(2025, time.January, 6, 10, 0, 0), repay("pay-1", "1000")); err != nil {
		return err
	}

	// The next 500 purchase consumes the 200 deposit first, leaving 300 of
	// new principal.
	return h.submit(ctx, id, engine.NewTimePointAt(2025, time.January, 8, 10, 0, 0), spend("pos-2", "500", nil))
}
