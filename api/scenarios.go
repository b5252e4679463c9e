/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates clients, sales,
	layaways, and payments that demonstrate specific features.

AVAILABLE SCENARIOS:

	empty:          Clean database, no records
	corner-store:   Small shop with credit sales in several payment states
	layaway-season: Layaways across the whole lifecycle, including delivery

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create clients
 3. Create sales and layaways
 4. Record payments through admission control, so statuses derive
    exactly as they would in live use

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "corner-store"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Shared Handler and response helpers
  - server.go: Scenario routes
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abacus/credit-engine/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty",
		Name:        "Empty",
		Description: "Clean database with no records",
	},
	{
		ID:          "corner-store",
		Name:        "Corner Store",
		Description: "Credit sales in pending, partially paid, and paid states",
	},
	{
		ID:          "layaway-season",
		Name:        "Layaway Season",
		Description: "Layaways across reserved, paid, delivered, and cancelled",
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
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "storage_failure", "failed to reset database", nil)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "empty":
		// reset already did the work
	case "corner-store":
		err = h.loadCornerStoreScenario(ctx)
	case "layaway-season":
		err = h.loadLayawaySeasonScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "validation_error", "unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_failure", fmt.Sprintf("failed to load scenario: %v", err), nil)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data without loading a scenario.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "storage_failure", "failed to reset database", nil)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadCornerStoreScenario(ctx context.Context) error {
	now := time.Now().UTC()

	clients := []ledger.Client{
		{ID: "client-maria", Name: "Maria Lopez", Phone: "555-0101", CreatedAt: now},
		{ID: "client-jorge", Name: "Jorge Ramirez", ExternalRef: "cuaderno-12", Phone: "555-0102", CreatedAt: now},
		{ID: "client-ana", Name: "Ana Torres", Email: "ana@example.com", CreatedAt: now},
	}
	for _, c := range clients {
		if err := h.Store.CreateClient(ctx, c); err != nil {
			return err
		}
	}

	// Maria: fridge on credit, half paid in two installments
	fridge := ledger.Sale{
		ID:       "sale-fridge",
		ClientID: "client-maria",
		Product:  "Refrigerator",
		Total:    decimal.NewFromInt(600),
		Status:   ledger.SalePending,
		SaleDate: now.AddDate(0, -2, 0),
	}
	if err := h.Store.CreateSale(ctx, fridge); err != nil {
		return err
	}
	if err := h.seedPayments(ctx, ledger.SaleRef(fridge.ID), []seedPayment{
		{amount: 200, daysAgo: 45, comment: "first installment"},
		{amount: 100, daysAgo: 15, comment: "second installment"},
	}); err != nil {
		return err
	}

	// Jorge: groceries tab, fully paid off
	tab := ledger.Sale{
		ID:       "sale-tab",
		ClientID: "client-jorge",
		Product:  "Monthly grocery tab",
		Total:    decimal.NewFromFloat(84.50),
		Status:   ledger.SalePending,
		SaleDate: now.AddDate(0, -1, 0),
	}
	if err := h.Store.CreateSale(ctx, tab); err != nil {
		return err
	}
	if err := h.seedPayments(ctx, ledger.SaleRef(tab.ID), []seedPayment{
		{amount: 84.50, daysAgo: 3, comment: "settled in full"},
	}); err != nil {
		return err
	}

	// Ana: brand new sale, nothing paid yet
	stove := ledger.Sale{
		ID:       "sale-stove",
		ClientID: "client-ana",
		Product:  "Gas stove",
		Total:    decimal.NewFromInt(350),
		Status:   ledger.SalePending,
		SaleDate: now,
	}
	return h.Store.CreateSale(ctx, stove)
}

func (h *Handler) loadLayawaySeasonScenario(ctx context.Context) error {
	now := time.Now().UTC()

	client := ledger.Client{ID: "client-rosa", Name: "Rosa Mendez", Phone: "555-0201", CreatedAt: now}
	if err := h.Store.CreateClient(ctx, client); err != nil {
		return err
	}

	// Reserved: deposit only
	bike := ledger.Layaway{
		ID:           "layaway-bike",
		ClientID:     client.ID,
		Product:      "Kids bicycle",
		Total:        decimal.NewFromInt(180),
		Status:       ledger.LayawayReserved,
		ReservedDate: now.AddDate(0, 0, -20),
	}
	if err := h.Store.CreateLayaway(ctx, bike); err != nil {
		return err
	}
	if err := h.seedPayments(ctx, ledger.LayawayRef(bike.ID), []seedPayment{
		{amount: 50, daysAgo: 20, comment: "deposit"},
	}); err != nil {
		return err
	}

	// Paid and delivered
	tv := ledger.Layaway{
		ID:           "layaway-tv",
		ClientID:     client.ID,
		Product:      "Television",
		Total:        decimal.NewFromInt(400),
		Status:       ledger.LayawayReserved,
		ReservedDate: now.AddDate(0, -3, 0),
	}
	if err := h.Store.CreateLayaway(ctx, tv); err != nil {
		return err
	}
	if err := h.seedPayments(ctx, ledger.LayawayRef(tv.ID), []seedPayment{
		{amount: 150, daysAgo: 80, comment: "deposit"},
		{amount: 150, daysAgo: 40},
		{amount: 100, daysAgo: 10, comment: "final payment"},
	}); err != nil {
		return err
	}
	if _, err := h.Lifecycle.Deliver(ctx, tv.ID, now.AddDate(0, 0, -7)); err != nil {
		return err
	}

	// Cancelled while still reserved
	mixer := ledger.Layaway{
		ID:           "layaway-mixer",
		ClientID:     client.ID,
		Product:      "Stand mixer",
		Total:        decimal.NewFromInt(220),
		Status:       ledger.LayawayReserved,
		ReservedDate: now.AddDate(0, -1, 0),
	}
	if err := h.Store.CreateLayaway(ctx, mixer); err != nil {
		return err
	}
	_, err := h.Lifecycle.Cancel(ctx, mixer.ID)
	return err
}

type seedPayment struct {
	amount  float64
	daysAgo int
	comment string
}

// seedPayments runs each payment through admission control so the parent's
// cached status lands exactly where live traffic would put it.
func (h *Handler) seedPayments(ctx context.Context, ref ledger.ParentRef, payments []seedPayment) error {
	for _, sp := range payments {
		_, err := h.Admission.Admit(ctx, ledger.PaymentRequest{
			SaleID:    ref.SaleID,
			LayawayID: ref.LayawayID,
			Amount:    decimal.NewFromFloat(sp.amount),
			Date:      time.Now().UTC().AddDate(0, 0, -sp.daysAgo),
			Comment:   sp.comment,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
