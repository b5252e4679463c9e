/*
handlers.go - HTTP API handlers for the credit engine

PURPOSE:
  Exposes the credit engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the ledger engine.

ENDPOINTS:
  Clients:
    GET    /api/clients               List all clients
    POST   /api/clients               Create client
    GET    /api/clients/{id}          Get client details
    PUT    /api/clients/{id}/contact  Update phone/email
    DELETE /api/clients/{id}          Delete client (cascades)

  Sales:
    GET    /api/sales                 List sales, reconciled and enriched
    POST   /api/sales                 Create sale
    GET    /api/sales/{id}            Get one sale, reconciled
    PUT    /api/sales/{id}/date       Update sale date
    DELETE /api/sales/{id}            Delete sale (cascades)

  Layaways: same as sales, plus
    POST   /api/layaways/{id}/deliver Deliver (paid only)
    POST   /api/layaways/{id}/cancel  Cancel (reserved or paid)

  Payments:
    POST   /api/payments              Record payment (admission control)
    GET    /api/payments              List by sale_id or layaway_id
    DELETE /api/payments/{id}         Delete payment, re-reconcile parent

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate shape
  3. Call engine / store
  4. Serialize response
  5. Map errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Record not found
  - 409: Overpayment, invalid state transition, uniqueness conflict
  - 500: Storage failures

RECONCILE-ON-READ:
  List and single reads recompute balances and sync the cached status
  column. The write-back is best-effort there: on failure the read logs
  and still returns the freshly computed status.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/abacus/credit-engine/ledger"
	"github.com/abacus/credit-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Admission *ledger.AdmissionControl
	Recon     *ledger.Reconciler
	Lifecycle *ledger.Lifecycle

	// Track currently loaded demo scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:     store,
		Admission: ledger.NewAdmissionControl(store),
		Recon:     ledger.NewReconciler(store),
		Lifecycle: ledger.NewLifecycle(store),
	}
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns all clients.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateClient creates a new client.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "name is required", nil)
		return
	}

	c := ledger.Client{
		ID:          uuid.NewString(),
		Name:        req.Name,
		ExternalRef: req.ExternalRef,
		Phone:       req.Phone,
		Email:       req.Email,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Store.CreateClient(r.Context(), c); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toClientDTO(c))
}

// GetClient returns a single client.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := h.Store.GetClient(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "not_found", "client not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toClientDTO(*c))
}

// UpdateClientContact updates phone and/or email. At least one must be
// present in the request.
func (h *Handler) UpdateClientContact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if req.Phone == nil && req.Email == nil {
		writeError(w, http.StatusBadRequest, "validation_error", "at least one of phone or email is required", nil)
		return
	}

	c, err := h.Store.GetClient(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "not_found", "client not found", nil)
		return
	}

	if req.Phone != nil {
		c.Phone = *req.Phone
	}
	if req.Email != nil {
		c.Email = *req.Email
	}
	if err := h.Store.UpdateClientContact(r.Context(), id, c.Phone, c.Email); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toClientDTO(*c))
}

// DeleteClient removes a client and everything it owns.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteClient(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SALE HANDLERS
// =============================================================================

// ListSales returns all sales enriched with reconciled balances, optionally
// filtered by client_id. Stale cached statuses are repaired in place; a
// failed repair only logs.
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var sales []ledger.Sale
	var err error
	if clientID := r.URL.Query().Get("client_id"); clientID != "" {
		sales, err = h.Store.ListSalesByClient(ctx, clientID)
	} else {
		sales, err = h.Store.ListSales(ctx)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	totals, err := h.Store.PaidTotals(ctx, ledger.ParentSale)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]SaleDTO, len(sales))
	for i := range sales {
		b := ledger.NewBalance(sales[i].Total, totals[sales[i].ID])
		if err := h.Recon.SyncSaleStatus(ctx, &sales[i], b); err != nil {
			log.Printf("[Reconcile] sale %s status write-back failed: %v", sales[i].ID, err)
			sales[i].Status = ledger.DeriveSaleStatus(b)
		}
		dtos[i] = toSaleDTO(sales[i], b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSale creates a new sale with zero payments.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if req.ClientID == "" || req.Product == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "client_id and product are required", nil)
		return
	}
	total, ok := parseAmount(req.TotalAmount)
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_error", "total_amount must be a positive number", nil)
		return
	}
	saleDate, err := time.Parse(dateLayout, req.SaleDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "sale_date must be YYYY-MM-DD", nil)
		return
	}

	client, err := h.Store.GetClient(r.Context(), req.ClientID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "not_found", "client not found", nil)
		return
	}

	sale := ledger.Sale{
		ID:        uuid.NewString(),
		ClientID:  req.ClientID,
		Product:   req.Product,
		Total:     total,
		Status:    ledger.SalePending,
		SaleDate:  saleDate,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.CreateSale(r.Context(), sale); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSaleDTO(sale, ledger.NewBalance(sale.Total, decimal.Zero)))
}

// GetSale returns a single sale, reconciled.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	sale, err := h.Store.GetSale(ctx, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if sale == nil {
		writeError(w, http.StatusNotFound, "not_found", "sale not found", nil)
		return
	}

	paid, err := h.Store.PaidTotal(ctx, ledger.SaleRef(id))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	b := ledger.NewBalance(sale.Total, paid)
	if err := h.Recon.SyncSaleStatus(ctx, sale, b); err != nil {
		log.Printf("[Reconcile] sale %s status write-back failed: %v", id, err)
		sale.Status = ledger.DeriveSaleStatus(b)
	}

	writeJSON(w, http.StatusOK, toSaleDTO(*sale, b))
}

// UpdateSaleDate rewrites the sale date. No business logic beyond format.
func (h *Handler) UpdateSaleDate(w http.ResponseWriter, r *http.Request) {
	var req UpdateDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "date must be YYYY-MM-DD", nil)
		return
	}

	if err := h.Store.UpdateSaleDate(r.Context(), chi.URLParam(r, "id"), date); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteSale removes a sale and its payments.
func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteSale(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LAYAWAY HANDLERS
// =============================================================================

// ListLayaways returns all layaways enriched with reconciled balances,
// optionally filtered by client_id.
func (h *Handler) ListLayaways(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var layaways []ledger.Layaway
	var err error
	if clientID := r.URL.Query().Get("client_id"); clientID != "" {
		layaways, err = h.Store.ListLayawaysByClient(ctx, clientID)
	} else {
		layaways, err = h.Store.ListLayaways(ctx)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	totals, err := h.Store.PaidTotals(ctx, ledger.ParentLayaway)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]LayawayDTO, len(layaways))
	for i := range layaways {
		b := ledger.NewBalance(layaways[i].Total, totals[layaways[i].ID])
		if err := h.Recon.SyncLayawayStatus(ctx, &layaways[i], b); err != nil {
			log.Printf("[Reconcile] layaway %s status write-back failed: %v", layaways[i].ID, err)
			layaways[i].Status = ledger.DeriveLayawayStatus(layaways[i].Status, b)
		}
		dtos[i] = toLayawayDTO(layaways[i], b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateLayaway creates a new layaway in reserved state.
func (h *Handler) CreateLayaway(w http.ResponseWriter, r *http.Request) {
	var req CreateLayawayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if req.ClientID == "" || req.Product == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "client_id and product are required", nil)
		return
	}
	total, ok := parseAmount(req.TotalAmount)
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_error", "total_amount must be a positive number", nil)
		return
	}
	reservedDate, err := time.Parse(dateLayout, req.ReservedDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "reserved_date must be YYYY-MM-DD", nil)
		return
	}

	client, err := h.Store.GetClient(r.Context(), req.ClientID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "not_found", "client not found", nil)
		return
	}

	l := ledger.Layaway{
		ID:           uuid.NewString(),
		ClientID:     req.ClientID,
		Product:      req.Product,
		Total:        total,
		Status:       ledger.LayawayReserved,
		ReservedDate: reservedDate,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.Store.CreateLayaway(r.Context(), l); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLayawayDTO(l, ledger.NewBalance(l.Total, decimal.Zero)))
}

// GetLayaway returns a single layaway, reconciled.
func (h *Handler) GetLayaway(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	l, err := h.Store.GetLayaway(ctx, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if l == nil {
		writeError(w, http.StatusNotFound, "not_found", "layaway not found", nil)
		return
	}

	paid, err := h.Store.PaidTotal(ctx, ledger.LayawayRef(id))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	b := ledger.NewBalance(l.Total, paid)
	if err := h.Recon.SyncLayawayStatus(ctx, l, b); err != nil {
		log.Printf("[Reconcile] layaway %s status write-back failed: %v", id, err)
		l.Status = ledger.DeriveLayawayStatus(l.Status, b)
	}

	writeJSON(w, http.StatusOK, toLayawayDTO(*l, b))
}

// UpdateLayawayDate rewrites the reservation date.
func (h *Handler) UpdateLayawayDate(w http.ResponseWriter, r *http.Request) {
	var req UpdateDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "date must be YYYY-MM-DD", nil)
		return
	}

	if err := h.Store.UpdateLayawayDate(r.Context(), chi.URLParam(r, "id"), date); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeliverLayaway transitions a paid layaway to delivered.
func (h *Handler) DeliverLayaway(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	l, err := h.Lifecycle.Deliver(r.Context(), id, time.Now().UTC())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	paid, err := h.Store.PaidTotal(r.Context(), ledger.LayawayRef(id))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLayawayDTO(*l, ledger.NewBalance(l.Total, paid)))
}

// CancelLayaway transitions a reserved or paid layaway to cancelled.
func (h *Handler) CancelLayaway(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	l, err := h.Lifecycle.Cancel(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	paid, err := h.Store.PaidTotal(r.Context(), ledger.LayawayRef(id))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLayawayDTO(*l, ledger.NewBalance(l.Total, paid)))
}

// DeleteLayaway removes a layaway and its payments.
func (h *Handler) DeleteLayaway(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteLayaway(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// CreatePayment runs admission control on a proposed payment.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		writeError(w, http.StatusBadRequest, "validation_error", "amount must be a finite number", nil)
		return
	}

	// An absent date fails admission with "date is required"; a present but
	// malformed one fails here.
	var date time.Time
	if req.Date != "" {
		var err error
		date, err = time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "date must be YYYY-MM-DD", nil)
			return
		}
	}

	result, err := h.Admission.Admit(r.Context(), ledger.PaymentRequest{
		SaleID:    req.SaleID,
		LayawayID: req.LayawayID,
		Amount:    decimal.NewFromFloat(req.Amount),
		Date:      date,
		Comment:   req.Comment,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	paid, _ := result.Balance.Paid.Float64()
	outstanding, _ := result.Balance.Outstanding.Float64()
	writeJSON(w, http.StatusCreated, PaymentResultDTO{
		Payment:            toPaymentDTO(result.Payment),
		TotalPaid:          paid,
		OutstandingBalance: outstanding,
		ParentStatus:       result.ParentStatus,
	})
}

// ListPayments returns the payments for one sale or layaway, selected via
// the sale_id or layaway_id query parameter.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	ref := ledger.ParentRef{
		SaleID:    r.URL.Query().Get("sale_id"),
		LayawayID: r.URL.Query().Get("layaway_id"),
	}
	if err := ref.Validate(); err != nil {
		writeEngineError(w, err)
		return
	}

	payments, err := h.Store.PaymentsByParent(r.Context(), ref)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// DeletePayment removes a payment and re-reconciles its parent, so a sale
// that was paid can fall back to pending.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	p, err := h.Store.GetPayment(ctx, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "not_found", "payment not found", nil)
		return
	}

	if err := h.Store.DeletePayment(ctx, id); err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.reconcileParent(ctx, p.Parent); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// reconcileParent re-syncs the parent's status after a payment change.
// A parent already deleted (cascade) is not an error.
func (h *Handler) reconcileParent(ctx context.Context, ref ledger.ParentRef) error {
	switch ref.Kind() {
	case ledger.ParentSale:
		sale, err := h.Store.GetSale(ctx, ref.ID())
		if err != nil || sale == nil {
			return err
		}
		_, err = h.Recon.ReconcileSale(ctx, sale)
		return err
	default:
		l, err := h.Store.GetLayaway(ctx, ref.ID())
		if err != nil || l == nil {
			return err
		}
		_, err = h.Recon.ReconcileLayaway(ctx, l)
		return err
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// writeEngineError maps ledger errors onto the HTTP taxonomy.
func writeEngineError(w http.ResponseWriter, err error) {
	var ope *ledger.OverpaymentError
	var te *ledger.TransitionError

	switch {
	case errors.As(err, &ope):
		requested, _ := ope.Requested.Float64()
		outstanding, _ := ope.Outstanding.Float64()
		writeError(w, http.StatusConflict, "overpayment", err.Error(), map[string]any{
			"requested":           requested,
			"outstanding_balance": outstanding,
		})
	case errors.As(err, &te):
		writeError(w, http.StatusConflict, "invalid_state_transition", err.Error(), map[string]any{
			"current_state": string(te.From),
		})
	case errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "storage_failure", err.Error(), nil)
	}
}

// parseAmount converts a request amount, rejecting non-positive and
// non-finite values.
func parseAmount(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}
