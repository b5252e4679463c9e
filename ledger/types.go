/*
Package ledger is the core credit-tracking engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking credit
  sales, layaway orders, and installment payments: balance calculation,
  derived-status reconciliation, the layaway lifecycle, and payment admission
  control.

KEY CONCEPTS IN THIS FILE (types.go):
  - Client:    The person buying on credit
  - Sale:      A one-time credit purchase with a fixed total owed
  - Layaway:   A reserved product paid off over time before delivery
  - Payment:   An installment applied to exactly one Sale or Layaway
  - ParentRef: The exclusive sale-or-layaway reference a payment carries

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for money to avoid floating-point errors
  2. Derived state: Sale/Layaway status is a cached projection of the payment
     set, never a source of truth on its own
  3. Exclusivity: A payment references exactly one parent, enforced at
     admission time and again by the storage layer

SEE ALSO:
  - balance.go: Balance calculation from payments
  - reconcile.go: Status derivation and write-back
  - admission.go: Payment validation and insertion
  - statemachine.go: Layaway lifecycle transitions
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS ENUMS
// =============================================================================

// SaleStatus is fully balance-derived: a sale is paid exactly when its
// payments cover its total.
type SaleStatus string

const (
	SalePending SaleStatus = "pending"
	SalePaid    SaleStatus = "paid"
)

// LayawayStatus forms a small state machine. Only reserved->paid is
// balance-driven; delivery and cancellation are explicit actions.
// See statemachine.go for the transition table.
type LayawayStatus string

const (
	LayawayReserved  LayawayStatus = "reserved"
	LayawayPaid      LayawayStatus = "paid"
	LayawayDelivered LayawayStatus = "delivered"
	LayawayCancelled LayawayStatus = "cancelled"
)

// =============================================================================
// ENTITIES
// =============================================================================

// Client is the owner of sales and layaways. Deleting a client cascades to
// everything it owns.
type Client struct {
	ID          string
	Name        string
	ExternalRef string // unique when set, e.g. a national id or store card number
	Phone       string
	Email       string
	CreatedAt   time.Time
}

// Sale is a one-time credit purchase. Total is immutable after creation.
type Sale struct {
	ID        string
	ClientID  string
	Product   string
	Total     decimal.Decimal
	Status    SaleStatus
	SaleDate  time.Time
	CreatedAt time.Time
}

// Layaway is a reserved product paid off before delivery.
type Layaway struct {
	ID           string
	ClientID     string
	Product      string
	Total        decimal.Decimal
	Status       LayawayStatus
	ReservedDate time.Time
	DeliveredAt  *time.Time // set when the layaway transitions to delivered
	CreatedAt    time.Time
}

// Payment is an installment against exactly one sale or layaway.
type Payment struct {
	ID        string
	Parent    ParentRef
	Amount    decimal.Decimal
	PaidAt    time.Time
	Comment   string
	CreatedAt time.Time
}

// =============================================================================
// PARENT REFERENCE - exclusive sale-or-layaway
// =============================================================================

type ParentKind string

const (
	ParentSale    ParentKind = "sale"
	ParentLayaway ParentKind = "layaway"
)

// ParentRef identifies the record a payment applies to. Exactly one of the
// two ids must be set; Validate enforces the exclusive-or.
type ParentRef struct {
	SaleID    string
	LayawayID string
}

func SaleRef(id string) ParentRef    { return ParentRef{SaleID: id} }
func LayawayRef(id string) ParentRef { return ParentRef{LayawayID: id} }

// Validate rejects references that name both parents or neither.
func (r ParentRef) Validate() error {
	if (r.SaleID == "") == (r.LayawayID == "") {
		return &FieldError{Field: "sale_id/layaway_id", Message: "exactly one of sale_id or layaway_id must be set"}
	}
	return nil
}

func (r ParentRef) Kind() ParentKind {
	if r.SaleID != "" {
		return ParentSale
	}
	return ParentLayaway
}

func (r ParentRef) ID() string {
	if r.SaleID != "" {
		return r.SaleID
	}
	return r.LayawayID
}

// Key returns a stable identifier for per-parent serialization.
func (r ParentRef) Key() string {
	return string(r.Kind()) + "/" + r.ID()
}
