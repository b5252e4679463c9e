/*
admission.go - Payment admission control

PURPOSE:
  Validates a proposed payment against the current outstanding balance
  before inserting it, then reconciles the parent's status synchronously.
  This is the only write path for payments.

ADMISSION SEQUENCE:
  1. Validate shape: positive amount, date present, exclusive parent ref
  2. Load the parent (NotFoundError if absent)
  3. Compute outstanding balance from the pre-insert payment set
  4. Reject with OverpaymentError if amount >= outstanding + epsilon
  5. Insert the payment
  6. Reconcile the parent with the post-insert balance, before returning

CONCURRENCY:
  Steps 2-6 run under a mutex keyed on the parent, so two concurrent
  payments against the same sale/layaway cannot both pass the balance check
  and jointly overpay. Payments against different parents do not contend.

SIDE EFFECTS:
  Exactly one payment row created and at most one status transition applied,
  or nothing on failure.

SEE ALSO:
  - balance.go: Admits()
  - reconcile.go: Post-insert status sync
*/
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRequest is a proposed payment before admission.
type PaymentRequest struct {
	SaleID    string
	LayawayID string
	Amount    decimal.Decimal
	Date      time.Time
	Comment   string
}

// AdmissionResult reports what a successful admission did.
type AdmissionResult struct {
	Payment Payment
	Balance Balance // post-insert balance of the parent
	// Status of the parent after reconciliation, as a plain string because
	// it may be either a SaleStatus or a LayawayStatus.
	ParentStatus string
}

// AdmissionControl is the gatekeeper for payment writes.
type AdmissionControl struct {
	store Store
	recon *Reconciler

	mu      sync.Mutex
	parents map[string]*sync.Mutex
}

func NewAdmissionControl(store Store) *AdmissionControl {
	return &AdmissionControl{
		store:   store,
		recon:   NewReconciler(store),
		parents: make(map[string]*sync.Mutex),
	}
}

// parentLock returns the mutex serializing admissions for one parent.
// Locks are never evicted; the universe of parents in a single-process
// back office is small.
func (ac *AdmissionControl) parentLock(key string) *sync.Mutex {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	l, ok := ac.parents[key]
	if !ok {
		l = &sync.Mutex{}
		ac.parents[key] = l
	}
	return l
}

// Admit runs the full admission sequence for a proposed payment.
func (ac *AdmissionControl) Admit(ctx context.Context, req PaymentRequest) (*AdmissionResult, error) {
	ref := ParentRef{SaleID: req.SaleID, LayawayID: req.LayawayID}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, &FieldError{Field: "amount", Message: "must be a positive number"}
	}
	if req.Date.IsZero() {
		return nil, &FieldError{Field: "date", Message: "is required"}
	}

	lock := ac.parentLock(ref.Key())
	lock.Lock()
	defer lock.Unlock()

	switch ref.Kind() {
	case ParentSale:
		return ac.admitForSale(ctx, ref, req)
	default:
		return ac.admitForLayaway(ctx, ref, req)
	}
}

func (ac *AdmissionControl) admitForSale(ctx context.Context, ref ParentRef, req PaymentRequest) (*AdmissionResult, error) {
	sale, err := ac.store.GetSale(ctx, ref.ID())
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, &NotFoundError{Entity: "sale", ID: ref.ID()}
	}

	p, err := ac.checkAndInsert(ctx, ref, sale.Total, req)
	if err != nil {
		return nil, err
	}

	b, err := ac.recon.ReconcileSale(ctx, sale)
	if err != nil {
		return nil, err
	}
	return &AdmissionResult{Payment: *p, Balance: b, ParentStatus: string(sale.Status)}, nil
}

func (ac *AdmissionControl) admitForLayaway(ctx context.Context, ref ParentRef, req PaymentRequest) (*AdmissionResult, error) {
	l, err := ac.store.GetLayaway(ctx, ref.ID())
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, &NotFoundError{Entity: "layaway", ID: ref.ID()}
	}

	p, err := ac.checkAndInsert(ctx, ref, l.Total, req)
	if err != nil {
		return nil, err
	}

	b, err := ac.recon.ReconcileLayaway(ctx, l)
	if err != nil {
		return nil, err
	}
	return &AdmissionResult{Payment: *p, Balance: b, ParentStatus: string(l.Status)}, nil
}

// checkAndInsert performs the balance check against the pre-insert payment
// set and, if it passes, creates the payment row.
func (ac *AdmissionControl) checkAndInsert(ctx context.Context, ref ParentRef, total decimal.Decimal, req PaymentRequest) (*Payment, error) {
	paid, err := ac.store.PaidTotal(ctx, ref)
	if err != nil {
		return nil, err
	}

	before := NewBalance(total, paid)
	if !before.Admits(req.Amount) {
		return nil, &OverpaymentError{Parent: ref, Requested: req.Amount, Outstanding: before.Outstanding}
	}

	p := Payment{
		ID:      uuid.NewString(),
		Parent:  ref,
		Amount:  req.Amount,
		PaidAt:  req.Date,
		Comment: req.Comment,
	}
	if err := ac.store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}
