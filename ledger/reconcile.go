/*
reconcile.go - Derived-status reconciliation

PURPOSE:
  A sale or layaway row carries a cached status column, but the status is
  never authoritative: it is always re-derivable from the total owed and the
  payment sum. The reconciler recomputes the status and writes it back only
  when the stored value is stale.

WHEN IT RUNS:
  1. On every list read of sales/layaways (best-effort: a failed write-back
     is logged by the caller and the read still returns the fresh value, so
     a stale row self-heals on a later read).
  2. Synchronously after a payment is admitted or deleted, before the
     operation returns.

DERIVATION RULES:
  Sale:    paid iff fully paid, pending otherwise (reverts both ways).
  Layaway: only reserved -> paid is balance-driven. delivered and cancelled
           are action-driven and never auto-reverted; a paid layaway whose
           payments shrink stays paid.

IDEMPOTENCE:
  Re-running with an unchanged payment set derives the same status and,
  because the write is conditional on a difference, issues no further writes.

SEE ALSO:
  - balance.go: FullyPaid()
  - admission.go: Invokes reconciliation post-insert
*/
package ledger

import "context"

// DeriveSaleStatus is the pure projection from balance to sale status.
func DeriveSaleStatus(b Balance) SaleStatus {
	if b.FullyPaid() {
		return SalePaid
	}
	return SalePending
}

// DeriveLayawayStatus projects balance onto a layaway status. Only the
// reserved->paid edge is balance-driven; every other current state is
// returned unchanged.
func DeriveLayawayStatus(current LayawayStatus, b Balance) LayawayStatus {
	if current == LayawayReserved && b.FullyPaid() {
		return LayawayPaid
	}
	return current
}

// =============================================================================
// RECONCILER - Read balance, derive status, conditionally write back
// =============================================================================

// Reconciler keeps cached status columns consistent with payment sums.
type Reconciler struct {
	store Store
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// ReconcileSale recomputes the sale's balance from storage and syncs its
// status. The sale's Status field is updated in place on transition.
func (r *Reconciler) ReconcileSale(ctx context.Context, sale *Sale) (Balance, error) {
	paid, err := r.store.PaidTotal(ctx, SaleRef(sale.ID))
	if err != nil {
		return Balance{}, err
	}
	b := NewBalance(sale.Total, paid)
	return b, r.SyncSaleStatus(ctx, sale, b)
}

// SyncSaleStatus applies an already-computed balance. Used by list reads
// that fetch paid sums in one grouped query instead of per record.
func (r *Reconciler) SyncSaleStatus(ctx context.Context, sale *Sale, b Balance) error {
	next := DeriveSaleStatus(b)
	if next == sale.Status {
		return nil
	}
	if err := r.store.UpdateSaleStatus(ctx, sale.ID, next); err != nil {
		return err
	}
	sale.Status = next
	return nil
}

// ReconcileLayaway recomputes the layaway's balance from storage and syncs
// its status.
func (r *Reconciler) ReconcileLayaway(ctx context.Context, l *Layaway) (Balance, error) {
	paid, err := r.store.PaidTotal(ctx, LayawayRef(l.ID))
	if err != nil {
		return Balance{}, err
	}
	b := NewBalance(l.Total, paid)
	return b, r.SyncLayawayStatus(ctx, l, b)
}

// SyncLayawayStatus applies an already-computed balance to a layaway.
func (r *Reconciler) SyncLayawayStatus(ctx context.Context, l *Layaway, b Balance) error {
	next := DeriveLayawayStatus(l.Status, b)
	if next == l.Status {
		return nil
	}
	if err := r.store.UpdateLayawayStatus(ctx, l.ID, next, l.DeliveredAt); err != nil {
		return err
	}
	l.Status = next
	return nil
}
