/*
statemachine.go - Layaway lifecycle

PURPOSE:
  Models the layaway lifecycle as an explicit finite state machine with a
  central transition table, instead of ad-hoc string comparisons scattered
  through handlers.

STATES:
  reserved (initial) -> paid       balance-driven, see reconcile.go
  paid               -> delivered  explicit action, stamps delivery date
  reserved | paid    -> cancelled  explicit action
  delivered, cancelled             terminal

Any transition not in the table fails with TransitionError carrying the
current state.

SEE ALSO:
  - reconcile.go: Drives the reserved->paid edge from balance
  - api/handlers.go: Deliver/Cancel endpoints
*/
package ledger

import (
	"context"
	"time"
)

// layawayTransitions is the single source of truth for permitted edges.
var layawayTransitions = map[LayawayStatus]map[LayawayStatus]bool{
	LayawayReserved: {LayawayPaid: true, LayawayCancelled: true},
	LayawayPaid:     {LayawayDelivered: true, LayawayCancelled: true},
	// delivered and cancelled are terminal
}

// CanTransition reports whether the edge s -> to is in the transition table.
func (s LayawayStatus) CanTransition(to LayawayStatus) bool {
	return layawayTransitions[s][to]
}

// Terminal reports whether no edges leave this state.
func (s LayawayStatus) Terminal() bool {
	return len(layawayTransitions[s]) == 0
}

// =============================================================================
// LIFECYCLE - Action-driven transitions
// =============================================================================

// Lifecycle applies the explicit (non-balance) layaway actions.
type Lifecycle struct {
	store Store
}

func NewLifecycle(store Store) *Lifecycle {
	return &Lifecycle{store: store}
}

// Deliver transitions a paid layaway to delivered and stamps the current
// date. Permitted only from paid.
func (lc *Lifecycle) Deliver(ctx context.Context, id string, now time.Time) (*Layaway, error) {
	l, err := lc.store.GetLayaway(ctx, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, &NotFoundError{Entity: "layaway", ID: id}
	}
	if !l.Status.CanTransition(LayawayDelivered) {
		return nil, &TransitionError{LayawayID: id, From: l.Status, To: LayawayDelivered}
	}

	deliveredAt := now
	if err := lc.store.UpdateLayawayStatus(ctx, id, LayawayDelivered, &deliveredAt); err != nil {
		return nil, err
	}
	l.Status = LayawayDelivered
	l.DeliveredAt = &deliveredAt
	return l, nil
}

// Cancel transitions a reserved or paid layaway to cancelled.
func (lc *Lifecycle) Cancel(ctx context.Context, id string) (*Layaway, error) {
	l, err := lc.store.GetLayaway(ctx, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, &NotFoundError{Entity: "layaway", ID: id}
	}
	if !l.Status.CanTransition(LayawayCancelled) {
		return nil, &TransitionError{LayawayID: id, From: l.Status, To: LayawayCancelled}
	}

	if err := lc.store.UpdateLayawayStatus(ctx, id, LayawayCancelled, l.DeliveredAt); err != nil {
		return nil, err
	}
	l.Status = LayawayCancelled
	return l, nil
}
