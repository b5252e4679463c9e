/*
store.go - Storage interface consumed by the engine

PURPOSE:
  The engine (reconciler, admission control, lifecycle) depends only on this
  narrow interface. The full CRUD surface (clients, list queries, deletes)
  lives on the concrete stores; the engine never needs it.

IMPLEMENTATIONS:
  store/sqlite: Production SQLite store
  ledger/store: In-memory store for tests and demos

CONTRACT NOTES:
  - Get* return (nil, nil) when the record is absent; the engine converts
    that into NotFoundError with entity context.
  - Update*Status must be an atomic single-row write.
  - PaidTotal must reflect every payment admitted so far for the parent.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the persistence contract the engine requires.
type Store interface {
	GetSale(ctx context.Context, id string) (*Sale, error)
	GetLayaway(ctx context.Context, id string) (*Layaway, error)

	UpdateSaleStatus(ctx context.Context, id string, status SaleStatus) error
	UpdateLayawayStatus(ctx context.Context, id string, status LayawayStatus, deliveredAt *time.Time) error

	CreatePayment(ctx context.Context, p Payment) error

	// PaidTotal returns the sum of payment amounts for the given parent,
	// zero if it has none.
	PaidTotal(ctx context.Context, ref ParentRef) (decimal.Decimal, error)
}
