/*
balance.go - Balance calculation and payment admission checks

PURPOSE:
  Computes total-paid and outstanding balance for a sale or layaway from its
  payment set. This is the central calculation that answers "how much is
  still owed?" and "does this payment fit?".

EPSILON:
  Totals originate as floating-point input and one storage path aggregates
  through REAL, so every comparison against zero uses a tolerance of 0.001.
  An outstanding balance <= 0.001 counts as fully paid, and a payment may
  exceed the outstanding balance by strictly less than 0.001 and still be
  admitted.

PURITY:
  Everything in this file is a pure function over its inputs. No I/O, no
  clock, safe to call from any context.

SEE ALSO:
  - reconcile.go: Feeds FullyPaid() into status derivation
  - admission.go: Feeds Admits() into payment validation
*/
package ledger

import "github.com/shopspring/decimal"

// Epsilon is the tolerance used for all fully-paid and overpayment
// comparisons.
var Epsilon = decimal.NewFromFloat(0.001)

// =============================================================================
// BALANCE - Computed from total owed and payments received
// =============================================================================

// Balance is the reconciled money position of a single sale or layaway.
type Balance struct {
	Total       decimal.Decimal // fixed amount owed
	Paid        decimal.Decimal // sum of admitted payments
	Outstanding decimal.Decimal // Total - Paid, may be slightly negative within Epsilon
}

// NewBalance builds a balance from the total owed and a precomputed paid sum.
func NewBalance(total, paid decimal.Decimal) Balance {
	return Balance{Total: total, Paid: paid, Outstanding: total.Sub(paid)}
}

// BalanceOf computes the balance from the full payment set. Zero payments
// yield Paid == 0 and Outstanding == total.
func BalanceOf(total decimal.Decimal, payments []Payment) Balance {
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	return NewBalance(total, paid)
}

// FullyPaid reports whether the outstanding balance is zero within Epsilon.
func (b Balance) FullyPaid() bool {
	return b.Outstanding.LessThanOrEqual(Epsilon)
}

// Admits reports whether a proposed payment fits the outstanding balance.
// Overshoot strictly below Epsilon is tolerated; overshoot of Epsilon or
// more is an overpayment.
func (b Balance) Admits(amount decimal.Decimal) bool {
	return amount.LessThan(b.Outstanding.Add(Epsilon))
}
