package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/abacus/credit-engine/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func payment(amount float64) ledger.Payment {
	return ledger.Payment{Amount: d(amount)}
}

// =============================================================================
// BALANCE CALCULATION
// =============================================================================

func TestBalanceOf_NoPayments(t *testing.T) {
	b := ledger.BalanceOf(d(100), nil)

	if !b.Paid.IsZero() {
		t.Errorf("expected paid 0, got %s", b.Paid)
	}
	if !b.Outstanding.Equal(d(100)) {
		t.Errorf("expected outstanding 100, got %s", b.Outstanding)
	}
	if b.FullyPaid() {
		t.Error("unpaid balance reported as fully paid")
	}
}

func TestBalanceOf_PartialPayments(t *testing.T) {
	b := ledger.BalanceOf(d(100), []ledger.Payment{payment(30), payment(20.5)})

	if !b.Paid.Equal(d(50.5)) {
		t.Errorf("expected paid 50.5, got %s", b.Paid)
	}
	if !b.Outstanding.Equal(d(49.5)) {
		t.Errorf("expected outstanding 49.5, got %s", b.Outstanding)
	}
	if b.FullyPaid() {
		t.Error("partially paid balance reported as fully paid")
	}
}

func TestBalance_ExactPayoff(t *testing.T) {
	b := ledger.BalanceOf(d(100), []ledger.Payment{payment(60), payment(40)})

	if !b.FullyPaid() {
		t.Error("exactly paid balance not reported as fully paid")
	}
}

func TestBalance_FullyPaidWithinEpsilon(t *testing.T) {
	// 99.9995 paid against 100 leaves 0.0005 outstanding, inside the 0.001
	// tolerance.
	b := ledger.NewBalance(d(100), d(99.9995))

	if !b.FullyPaid() {
		t.Errorf("outstanding %s within epsilon not reported as fully paid", b.Outstanding)
	}
}

func TestBalance_NotFullyPaidJustOutsideEpsilon(t *testing.T) {
	b := ledger.NewBalance(d(100), d(99.998))

	if b.FullyPaid() {
		t.Errorf("outstanding %s outside epsilon reported as fully paid", b.Outstanding)
	}
}

// =============================================================================
// ADMISSION CHECK
// =============================================================================

func TestBalance_AdmitsUpToOutstanding(t *testing.T) {
	b := ledger.NewBalance(d(100), d(40))

	if !b.Admits(d(60)) {
		t.Error("payment equal to outstanding balance rejected")
	}
	if !b.Admits(d(10)) {
		t.Error("payment below outstanding balance rejected")
	}
}

func TestBalance_AdmitsOvershootWithinEpsilon(t *testing.T) {
	b := ledger.NewBalance(d(100), decimal.Zero)

	if !b.Admits(d(100.0005)) {
		t.Error("overshoot within epsilon rejected")
	}
}

func TestBalance_RejectsOvershootAtEpsilon(t *testing.T) {
	// Exactly epsilon over is already an overpayment.
	b := ledger.NewBalance(d(100), decimal.Zero)

	if b.Admits(d(100.001)) {
		t.Error("overshoot of exactly epsilon admitted")
	}
	if b.Admits(d(100.01)) {
		t.Error("overshoot beyond epsilon admitted")
	}
}

func TestBalance_FullyPaidAdmitsNothingMeaningful(t *testing.T) {
	b := ledger.NewBalance(d(100), d(100))

	if b.Admits(d(1)) {
		t.Error("payment against settled balance admitted")
	}
}
