package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abacus/credit-engine/ledger"
	"github.com/abacus/credit-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func paymentDate() time.Time {
	return time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC)
}

func saleRequest(saleID string, amount float64) ledger.PaymentRequest {
	return ledger.PaymentRequest{
		SaleID: saleID,
		Amount: d(amount),
		Date:   paymentDate(),
	}
}

// =============================================================================
// SHAPE VALIDATION
// =============================================================================

func TestAdmit_RejectsMissingParentRef(t *testing.T) {
	ac := ledger.NewAdmissionControl(store.NewMemory())

	_, err := ac.Admit(context.Background(), ledger.PaymentRequest{
		Amount: d(10),
		Date:   paymentDate(),
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestAdmit_RejectsBothParentRefs(t *testing.T) {
	ac := ledger.NewAdmissionControl(store.NewMemory())

	_, err := ac.Admit(context.Background(), ledger.PaymentRequest{
		SaleID:    "sale-1",
		LayawayID: "lay-1",
		Amount:    d(10),
		Date:      paymentDate(),
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestAdmit_RejectsNonPositiveAmount(t *testing.T) {
	mem := store.NewMemory()
	seedSale(mem, "sale-1", 100, ledger.SalePending)
	ac := ledger.NewAdmissionControl(mem)

	for _, amount := range []float64{0, -5} {
		_, err := ac.Admit(context.Background(), saleRequest("sale-1", amount))
		assert.ErrorIs(t, err, ledger.ErrValidation, "amount %v admitted", amount)
	}
}

func TestAdmit_RejectsMissingDate(t *testing.T) {
	mem := store.NewMemory()
	seedSale(mem, "sale-1", 100, ledger.SalePending)
	ac := ledger.NewAdmissionControl(mem)

	req := saleRequest("sale-1", 10)
	req.Date = time.Time{}
	_, err := ac.Admit(context.Background(), req)

	var fe *ledger.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "date", fe.Field)
}

func TestAdmit_MissingParentRecord(t *testing.T) {
	ac := ledger.NewAdmissionControl(store.NewMemory())

	_, err := ac.Admit(context.Background(), saleRequest("ghost", 10))
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = ac.Admit(context.Background(), ledger.PaymentRequest{
		LayawayID: "ghost",
		Amount:    d(10),
		Date:      paymentDate(),
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// BALANCE CHECK
// =============================================================================

func TestAdmit_SuccessfulPartialPayment(t *testing.T) {
	// GIVEN: A 100 sale with no payments
	// WHEN: Paying 40
	// THEN: Payment lands, balance reflects it, status stays pending

	mem := store.NewMemory()
	seedSale(mem, "sale-1", 100, ledger.SalePending)
	ac := ledger.NewAdmissionControl(mem)

	res, err := ac.Admit(context.Background(), saleRequest("sale-1", 40))
	require.NoError(t, err)

	assert.NotEmpty(t, res.Payment.ID)
	assert.True(t, res.Balance.Paid.Equal(d(40)))
	assert.True(t, res.Balance.Outstanding.Equal(d(60)))
	assert.Equal(t, string(ledger.SalePending), res.ParentStatus)
	assert.Len(t, mem.Payments(ledger.SaleRef("sale-1")), 1)
}

func TestAdmit_FinalPaymentFlipsStatus(t *testing.T) {
	mem := store.NewMemory()
	seedSale(mem, "sale-1", 100, ledger.SalePending)
	ac := ledger.NewAdmissionControl(mem)

	_, err := ac.Admit(context.Background(), saleRequest("sale-1", 60))
	require.NoError(t, err)

	res, err := ac.Admit(context.Background(), saleRequest("sale-1", 40))
	require.NoError(t, err)

	assert.Equal(t, string(ledger.SalePaid), res.ParentStatus)
	assert.True(t, res.Balance.FullyPaid())
}

func TestAdmit_LayawayFinalPayment(t *testing.T) {
	mem := store.NewMemory()
	seedLayaway(mem, "lay-1", ledger.LayawayReserved)
	ac := ledger.NewAdmissionControl(mem)

	res, err := ac.Admit(context.Background(), ledger.PaymentRequest{
		LayawayID: "lay-1",
		Amount:    d(250),
		Date:      paymentDate(),
	})
	require.NoError(t, err)
	assert.Equal(t, string(ledger.LayawayPaid), res.ParentStatus)
}

func TestAdmit_Overpayment(t *testing.T) {
	// GIVEN: A 100 sale with 70 already paid
	// WHEN: Paying 50
	// THEN: OverpaymentError carrying both figures, nothing written

	mem := store.NewMemory()
	seedSale(mem, "sale-1", 100, ledger.SalePending)
	ac := ledger.NewAdmissionControl(mem)

	_, err := ac.Admit(context.Background(), saleRequest("sale-1", 70))
	require.NoError(t, err)

	_, err = ac.Admit(context.Background(), saleRequest("sale-1", 50))
	require.Error(t, err)

	var ope *ledger.OverpaymentError
	require.ErrorAs(t, err, &ope)
	assert.True(t, ope.Requested.Equal(d(50)))
	assert.True(t, ope.Outstanding.Equal(d(30)))
	assert.ErrorIs(t, err, ledger.ErrOverpayment)

	assert.Len(t, mem.Payments(ledger.SaleRef("sale-1")), 1, "rejected payment was written")
}

func TestAdmit_OvershootWithinEpsilon(t *testing.T) {
	mem := store.NewMemory()
	seedSale(mem, "sale-1", 100, ledger.SalePending)
	ac := ledger.NewAdmissionControl(mem)

	res, err := ac.Admit(context.Background(), saleRequest("sale-1", 100.0005))
	require.NoError(t, err)
	assert.Equal(t, string(ledger.SalePaid), res.ParentStatus)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestAdmit_ConcurrentPaymentsNeverJointlyOverpay(t *testing.T) {
	// Ten goroutines each try to pay 30 against a 100 sale. At most three
	// can fit; the rest must fail the balance check rather than slip past
	// it in a race.

	mem := store.NewMemory()
	seedSale(mem, "sale-1", 100, ledger.SalePending)
	ac := ledger.NewAdmissionControl(mem)

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = ac.Admit(context.Background(), saleRequest("sale-1", 30))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ledger.ErrOverpayment)
		}
	}
	assert.Equal(t, 3, succeeded)

	total, err := mem.PaidTotal(context.Background(), ledger.SaleRef("sale-1"))
	require.NoError(t, err)
	assert.True(t, total.LessThanOrEqual(decimal.NewFromInt(100)),
		"payments sum to %s, exceeding the total owed", total)
}
