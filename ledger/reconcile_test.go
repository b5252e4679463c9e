package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abacus/credit-engine/ledger"
	"github.com/abacus/credit-engine/ledger/store"
)

// =============================================================================
// PURE DERIVATIONS
// =============================================================================

func TestDeriveSaleStatus(t *testing.T) {
	assert.Equal(t, ledger.SalePending, ledger.DeriveSaleStatus(ledger.NewBalance(d(100), d(0))))
	assert.Equal(t, ledger.SalePending, ledger.DeriveSaleStatus(ledger.NewBalance(d(100), d(99))))
	assert.Equal(t, ledger.SalePaid, ledger.DeriveSaleStatus(ledger.NewBalance(d(100), d(100))))
	assert.Equal(t, ledger.SalePaid, ledger.DeriveSaleStatus(ledger.NewBalance(d(100), d(100.0005))))
}

func TestDeriveLayawayStatus_OnlyReservedIsBalanceDriven(t *testing.T) {
	settled := ledger.NewBalance(d(100), d(100))
	open := ledger.NewBalance(d(100), d(10))

	assert.Equal(t, ledger.LayawayPaid, ledger.DeriveLayawayStatus(ledger.LayawayReserved, settled))
	assert.Equal(t, ledger.LayawayReserved, ledger.DeriveLayawayStatus(ledger.LayawayReserved, open))

	// Paid never falls back to reserved even if payments shrink
	assert.Equal(t, ledger.LayawayPaid, ledger.DeriveLayawayStatus(ledger.LayawayPaid, open))

	// Terminal states are untouched by balance
	assert.Equal(t, ledger.LayawayDelivered, ledger.DeriveLayawayStatus(ledger.LayawayDelivered, open))
	assert.Equal(t, ledger.LayawayCancelled, ledger.DeriveLayawayStatus(ledger.LayawayCancelled, settled))
}

// =============================================================================
// RECONCILER
// =============================================================================

func seedSale(m *store.Memory, id string, total float64, status ledger.SaleStatus) {
	m.PutSale(ledger.Sale{
		ID:       id,
		ClientID: "client-1",
		Product:  "Mattress",
		Total:    d(total),
		Status:   status,
	})
}

func pay(t *testing.T, m *store.Memory, ref ledger.ParentRef, amount float64) {
	t.Helper()
	err := m.CreatePayment(context.Background(), ledger.Payment{
		ID:     "p-" + ref.ID(),
		Parent: ref,
		Amount: d(amount),
	})
	require.NoError(t, err)
}

func TestReconcileSale_TransitionsToPaid(t *testing.T) {
	// GIVEN: A pending sale whose payments now cover the total
	// WHEN: Reconciling
	// THEN: Status flips to paid, in memory and in the store

	mem := store.NewMemory()
	seedSale(mem, "sale-1", 100, ledger.SalePending)
	pay(t, mem, ledger.SaleRef("sale-1"), 100)

	sale, err := mem.GetSale(context.Background(), "sale-1")
	require.NoError(t, err)

	recon := ledger.NewReconciler(mem)
	b, err := recon.ReconcileSale(context.Background(), sale)
	require.NoError(t, err)

	assert.True(t, b.FullyPaid())
	assert.Equal(t, ledger.SalePaid, sale.Status)

	stored, _ := mem.GetSale(context.Background(), "sale-1")
	assert.Equal(t, ledger.SalePaid, stored.Status)
}

func TestReconcileSale_RevertsToPending(t *testing.T) {
	// A sale cached as paid whose payment set no longer covers the total
	// (e.g. a payment was deleted) reverts to pending.

	mem := store.NewMemory()
	seedSale(mem, "sale-1", 100, ledger.SalePaid)
	pay(t, mem, ledger.SaleRef("sale-1"), 40)

	sale, _ := mem.GetSale(context.Background(), "sale-1")
	recon := ledger.NewReconciler(mem)

	_, err := recon.ReconcileSale(context.Background(), sale)
	require.NoError(t, err)
	assert.Equal(t, ledger.SalePending, sale.Status)
}

func TestReconcileSale_Idempotent(t *testing.T) {
	// Re-running reconciliation with an unchanged payment set issues no
	// further status writes.

	mem := store.NewMemory()
	seedSale(mem, "sale-1", 100, ledger.SalePending)
	pay(t, mem, ledger.SaleRef("sale-1"), 100)

	sale, _ := mem.GetSale(context.Background(), "sale-1")
	recon := ledger.NewReconciler(mem)

	_, err := recon.ReconcileSale(context.Background(), sale)
	require.NoError(t, err)
	writes := mem.StatusWrites()
	assert.Equal(t, 1, writes)

	for i := 0; i < 3; i++ {
		_, err = recon.ReconcileSale(context.Background(), sale)
		require.NoError(t, err)
	}
	assert.Equal(t, writes, mem.StatusWrites(), "repeated reconciliation issued extra writes")
}

func TestReconcileLayaway_ReservedToPaid(t *testing.T) {
	mem := store.NewMemory()
	seedLayaway(mem, "lay-1", ledger.LayawayReserved)
	pay(t, mem, ledger.LayawayRef("lay-1"), 250)

	l, _ := mem.GetLayaway(context.Background(), "lay-1")
	recon := ledger.NewReconciler(mem)

	b, err := recon.ReconcileLayaway(context.Background(), l)
	require.NoError(t, err)
	assert.True(t, b.FullyPaid())
	assert.Equal(t, ledger.LayawayPaid, l.Status)
}

func TestReconcileLayaway_DeliveredUntouched(t *testing.T) {
	mem := store.NewMemory()
	seedLayaway(mem, "lay-1", ledger.LayawayDelivered)
	pay(t, mem, ledger.LayawayRef("lay-1"), 250)

	l, _ := mem.GetLayaway(context.Background(), "lay-1")
	recon := ledger.NewReconciler(mem)

	_, err := recon.ReconcileLayaway(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, ledger.LayawayDelivered, l.Status)
	assert.Equal(t, 0, mem.StatusWrites())
}

func TestReconcileSale_WriteFailureSurfaces(t *testing.T) {
	mem := store.NewMemory()
	seedSale(mem, "sale-1", 100, ledger.SalePending)
	pay(t, mem, ledger.SaleRef("sale-1"), 100)
	mem.FailStatusWrites = true

	sale, _ := mem.GetSale(context.Background(), "sale-1")
	recon := ledger.NewReconciler(mem)

	_, err := recon.ReconcileSale(context.Background(), sale)
	assert.Error(t, err)
	// In-memory status stays what the store reports until a write lands
	assert.Equal(t, ledger.SalePending, sale.Status)
}
