package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abacus/credit-engine/ledger"
	"github.com/abacus/credit-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func createClient(t *testing.T, s *sqlite.Store, id, name string) {
	t.Helper()
	err := s.CreateClient(context.Background(), ledger.Client{ID: id, Name: name})
	require.NoError(t, err)
}

func createSale(t *testing.T, s *sqlite.Store, id, clientID string, total float64) {
	t.Helper()
	err := s.CreateSale(context.Background(), ledger.Sale{
		ID:       id,
		ClientID: clientID,
		Product:  "Washing machine",
		Total:    d(total),
		Status:   ledger.SalePending,
		SaleDate: time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

func createLayaway(t *testing.T, s *sqlite.Store, id, clientID string, total float64) {
	t.Helper()
	err := s.CreateLayaway(context.Background(), ledger.Layaway{
		ID:           id,
		ClientID:     clientID,
		Product:      "Dining set",
		Total:        d(total),
		Status:       ledger.LayawayReserved,
		ReservedDate: time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

func createPayment(t *testing.T, s *sqlite.Store, id string, ref ledger.ParentRef, amount float64) {
	t.Helper()
	err := s.CreatePayment(context.Background(), ledger.Payment{
		ID:     id,
		Parent: ref,
		Amount: d(amount),
		PaidAt: time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

// =============================================================================
// CLIENTS
// =============================================================================

func TestClientRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CreateClient(ctx, ledger.Client{
		ID:          "c1",
		Name:        "Maria Lopez",
		ExternalRef: "card-42",
		Phone:       "555-0101",
		Email:       "maria@example.com",
	})
	require.NoError(t, err)

	c, err := s.GetClient(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Maria Lopez", c.Name)
	assert.Equal(t, "card-42", c.ExternalRef)
	assert.Equal(t, "555-0101", c.Phone)
	assert.Equal(t, "maria@example.com", c.Email)
}

func TestGetClient_Missing(t *testing.T) {
	s := newTestStore(t)

	c, err := s.GetClient(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestClientExternalRef_DuplicateRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateClient(ctx, ledger.Client{ID: "c1", Name: "A", ExternalRef: "ref-1"}))
	err := s.CreateClient(ctx, ledger.Client{ID: "c2", Name: "B", ExternalRef: "ref-1"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrConflict)
}

func TestClientExternalRef_EmptyNotUnique(t *testing.T) {
	// Two clients without a reference must both be accepted.
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateClient(ctx, ledger.Client{ID: "c1", Name: "A"}))
	require.NoError(t, s.CreateClient(ctx, ledger.Client{ID: "c2", Name: "B"}))
}

func TestUpdateClientContact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createClient(t, s, "c1", "Maria")

	require.NoError(t, s.UpdateClientContact(ctx, "c1", "555-0202", "new@example.com"))

	c, _ := s.GetClient(ctx, "c1")
	assert.Equal(t, "555-0202", c.Phone)
	assert.Equal(t, "new@example.com", c.Email)

	err := s.UpdateClientContact(ctx, "ghost", "x", "y")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// CASCADES
// =============================================================================

func TestDeleteClient_CascadesToSalesAndPayments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createClient(t, s, "c1", "Maria")
	createSale(t, s, "s1", "c1", 100)
	createLayaway(t, s, "l1", "c1", 200)
	createPayment(t, s, "p1", ledger.SaleRef("s1"), 40)
	createPayment(t, s, "p2", ledger.LayawayRef("l1"), 50)

	require.NoError(t, s.DeleteClient(ctx, "c1"))

	sale, err := s.GetSale(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, sale)

	lay, err := s.GetLayaway(ctx, "l1")
	require.NoError(t, err)
	assert.Nil(t, lay)

	p, err := s.GetPayment(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestDeleteSale_CascadesToPayments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createClient(t, s, "c1", "Maria")
	createSale(t, s, "s1", "c1", 100)
	createPayment(t, s, "p1", ledger.SaleRef("s1"), 40)

	require.NoError(t, s.DeleteSale(ctx, "s1"))

	p, err := s.GetPayment(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

// =============================================================================
// SALES AND LAYAWAYS
// =============================================================================

func TestSaleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createClient(t, s, "c1", "Maria")
	createSale(t, s, "s1", "c1", 149.99)

	sale, err := s.GetSale(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, sale)
	assert.True(t, sale.Total.Equal(d(149.99)), "total %s", sale.Total)
	assert.Equal(t, ledger.SalePending, sale.Status)
	assert.Equal(t, "2026-01-15", sale.SaleDate.Format("2006-01-02"))
}

func TestUpdateSaleStatusAndDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createClient(t, s, "c1", "Maria")
	createSale(t, s, "s1", "c1", 100)

	require.NoError(t, s.UpdateSaleStatus(ctx, "s1", ledger.SalePaid))
	newDate := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateSaleDate(ctx, "s1", newDate))

	sale, _ := s.GetSale(ctx, "s1")
	assert.Equal(t, ledger.SalePaid, sale.Status)
	assert.Equal(t, newDate, sale.SaleDate)

	assert.ErrorIs(t, s.UpdateSaleStatus(ctx, "ghost", ledger.SalePaid), ledger.ErrNotFound)
}

func TestUpdateLayawayStatus_DeliveryDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createClient(t, s, "c1", "Maria")
	createLayaway(t, s, "l1", "c1", 200)

	delivered := time.Date(2026, time.April, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateLayawayStatus(ctx, "l1", ledger.LayawayDelivered, &delivered))

	l, _ := s.GetLayaway(ctx, "l1")
	assert.Equal(t, ledger.LayawayDelivered, l.Status)
	require.NotNil(t, l.DeliveredAt)
	assert.Equal(t, delivered, *l.DeliveredAt)
}

func TestListSalesByClient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createClient(t, s, "c1", "Maria")
	createClient(t, s, "c2", "Jorge")
	createSale(t, s, "s1", "c1", 100)
	createSale(t, s, "s2", "c2", 50)

	sales, err := s.ListSalesByClient(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "s1", sales[0].ID)
}

// =============================================================================
// PAYMENTS AND AGGREGATES
// =============================================================================

func TestPaymentsByParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createClient(t, s, "c1", "Maria")
	createSale(t, s, "s1", "c1", 100)
	createLayaway(t, s, "l1", "c1", 200)
	createPayment(t, s, "p1", ledger.SaleRef("s1"), 40)
	createPayment(t, s, "p2", ledger.SaleRef("s1"), 25)
	createPayment(t, s, "p3", ledger.LayawayRef("l1"), 60)

	salePayments, err := s.PaymentsByParent(ctx, ledger.SaleRef("s1"))
	require.NoError(t, err)
	assert.Len(t, salePayments, 2)

	layPayments, err := s.PaymentsByParent(ctx, ledger.LayawayRef("l1"))
	require.NoError(t, err)
	require.Len(t, layPayments, 1)
	assert.Equal(t, "l1", layPayments[0].Parent.LayawayID)
}

func TestPaidTotal_ExactDecimalSum(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createClient(t, s, "c1", "Maria")
	createSale(t, s, "s1", "c1", 100)
	createPayment(t, s, "p1", ledger.SaleRef("s1"), 0.1)
	createPayment(t, s, "p2", ledger.SaleRef("s1"), 0.2)

	total, err := s.PaidTotal(ctx, ledger.SaleRef("s1"))
	require.NoError(t, err)
	assert.True(t, total.Equal(d(0.3)), "expected exact 0.3, got %s", total)
}

func TestPaidTotal_NoPayments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createClient(t, s, "c1", "Maria")
	createSale(t, s, "s1", "c1", 100)

	total, err := s.PaidTotal(ctx, ledger.SaleRef("s1"))
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestPaidTotals_GroupedByParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createClient(t, s, "c1", "Maria")
	createSale(t, s, "s1", "c1", 100)
	createSale(t, s, "s2", "c1", 200)
	createLayaway(t, s, "l1", "c1", 300)
	createPayment(t, s, "p1", ledger.SaleRef("s1"), 40)
	createPayment(t, s, "p2", ledger.SaleRef("s1"), 10)
	createPayment(t, s, "p3", ledger.SaleRef("s2"), 75)
	createPayment(t, s, "p4", ledger.LayawayRef("l1"), 99)

	totals, err := s.PaidTotals(ctx, ledger.ParentSale)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.True(t, totals["s1"].Equal(d(50)), "s1 total %s", totals["s1"])
	assert.True(t, totals["s2"].Equal(d(75)), "s2 total %s", totals["s2"])

	layTotals, err := s.PaidTotals(ctx, ledger.ParentLayaway)
	require.NoError(t, err)
	require.Len(t, layTotals, 1)
	assert.True(t, layTotals["l1"].Equal(d(99)))
}

func TestDeletePayment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createClient(t, s, "c1", "Maria")
	createSale(t, s, "s1", "c1", 100)
	createPayment(t, s, "p1", ledger.SaleRef("s1"), 40)

	require.NoError(t, s.DeletePayment(ctx, "p1"))

	total, err := s.PaidTotal(ctx, ledger.SaleRef("s1"))
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	assert.ErrorIs(t, s.DeletePayment(ctx, "p1"), ledger.ErrNotFound)
}

// =============================================================================
// RESET
// =============================================================================

func TestReset_ClearsEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createClient(t, s, "c1", "Maria")
	createSale(t, s, "s1", "c1", 100)
	createPayment(t, s, "p1", ledger.SaleRef("s1"), 40)

	require.NoError(t, s.Reset(ctx))

	clients, err := s.ListClients(ctx)
	require.NoError(t, err)
	assert.Empty(t, clients)

	sales, err := s.ListSales(ctx)
	require.NoError(t, err)
	assert.Empty(t, sales)
}
