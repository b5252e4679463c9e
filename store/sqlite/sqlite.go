/*
Package sqlite provides the SQLite-backed implementation of persistence for
the credit engine.

PURPOSE:
  Implements the full storage surface: CRUD for clients, sales, layaways and
  payments, plus the aggregate payment-sum queries the reconciliation engine
  depends on. Satisfies ledger.Store.

KEY TABLES:
  clients:   Credit customers; unique-or-null external reference
  sales:     One-time credit purchases, cached status column
  layaways:  Reserved products with lifecycle status and delivery date
  payments:  Installments referencing exactly one sale or layaway

CASCADE OWNERSHIP:
  client -> {sales, layaways} -> payments, enforced with ON DELETE CASCADE
  (the DSN enables foreign keys). The payments table also carries a CHECK
  constraint mirroring the exclusive parent-reference invariant that
  admission control enforces first.

MONEY ENCODING:
  Amounts are decimal values stored as TEXT and re-parsed with
  shopspring/decimal, so the per-parent sums used by admission control are
  exact. The grouped sums that back list reads aggregate in SQL through
  REAL; the engine's 0.001 epsilon absorbs that round trip.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's single-writer
  model.

WAL MODE:
  Opened with WAL so readers don't block during writes.

USAGE:
  store, err := sqlite.New("./data/credit.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface the engine consumes
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/abacus/credit-engine/ledger"
)

const dateLayout = "2006-01-02"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		external_ref TEXT,
		phone TEXT,
		email TEXT,
		created_at TEXT NOT NULL
	);

	-- Unique-or-null: two clients may both lack an external reference,
	-- but a set reference may appear only once.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_clients_external_ref
		ON clients(external_ref) WHERE external_ref IS NOT NULL AND external_ref != '';

	CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		product TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		sale_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sales_client ON sales(client_id);

	CREATE TABLE IF NOT EXISTS layaways (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		product TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'reserved',
		reserved_date TEXT NOT NULL,
		delivery_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_layaways_client ON layaways(client_id);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		sale_id TEXT REFERENCES sales(id) ON DELETE CASCADE,
		layaway_id TEXT REFERENCES layaways(id) ON DELETE CASCADE,
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		comment TEXT,
		created_at TEXT NOT NULL,
		-- Exclusive parent reference: exactly one of the two must be set.
		CHECK ((sale_id IS NULL) <> (layaway_id IS NULL))
	);

	CREATE INDEX IF NOT EXISTS idx_payments_sale
		ON payments(sale_id) WHERE sale_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_payments_layaway
		ON payments(layaway_id) WHERE layaway_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CLIENT STORE
// =============================================================================

// CreateClient inserts a client. A duplicate external reference surfaces as
// ledger.ConflictError.
func (s *Store) CreateClient(ctx context.Context, c ledger.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO clients (id, name, external_ref, phone, email, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, nullString(c.ExternalRef), nullString(c.Phone), nullString(c.Email),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.ConflictError{Field: "external_ref", Value: c.ExternalRef}
		}
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by ID, (nil, nil) when absent.
func (s *Store) GetClient(ctx context.Context, id string) (*ledger.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c ledger.Client
	var externalRef, phone, email sql.NullString
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, external_ref, phone, email, created_at FROM clients WHERE id = ?",
		id,
	).Scan(&c.ID, &c.Name, &externalRef, &phone, &email, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.ExternalRef = externalRef.String
	c.Phone = phone.String
	c.Email = email.String
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

// ListClients returns all clients ordered by name.
func (s *Store) ListClients(ctx context.Context) ([]ledger.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, external_ref, phone, email, created_at FROM clients ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []ledger.Client
	for rows.Next() {
		var c ledger.Client
		var externalRef, phone, email sql.NullString
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &externalRef, &phone, &email, &createdAt); err != nil {
			return nil, err
		}
		c.ExternalRef = externalRef.String
		c.Phone = phone.String
		c.Email = email.String
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// UpdateClientContact rewrites a client's phone and email.
func (s *Store) UpdateClientContact(ctx context.Context, id, phone, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE clients SET phone = ?, email = ? WHERE id = ?",
		nullString(phone), nullString(email), id,
	)
	if err != nil {
		return err
	}
	return notFoundOnZeroRows(res, "client", id)
}

// DeleteClient removes a client; its sales, layaways and their payments
// cascade.
func (s *Store) DeleteClient(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM clients WHERE id = ?", id)
	if err != nil {
		return err
	}
	return notFoundOnZeroRows(res, "client", id)
}

// =============================================================================
// SALE STORE
// =============================================================================

// CreateSale inserts a sale.
func (s *Store) CreateSale(ctx context.Context, sale ledger.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sales (id, client_id, product, total_amount, status, sale_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		sale.ID, sale.ClientID, sale.Product,
		sale.Total.String(), string(sale.Status),
		sale.SaleDate.Format(dateLayout),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}
	return nil
}

// GetSale retrieves a sale by ID, (nil, nil) when absent.
func (s *Store) GetSale(ctx context.Context, id string) (*ledger.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales, err := s.querySales(ctx,
		"SELECT id, client_id, product, total_amount, status, sale_date, created_at FROM sales WHERE id = ?",
		id,
	)
	if err != nil || len(sales) == 0 {
		return nil, err
	}
	return &sales[0], nil
}

// ListSales returns all sales, newest sale date first.
func (s *Store) ListSales(ctx context.Context) ([]ledger.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySales(ctx,
		"SELECT id, client_id, product, total_amount, status, sale_date, created_at FROM sales ORDER BY sale_date DESC, created_at DESC",
	)
}

// ListSalesByClient returns a client's sales.
func (s *Store) ListSalesByClient(ctx context.Context, clientID string) ([]ledger.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySales(ctx,
		"SELECT id, client_id, product, total_amount, status, sale_date, created_at FROM sales WHERE client_id = ? ORDER BY sale_date DESC, created_at DESC",
		clientID,
	)
}

func (s *Store) querySales(ctx context.Context, query string, args ...any) ([]ledger.Sale, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var sales []ledger.Sale
	for rows.Next() {
		var sale ledger.Sale
		var total, status, saleDate, createdAt string
		if err := rows.Scan(&sale.ID, &sale.ClientID, &sale.Product, &total, &status, &saleDate, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sale.Total = mustParseDecimal(total)
		sale.Status = ledger.SaleStatus(status)
		sale.SaleDate, _ = time.Parse(dateLayout, saleDate)
		sale.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

// UpdateSaleStatus atomically rewrites the cached status column.
func (s *Store) UpdateSaleStatus(ctx context.Context, id string, status ledger.SaleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE sales SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return err
	}
	return notFoundOnZeroRows(res, "sale", id)
}

// UpdateSaleDate rewrites the sale date. No other field is touched.
func (s *Store) UpdateSaleDate(ctx context.Context, id string, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE sales SET sale_date = ? WHERE id = ?", date.Format(dateLayout), id)
	if err != nil {
		return err
	}
	return notFoundOnZeroRows(res, "sale", id)
}

// DeleteSale removes a sale; its payments cascade.
func (s *Store) DeleteSale(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM sales WHERE id = ?", id)
	if err != nil {
		return err
	}
	return notFoundOnZeroRows(res, "sale", id)
}

// =============================================================================
// LAYAWAY STORE
// =============================================================================

// CreateLayaway inserts a layaway.
func (s *Store) CreateLayaway(ctx context.Context, l ledger.Layaway) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO layaways (id, client_id, product, total_amount, status, reserved_date, delivery_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		l.ID, l.ClientID, l.Product,
		l.Total.String(), string(l.Status),
		l.ReservedDate.Format(dateLayout),
		nullDate(l.DeliveredAt),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create layaway: %w", err)
	}
	return nil
}

// GetLayaway retrieves a layaway by ID, (nil, nil) when absent.
func (s *Store) GetLayaway(ctx context.Context, id string) (*ledger.Layaway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layaways, err := s.queryLayaways(ctx,
		"SELECT id, client_id, product, total_amount, status, reserved_date, delivery_date, created_at FROM layaways WHERE id = ?",
		id,
	)
	if err != nil || len(layaways) == 0 {
		return nil, err
	}
	return &layaways[0], nil
}

// ListLayaways returns all layaways, newest reservation first.
func (s *Store) ListLayaways(ctx context.Context) ([]ledger.Layaway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryLayaways(ctx,
		"SELECT id, client_id, product, total_amount, status, reserved_date, delivery_date, created_at FROM layaways ORDER BY reserved_date DESC, created_at DESC",
	)
}

// ListLayawaysByClient returns a client's layaways.
func (s *Store) ListLayawaysByClient(ctx context.Context, clientID string) ([]ledger.Layaway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryLayaways(ctx,
		"SELECT id, client_id, product, total_amount, status, reserved_date, delivery_date, created_at FROM layaways WHERE client_id = ? ORDER BY reserved_date DESC, created_at DESC",
		clientID,
	)
}

func (s *Store) queryLayaways(ctx context.Context, query string, args ...any) ([]ledger.Layaway, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query layaways: %w", err)
	}
	defer rows.Close()

	var layaways []ledger.Layaway
	for rows.Next() {
		var l ledger.Layaway
		var total, status, reservedDate, createdAt string
		var deliveryDate sql.NullString
		if err := rows.Scan(&l.ID, &l.ClientID, &l.Product, &total, &status, &reservedDate, &deliveryDate, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan layaway: %w", err)
		}
		l.Total = mustParseDecimal(total)
		l.Status = ledger.LayawayStatus(status)
		l.ReservedDate, _ = time.Parse(dateLayout, reservedDate)
		l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if deliveryDate.Valid {
			t, _ := time.Parse(dateLayout, deliveryDate.String)
			l.DeliveredAt = &t
		}
		layaways = append(layaways, l)
	}
	return layaways, rows.Err()
}

// UpdateLayawayStatus atomically rewrites the status and delivery date.
func (s *Store) UpdateLayawayStatus(ctx context.Context, id string, status ledger.LayawayStatus, deliveredAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE layaways SET status = ?, delivery_date = ? WHERE id = ?",
		string(status), nullDate(deliveredAt), id)
	if err != nil {
		return err
	}
	return notFoundOnZeroRows(res, "layaway", id)
}

// UpdateLayawayDate rewrites the reservation date.
func (s *Store) UpdateLayawayDate(ctx context.Context, id string, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE layaways SET reserved_date = ? WHERE id = ?", date.Format(dateLayout), id)
	if err != nil {
		return err
	}
	return notFoundOnZeroRows(res, "layaway", id)
}

// DeleteLayaway removes a layaway; its payments cascade.
func (s *Store) DeleteLayaway(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM layaways WHERE id = ?", id)
	if err != nil {
		return err
	}
	return notFoundOnZeroRows(res, "layaway", id)
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

// CreatePayment inserts a payment row. Admission control has already
// validated the parent reference; the CHECK constraint is the backstop.
func (s *Store) CreatePayment(ctx context.Context, p ledger.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payments (id, sale_id, layaway_id, amount, paid_at, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		nullString(p.Parent.SaleID),
		nullString(p.Parent.LayawayID),
		p.Amount.String(),
		p.PaidAt.Format(dateLayout),
		nullString(p.Comment),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by ID, (nil, nil) when absent.
func (s *Store) GetPayment(ctx context.Context, id string) (*ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments, err := s.queryPayments(ctx,
		"SELECT id, sale_id, layaway_id, amount, paid_at, comment, created_at FROM payments WHERE id = ?",
		id,
	)
	if err != nil || len(payments) == 0 {
		return nil, err
	}
	return &payments[0], nil
}

// PaymentsByParent returns a parent's payments in payment-date order.
func (s *Store) PaymentsByParent(ctx context.Context, ref ledger.ParentRef) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf(
		"SELECT id, sale_id, layaway_id, amount, paid_at, comment, created_at FROM payments WHERE %s = ? ORDER BY paid_at ASC, created_at ASC",
		parentColumn(ref),
	)
	return s.queryPayments(ctx, query, ref.ID())
}

func (s *Store) queryPayments(ctx context.Context, query string, args ...any) ([]ledger.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []ledger.Payment
	for rows.Next() {
		var p ledger.Payment
		var saleID, layawayID, comment sql.NullString
		var amount, paidAt, createdAt string
		if err := rows.Scan(&p.ID, &saleID, &layawayID, &amount, &paidAt, &comment, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Parent = ledger.ParentRef{SaleID: saleID.String, LayawayID: layawayID.String}
		p.Amount = mustParseDecimal(amount)
		p.Comment = comment.String
		p.PaidAt, _ = time.Parse(dateLayout, paidAt)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// DeletePayment removes a payment. The caller re-reconciles the parent.
func (s *Store) DeletePayment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id)
	if err != nil {
		return err
	}
	return notFoundOnZeroRows(res, "payment", id)
}

// =============================================================================
// AGGREGATES - The reconciliation hot path
// =============================================================================

// PaidTotal sums one parent's payment amounts exactly, in decimal. This is
// the admission-control path, so no floating point is involved.
func (s *Store) PaidTotal(ctx context.Context, ref ledger.ParentRef) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT amount FROM payments WHERE %s = ?", parentColumn(ref)),
		ref.ID(),
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payments: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(mustParseDecimal(amount))
	}
	return total, rows.Err()
}

// PaidTotals returns paid sums for ALL parents of a kind in one grouped
// query, for list reads. Aggregation goes through REAL; the engine epsilon
// absorbs the drift.
func (s *Store) PaidTotals(ctx context.Context, kind ledger.ParentKind) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	column := "sale_id"
	if kind == ledger.ParentLayaway {
		column = "layaway_id"
	}

	query := fmt.Sprintf(
		"SELECT %s, SUM(CAST(amount AS REAL)) FROM payments WHERE %s IS NOT NULL GROUP BY %s",
		column, column, column,
	)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to sum payments by parent: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var parentID string
		var sum float64
		if err := rows.Scan(&parentID, &sum); err != nil {
			return nil, err
		}
		totals[parentID] = decimal.NewFromFloat(sum)
	}
	return totals, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"payments", "sales", "layaways", "clients"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func parentColumn(ref ledger.ParentRef) string {
	if ref.Kind() == ledger.ParentSale {
		return "sale_id"
	}
	return "layaway_id"
}

func notFoundOnZeroRows(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func mustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
