// Package store provides an in-memory ledger.Store implementation for
// tests and demos.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abacus/credit-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	sales    map[string]ledger.Sale
	layaways map[string]ledger.Layaway
	payments map[string][]ledger.Payment // keyed by ParentRef.Key()

	statusWrites int

	// FailStatusWrites makes Update*Status return ErrWriteFailed, for
	// exercising best-effort reconciliation paths.
	FailStatusWrites bool
}

// ErrWriteFailed is returned by status updates when FailStatusWrites is set.
var ErrWriteFailed = &writeFailedError{}

type writeFailedError struct{}

func (*writeFailedError) Error() string { return "simulated status write failure" }

func NewMemory() *Memory {
	return &Memory{
		sales:    make(map[string]ledger.Sale),
		layaways: make(map[string]ledger.Layaway),
		payments: make(map[string][]ledger.Payment),
	}
}

// PutSale and PutLayaway seed fixtures.
func (m *Memory) PutSale(s ledger.Sale) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sales[s.ID] = s
}

func (m *Memory) PutLayaway(l ledger.Layaway) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layaways[l.ID] = l
}

// StatusWrites returns how many status updates have been issued. Used to
// assert reconciliation idempotence.
func (m *Memory) StatusWrites() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusWrites
}

// Payments returns the payments recorded for a parent.
func (m *Memory) Payments(ref ledger.ParentRef) []ledger.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Payment, len(m.payments[ref.Key()]))
	copy(out, m.payments[ref.Key()])
	return out
}

// =============================================================================
// ledger.Store implementation
// =============================================================================

func (m *Memory) GetSale(_ context.Context, id string) (*ledger.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sales[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) GetLayaway(_ context.Context, id string) (*ledger.Layaway, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.layaways[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (m *Memory) UpdateSaleStatus(_ context.Context, id string, status ledger.SaleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailStatusWrites {
		return ErrWriteFailed
	}
	s, ok := m.sales[id]
	if !ok {
		return &ledger.NotFoundError{Entity: "sale", ID: id}
	}
	s.Status = status
	m.sales[id] = s
	m.statusWrites++
	return nil
}

func (m *Memory) UpdateLayawayStatus(_ context.Context, id string, status ledger.LayawayStatus, deliveredAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailStatusWrites {
		return ErrWriteFailed
	}
	l, ok := m.layaways[id]
	if !ok {
		return &ledger.NotFoundError{Entity: "layaway", ID: id}
	}
	l.Status = status
	l.DeliveredAt = deliveredAt
	m.layaways[id] = l
	m.statusWrites++
	return nil
}

func (m *Memory) CreatePayment(_ context.Context, p ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	k := p.Parent.Key()
	m.payments[k] = append(m.payments[k], p)
	return nil
}

func (m *Memory) PaidTotal(_ context.Context, ref ledger.ParentRef) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, p := range m.payments[ref.Key()] {
		total = total.Add(p.Amount)
	}
	return total, nil
}
