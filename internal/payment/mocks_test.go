package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shoplite/commerce-api/internal/cart"
	"github.com/shoplite/commerce-api/internal/notify"
	"github.com/shoplite/commerce-api/internal/order"
)

// memCarts implements cart.Repository in memory.
type memCarts struct {
	mu    sync.Mutex
	items []cart.Item
	err   error
}

func (m *memCarts) Create(_ context.Context, it *cart.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, *it)
	return nil
}

func (m *memCarts) ListByUser(_ context.Context, userID string) ([]cart.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []cart.Item
	for _, it := range m.items {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memCarts) GetOwned(context.Context, string, string) (*cart.Item, error) {
	return nil, cart.ErrNotFound
}
func (m *memCarts) UpdateQuantity(context.Context, string, int, string) error { return nil }
func (m *memCarts) Delete(context.Context, string) (bool, error)              { return false, nil }

func (m *memCarts) DeleteByUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []cart.Item
	var n int64
	for _, it := range m.items {
		if it.UserID == userID {
			n++
			continue
		}
		kept = append(kept, it)
	}
	m.items = kept
	return n, nil
}

// memPayments implements Repository with the same CAS semantics the SQL
// implementation has, so the concurrency behavior is observable in tests.
type memPayments struct {
	mu       sync.Mutex
	rows     map[string]*Payment
	orders   []order.Order
	carts    *memCarts
	failTx   error // injected failure for ConfirmPaid, before any state change
	failGet  error // injected transient failure for GetByOrderRef
	confirms int   // times ConfirmPaid actually materialized
}

func newMemPayments(carts *memCarts) *memPayments {
	return &memPayments{rows: map[string]*Payment{}, carts: carts}
}

func (m *memPayments) Create(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.rows[p.ID] = &cp
	return nil
}

func (m *memPayments) GetByID(_ context.Context, id string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPayments) GetByOrderRef(_ context.Context, ref string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	for _, p := range m.rows {
		if p.GatewayOrderRef == ref {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memPayments) ListByUser(_ context.Context, userID string) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Payment
	for _, p := range m.rows {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPayments) DeleteByUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, p := range m.rows {
		if p.UserID == userID {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memPayments) TransitionIfCreated(_ context.Context, id, gatewayPaymentID, target string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok || p.Condition != ConditionCreated {
		return false, nil
	}
	p.Condition = target
	p.GatewayPaymentID = &gatewayPaymentID
	return true, nil
}

func (m *memPayments) ConfirmPaid(ctx context.Context, id, gatewayPaymentID, userID string) ([]order.Order, bool, error) {
	if m.failTx != nil {
		return nil, false, m.failTx
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok || p.Condition != ConditionCreated {
		return nil, false, nil
	}
	p.Condition = ConditionPaid
	p.GatewayPaymentID = &gatewayPaymentID

	items, _ := m.carts.ListByUser(ctx, userID)
	var created []order.Order
	for _, it := range items {
		created = append(created, order.Order{
			ID:        it.ID + "-order",
			UserID:    userID,
			PaymentID: id,
			Title:     it.Title,
			Price:     it.Price,
			Quantity:  it.Quantity,
			Image:     it.Image,
			Condition: order.ConditionPaid,
		})
	}
	_, _ = m.carts.DeleteByUser(ctx, userID)
	m.orders = append(m.orders, created...)
	m.confirms++
	return created, true, nil
}

// mockGateway implements Gateway.
type mockGateway struct {
	orderRef string
	link     string
	orderErr error
	linkErr  error

	gotAmount decimal.Decimal
}

func (g *mockGateway) CreateRemoteOrder(_ context.Context, amount decimal.Decimal, _ string) (string, error) {
	g.gotAmount = amount
	if g.orderErr != nil {
		return "", g.orderErr
	}
	return g.orderRef, nil
}

func (g *mockGateway) CreatePaymentLink(_ context.Context, _ string, _ decimal.Decimal) (string, error) {
	if g.linkErr != nil {
		return "", g.linkErr
	}
	return g.link, nil
}

// recordingDispatcher captures SendInvoice calls; done is signalled per call.
type recordingDispatcher struct {
	mu       sync.Mutex
	invoices []notify.Invoice
	err      error
	done     chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{done: make(chan struct{}, 8)}
}

func (d *recordingDispatcher) SendInvoice(_ context.Context, inv notify.Invoice) error {
	d.mu.Lock()
	d.invoices = append(d.invoices, inv)
	d.mu.Unlock()
	d.done <- struct{}{}
	return d.err
}

func (d *recordingDispatcher) wait(timeout time.Duration) bool {
	select {
	case <-d.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.invoices)
}

var errBoom = errors.New("boom")
