package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shoplite/commerce-api/internal/cart"
	"github.com/shoplite/commerce-api/internal/notify"
)

func newTestService(t *testing.T, carts *memCarts, gw *mockGateway, disp *recordingDispatcher) (*Service, *memPayments) {
	t.Helper()
	payments := newMemPayments(carts)
	var nd notify.Dispatcher
	if disp != nil {
		nd = disp
	}
	svc := NewService(cart.NewAggregator(carts), payments, gw, nd, zap.NewNop(), Metrics{})
	return svc, payments
}

func mugCart(userID string) *memCarts {
	return &memCarts{items: []cart.Item{
		{ID: "c1", UserID: userID, Title: "Mug", Price: "500", Quantity: 1},
	}}
}

func TestStartCheckout_HappyPath(t *testing.T) {
	gw := &mockGateway{orderRef: "gw_order_1", link: "https://pay.example/abc"}
	svc, payments := newTestService(t, mugCart("u1"), gw, nil)

	sess, err := svc.StartCheckout(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/abc", sess.PaymentLink)
	assert.Equal(t, "500", sess.TotalAmount)
	assert.Equal(t, ConditionCreated, sess.Payment.Condition)
	assert.Equal(t, "gw_order_1", sess.Payment.GatewayOrderRef)
	assert.True(t, gw.gotAmount.Equal(decimal.NewFromInt(500)))

	stored, err := payments.GetByID(context.Background(), sess.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, ConditionCreated, stored.Condition)
}

func TestStartCheckout_EmptyCart(t *testing.T) {
	gw := &mockGateway{orderRef: "gw_order_1", link: "https://pay.example/abc"}
	svc, payments := newTestService(t, &memCarts{}, gw, nil)

	_, err := svc.StartCheckout(context.Background(), "u1")

	assert.ErrorIs(t, err, cart.ErrEmptyCart)
	rows, _ := payments.ListByUser(context.Background(), "u1")
	assert.Empty(t, rows, "no payment row may exist after a rejected checkout")
}

func TestStartCheckout_GatewayFailure(t *testing.T) {
	gw := &mockGateway{orderErr: ErrGateway}
	svc, payments := newTestService(t, mugCart("u1"), gw, nil)

	_, err := svc.StartCheckout(context.Background(), "u1")

	assert.ErrorIs(t, err, ErrGateway)
	rows, _ := payments.ListByUser(context.Background(), "u1")
	assert.Empty(t, rows)
}

// Scenario A: confirm(paid) transitions the payment, materializes one order
// per cart line and clears the cart.
func TestConfirm_PaidMaterializesOrders(t *testing.T) {
	carts := mugCart("u1")
	gw := &mockGateway{orderRef: "gw_order_1", link: "l"}
	disp := newRecordingDispatcher()
	svc, payments := newTestService(t, carts, gw, disp)

	sess, err := svc.StartCheckout(context.Background(), "u1")
	require.NoError(t, err)

	res, err := svc.Confirm(context.Background(), "pay_1", "gw_order_1", "paid")

	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, ConditionPaid, res.Payment.Condition)
	require.NotNil(t, res.Payment.GatewayPaymentID)
	assert.Equal(t, "pay_1", *res.Payment.GatewayPaymentID)
	require.Len(t, res.Orders, 1)
	assert.Equal(t, "500", res.Orders[0].Price)
	assert.Equal(t, sess.Payment.ID, res.Orders[0].PaymentID)

	left, _ := carts.ListByUser(context.Background(), "u1")
	assert.Empty(t, left, "cart must be cleared with the same commit")

	// Amount conservation: sum of materialized line totals equals the amount.
	sum := decimal.Zero
	for _, o := range res.Orders {
		p, err := decimal.NewFromString(o.Price)
		require.NoError(t, err)
		sum = sum.Add(p)
	}
	amount, err := decimal.NewFromString(res.Payment.Amount)
	require.NoError(t, err)
	assert.True(t, sum.Equal(amount))

	require.True(t, disp.wait(time.Second), "invoice must be dispatched after commit")
	assert.Equal(t, 1, payments.confirms)
}

// Scenario B: the second identical confirmation is a no-op returning the same
// terminal state and creating nothing.
func TestConfirm_DuplicateCallbackIsNoop(t *testing.T) {
	carts := mugCart("u1")
	gw := &mockGateway{orderRef: "gw_order_1", link: "l"}
	disp := newRecordingDispatcher()
	svc, payments := newTestService(t, carts, gw, disp)

	_, err := svc.StartCheckout(context.Background(), "u1")
	require.NoError(t, err)

	first, err := svc.Confirm(context.Background(), "pay_1", "gw_order_1", "paid")
	require.NoError(t, err)
	require.True(t, disp.wait(time.Second))

	second, err := svc.Confirm(context.Background(), "pay_1", "gw_order_1", "paid")

	require.NoError(t, err)
	assert.False(t, second.Done)
	assert.Equal(t, "payment already processed", second.Message)
	assert.Equal(t, first.Payment.Condition, second.Payment.Condition)
	assert.Empty(t, second.Orders)
	assert.Equal(t, 1, payments.confirms, "orders materialized exactly once")
	assert.Equal(t, 1, disp.count(), "no second invoice")
}

// Scenario C: a failed status reaches failed, creates no orders and leaves
// the cart untouched.
func TestConfirm_FailedLeavesCartIntact(t *testing.T) {
	carts := mugCart("u1")
	gw := &mockGateway{orderRef: "gw_order_1", link: "l"}
	disp := newRecordingDispatcher()
	svc, payments := newTestService(t, carts, gw, disp)

	_, err := svc.StartCheckout(context.Background(), "u1")
	require.NoError(t, err)

	res, err := svc.Confirm(context.Background(), "pay_1", "gw_order_1", "expired")

	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, ConditionFailed, res.Payment.Condition)
	assert.Empty(t, res.Orders)
	assert.Equal(t, 0, payments.confirms)

	left, _ := carts.ListByUser(context.Background(), "u1")
	assert.Len(t, left, 1)
	assert.Equal(t, 0, disp.count(), "no invoice for failed payments")
}

func TestConfirm_MissingParamsIsBenign(t *testing.T) {
	svc, _ := newTestService(t, &memCarts{}, &mockGateway{}, nil)

	res, err := svc.Confirm(context.Background(), "", "", "")

	require.NoError(t, err)
	assert.False(t, res.Done)
	assert.Equal(t, "nothing to verify", res.Message)
	assert.Nil(t, res.Payment)
}

func TestConfirm_UnknownOrderRef(t *testing.T) {
	svc, _ := newTestService(t, &memCarts{}, &mockGateway{}, nil)

	_, err := svc.Confirm(context.Background(), "pay_1", "no-such-ref", "paid")

	assert.ErrorIs(t, err, ErrNotFound)
}

// A transient lookup failure must surface as such, not as not-found: the
// provider keeps redelivering the callback only while we answer retryably.
func TestConfirm_TransientLookupFailureIsNotNotFound(t *testing.T) {
	carts := mugCart("u1")
	gw := &mockGateway{orderRef: "gw_order_1", link: "l"}
	svc, payments := newTestService(t, carts, gw, nil)

	_, err := svc.StartCheckout(context.Background(), "u1")
	require.NoError(t, err)

	payments.failGet = errBoom
	_, err = svc.Confirm(context.Background(), "pay_1", "gw_order_1", "paid")
	require.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrNotFound)

	payments.failGet = nil
	res, err := svc.Confirm(context.Background(), "pay_1", "gw_order_1", "paid")
	require.NoError(t, err)
	assert.True(t, res.Done)
}

// Atomicity: a persistence failure before commit leaves the cart intact, the
// payment still created, and the callback retryable.
func TestConfirm_MaterializationFailureKeepsState(t *testing.T) {
	carts := mugCart("u1")
	gw := &mockGateway{orderRef: "gw_order_1", link: "l"}
	svc, payments := newTestService(t, carts, gw, nil)

	_, err := svc.StartCheckout(context.Background(), "u1")
	require.NoError(t, err)

	payments.failTx = errBoom
	_, err = svc.Confirm(context.Background(), "pay_1", "gw_order_1", "paid")
	require.ErrorIs(t, err, errBoom)

	left, _ := carts.ListByUser(context.Background(), "u1")
	assert.Len(t, left, 1, "cart untouched after rollback")

	// Retry after the fault clears succeeds: condition is still created.
	payments.failTx = nil
	res, err := svc.Confirm(context.Background(), "pay_1", "gw_order_1", "paid")
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, 1, payments.confirms)
}

// Two concurrent confirmations for the same ref materialize exactly once.
func TestConfirm_ConcurrentCallbacks(t *testing.T) {
	carts := mugCart("u1")
	gw := &mockGateway{orderRef: "gw_order_1", link: "l"}
	disp := newRecordingDispatcher()
	svc, payments := newTestService(t, carts, gw, disp)

	_, err := svc.StartCheckout(context.Background(), "u1")
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	results := make([]*ConfirmResult, n)
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Confirm(context.Background(), "pay_1", "gw_order_1", "paid")
		}(i)
	}
	wg.Wait()

	done := 0
	for i, res := range results {
		require.NoError(t, errs[i])
		if res.Done {
			done++
		}
		assert.Equal(t, ConditionPaid, res.Payment.Condition)
	}
	assert.Equal(t, 1, done, "exactly one caller wins the transition")
	assert.Equal(t, 1, payments.confirms)
	require.True(t, disp.wait(time.Second))
	assert.Equal(t, 1, disp.count())
}

// Notification failure is contained: the confirmation still reports success.
func TestConfirm_NotificationFailureSwallowed(t *testing.T) {
	carts := mugCart("u1")
	gw := &mockGateway{orderRef: "gw_order_1", link: "l"}
	disp := newRecordingDispatcher()
	disp.err = errBoom
	svc, _ := newTestService(t, carts, gw, disp)

	_, err := svc.StartCheckout(context.Background(), "u1")
	require.NoError(t, err)

	res, err := svc.Confirm(context.Background(), "pay_1", "gw_order_1", "paid")

	require.NoError(t, err)
	assert.True(t, res.Done)
	require.True(t, disp.wait(time.Second))
}
