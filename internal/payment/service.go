package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/shoplite/commerce-api/internal/cart"
	"github.com/shoplite/commerce-api/internal/notify"
	"github.com/shoplite/commerce-api/internal/order"
)

// Metrics are optional; nil members are skipped.
type Metrics struct {
	CheckoutsStarted prometheus.Counter
	// Confirmations is labeled by outcome: paid, failed, duplicate, error.
	Confirmations *prometheus.CounterVec
}

func (m Metrics) confirmed(outcome string) {
	if m.Confirmations != nil {
		m.Confirmations.WithLabelValues(outcome).Inc()
	}
}

// Service runs the checkout and confirmation pipeline.
type Service struct {
	carts    *cart.Aggregator
	payments Repository
	gateway  Gateway
	notifier notify.Dispatcher
	log      *zap.Logger
	metrics  Metrics
}

func NewService(carts *cart.Aggregator, payments Repository, gateway Gateway, notifier notify.Dispatcher, log *zap.Logger, metrics Metrics) *Service {
	return &Service{
		carts:    carts,
		payments: payments,
		gateway:  gateway,
		notifier: notifier,
		log:      log,
		metrics:  metrics,
	}
}

// CheckoutSession is what the client needs to hand the user to the gateway.
// swagger:model CheckoutSession
type CheckoutSession struct {
	PaymentLink string   `json:"payment_link"`
	TotalAmount string   `json:"total_amount"`
	Payment     *Payment `json:"payment"`
}

// StartCheckout aggregates the caller's cart, opens a remote order plus a
// payment link, and persists the local Payment in created state. The local
// row must exist before the user is redirected: the confirmation callback
// finds it by gateway order ref. Cart contents are not touched here.
func (s *Service) StartCheckout(ctx context.Context, userID string) (*CheckoutSession, error) {
	_, total, err := s.carts.Aggregate(ctx, userID)
	if err != nil {
		return nil, err
	}

	orderRef, err := s.gateway.CreateRemoteOrder(ctx, total, userID)
	if err != nil {
		return nil, fmt.Errorf("create remote order: %w", err)
	}
	link, err := s.gateway.CreatePaymentLink(ctx, orderRef, total)
	if err != nil {
		return nil, fmt.Errorf("create payment link: %w", err)
	}

	p := &Payment{
		ID:              uuid.NewString(),
		UserID:          userID,
		Amount:          total.String(),
		GatewayOrderRef: orderRef,
		Condition:       ConditionCreated,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("persist payment: %w", err)
	}

	if s.metrics.CheckoutsStarted != nil {
		s.metrics.CheckoutsStarted.Inc()
	}
	s.log.Info("checkout started",
		zap.String("user_id", userID),
		zap.String("payment_id", p.ID),
		zap.String("order_ref", orderRef),
		zap.String("amount", p.Amount),
	)
	return &CheckoutSession{PaymentLink: link, TotalAmount: total.String(), Payment: p}, nil
}

// ConfirmResult reports what a confirmation callback did. Done is true only
// when this call performed the state transition.
// swagger:model ConfirmResult
type ConfirmResult struct {
	Done    bool          `json:"done"`
	Message string        `json:"message"`
	Payment *Payment      `json:"payment,omitempty"`
	Orders  []order.Order `json:"orders,omitempty"`
}

// Confirm handles the gateway callback. It must assume duplicate, out of
// order and concurrent deliveries for the same order ref; the condition CAS
// is the only thing allowed to decide who materializes.
func (s *Service) Confirm(ctx context.Context, gatewayPaymentID, orderRef, status string) (*ConfirmResult, error) {
	// Bare hits happen on page refresh; they are not an error.
	if gatewayPaymentID == "" || orderRef == "" || status == "" {
		return &ConfirmResult{Message: "nothing to verify"}, nil
	}

	p, err := s.payments.GetByOrderRef(ctx, orderRef)
	if err != nil {
		return nil, err
	}

	// Idempotency gate: a payment already in a terminal state is reported
	// as-is, with no materialization and no notification.
	if p.Condition != ConditionCreated {
		s.metrics.confirmed("duplicate")
		return &ConfirmResult{Message: "payment already processed", Payment: p}, nil
	}

	if status != ConditionPaid {
		return s.confirmFailed(ctx, p, gatewayPaymentID)
	}

	orders, won, err := s.payments.ConfirmPaid(ctx, p.ID, gatewayPaymentID, p.UserID)
	if err != nil {
		// Nothing committed; the gateway may redeliver and retry safely.
		s.metrics.confirmed("error")
		return nil, fmt.Errorf("confirm payment %s: %w", p.ID, err)
	}
	if !won {
		return s.lostRace(ctx, p.ID)
	}

	p.Condition = ConditionPaid
	p.GatewayPaymentID = &gatewayPaymentID
	s.metrics.confirmed("paid")
	s.log.Info("payment confirmed",
		zap.String("payment_id", p.ID),
		zap.String("order_ref", orderRef),
		zap.Int("orders", len(orders)),
	)
	s.dispatchInvoice(p, orders)

	return &ConfirmResult{
		Done:    true,
		Message: "payment success, cart items moved to orders",
		Payment: p,
		Orders:  orders,
	}, nil
}

func (s *Service) confirmFailed(ctx context.Context, p *Payment, gatewayPaymentID string) (*ConfirmResult, error) {
	won, err := s.payments.TransitionIfCreated(ctx, p.ID, gatewayPaymentID, ConditionFailed)
	if err != nil {
		s.metrics.confirmed("error")
		return nil, fmt.Errorf("fail payment %s: %w", p.ID, err)
	}
	if !won {
		return s.lostRace(ctx, p.ID)
	}
	p.Condition = ConditionFailed
	p.GatewayPaymentID = &gatewayPaymentID
	s.metrics.confirmed("failed")
	s.log.Info("payment failed", zap.String("payment_id", p.ID))
	return &ConfirmResult{Done: true, Message: "payment failed", Payment: p}, nil
}

// lostRace re-reads the row a concurrent confirmation already settled.
func (s *Service) lostRace(ctx context.Context, id string) (*ConfirmResult, error) {
	cur, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.confirmed("duplicate")
	return &ConfirmResult{Message: "payment already processed", Payment: cur}, nil
}

// dispatchInvoice hands the invoice off on a detached goroutine. The
// confirmation response never waits for, or fails because of, delivery.
func (s *Service) dispatchInvoice(p *Payment, orders []order.Order) {
	if s.notifier == nil {
		return
	}
	inv := notify.Invoice{PaymentID: p.ID, UserID: p.UserID, Amount: p.Amount}
	for _, o := range orders {
		inv.Lines = append(inv.Lines, notify.Line{Title: o.Title, Price: o.Price, Quantity: o.Quantity})
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("invoice dispatch panic", zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.notifier.SendInvoice(ctx, inv); err != nil {
			s.log.Error("invoice dispatch failed",
				zap.String("payment_id", inv.PaymentID),
				zap.Error(err),
			)
		}
	}()
}
