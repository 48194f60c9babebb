// Package notify delivers best-effort invoice notifications after a
// successful payment. Failures are the caller's to log, never to propagate.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type Line struct {
	Title    string `json:"title"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}

type Invoice struct {
	PaymentID string `json:"payment_id"`
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	Lines     []Line `json:"lines"`
}

type Dispatcher interface {
	SendInvoice(ctx context.Context, inv Invoice) error
}

// Webhook POSTs the invoice to an external notification service that renders
// the document and emails the customer.
type Webhook struct {
	HTTP *http.Client
	URL  string
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		HTTP: &http.Client{Timeout: 10 * time.Second},
		URL:  url,
	}
}

func (w *Webhook) SendInvoice(ctx context.Context, inv Invoice) error {
	body, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := w.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("invoice webhook: %s", res.Status)
	}
	return nil
}

// Log is the dispatcher used when no webhook is configured.
type Log struct {
	L *zap.Logger
}

func NewLog(l *zap.Logger) *Log { return &Log{L: l} }

func (d *Log) SendInvoice(_ context.Context, inv Invoice) error {
	d.L.Info("invoice",
		zap.String("payment_id", inv.PaymentID),
		zap.String("user_id", inv.UserID),
		zap.String("amount", inv.Amount),
		zap.Int("lines", len(inv.Lines)),
	)
	return nil
}
