package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ErrGateway marks transport or auth failures against the payment provider.
// Callers do not retry; checkout must be restarted.
var ErrGateway = errors.New("payment gateway request failed")

// Gateway opens remote payment orders and user-facing payment links.
// The provider later calls back GET /payment/verify with the result.
type Gateway interface {
	CreateRemoteOrder(ctx context.Context, amount decimal.Decimal, userID string) (string, error)
	CreatePaymentLink(ctx context.Context, orderRef string, amount decimal.Decimal) (string, error)
}

// HTTPGateway is a Razorpay-style REST client. Amounts go over the wire in
// minor units (major * 100).
type HTTPGateway struct {
	HTTP        *http.Client
	BaseURL     string
	KeyID       string
	KeySecret   string
	Currency    string
	CallbackURL string
}

func NewHTTPGateway(baseURL, keyID, keySecret, currency, callbackURL string) *HTTPGateway {
	return &HTTPGateway{
		HTTP:        &http.Client{Timeout: 10 * time.Second},
		BaseURL:     baseURL,
		KeyID:       keyID,
		KeySecret:   keySecret,
		Currency:    currency,
		CallbackURL: callbackURL,
	}
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.KeyID, g.KeySecret)

	res, err := g.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s", ErrGateway, path, res.Status)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrGateway, path, err)
	}
	return nil
}

func (g *HTTPGateway) CreateRemoteOrder(ctx context.Context, amount decimal.Decimal, userID string) (string, error) {
	payload := map[string]any{
		"amount":   minorUnits(amount),
		"currency": g.Currency,
		"receipt":  fmt.Sprintf("receipt_%d", time.Now().UnixMilli()),
		"notes":    map[string]string{"user_id": userID},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := g.post(ctx, "/orders", payload, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: order response missing id", ErrGateway)
	}
	return out.ID, nil
}

func (g *HTTPGateway) CreatePaymentLink(ctx context.Context, orderRef string, amount decimal.Decimal) (string, error) {
	payload := map[string]any{
		"amount":          minorUnits(amount),
		"currency":        g.Currency,
		"accept_partial":  false,
		"reference_id":    orderRef,
		"description":     fmt.Sprintf("Payment for order %s", orderRef),
		"notify":          map[string]bool{"sms": true, "email": true},
		"reminder_enable": true,
		"callback_url":    g.CallbackURL,
		"callback_method": "get",
	}
	var out struct {
		ShortURL string `json:"short_url"`
	}
	if err := g.post(ctx, "/payment_links", payload, &out); err != nil {
		return "", err
	}
	if out.ShortURL == "" {
		return "", fmt.Errorf("%w: payment link response missing short_url", ErrGateway)
	}
	return out.ShortURL, nil
}
