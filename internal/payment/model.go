package payment

import "time"

// Condition lifecycle: created -> paid | failed. No other transition is legal.
const (
	ConditionCreated = "created"
	ConditionPaid    = "paid"
	ConditionFailed  = "failed"
)

type Payment struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	// Amount is the cart total at session start, NUMERIC -> string.
	Amount           string    `json:"amount"`
	GatewayOrderRef  string    `json:"gateway_order_ref"`
	GatewayPaymentID *string   `json:"gateway_payment_id,omitempty"`
	Condition        string    `json:"condition"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
