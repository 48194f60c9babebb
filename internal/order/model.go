package order

import "time"

const (
	ConditionPaid      = "paid"
	ConditionCancelled = "cancelled"
)

// Order is one materialized cart line, created only when its Payment
// transitions to paid. Price is the line total (NUMERIC -> string).
// PaymentID is empty once the originating payment row has been purged;
// the order itself survives.
type Order struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PaymentID string    `json:"payment_id"`
	Title     string    `json:"title"`
	Price     string    `json:"price"`
	Quantity  int       `json:"quantity"`
	Image     string    `json:"image,omitempty"`
	Condition string    `json:"condition"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
