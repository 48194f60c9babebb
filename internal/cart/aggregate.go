package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrEmptyCart = errors.New("cart is empty")

// Aggregator reads a user's cart and totals it. Read-only.
type Aggregator struct {
	repo Repository
}

func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// Aggregate returns the user's cart lines newest-first and the sum of their
// line totals. Fails with ErrEmptyCart when there is nothing to total.
func (a *Aggregator) Aggregate(ctx context.Context, userID string) ([]Item, decimal.Decimal, error) {
	items, err := a.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("list cart: %w", err)
	}
	if len(items) == 0 {
		return nil, decimal.Zero, ErrEmptyCart
	}

	total := decimal.Zero
	for _, it := range items {
		p, err := decimal.NewFromString(it.Price)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("bad price %q on cart item %s: %w", it.Price, it.ID, err)
		}
		total = total.Add(p)
	}
	return items, total, nil
}
