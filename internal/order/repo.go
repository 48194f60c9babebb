package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("order not found")
)

type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	Cancel(ctx context.Context, userID, id string) (*Order, error)
	DeleteOne(ctx context.Context, userID, id string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, COALESCE(payment_id::text, ''), title, price::text, quantity, image, condition, created_at, updated_at
		FROM orders WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.PaymentID, &o.Title, &o.Price, &o.Quantity, &o.Image, &o.Condition, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Cancel transitions an owned order paid -> cancelled. Cancelling an already
// cancelled order is a no-op returning the row unchanged; a missing or
// foreign order is ErrNotFound either way.
func (r *PGRepo) Cancel(ctx context.Context, userID, id string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var o Order
	err := r.db.QueryRow(ctx, `
		UPDATE orders
		SET condition = $3, updated_at = CASE WHEN condition = $3 THEN updated_at ELSE NOW() END
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, COALESCE(payment_id::text, ''), title, price::text, quantity, image, condition, created_at, updated_at
	`, id, userID, ConditionCancelled).Scan(
		&o.ID, &o.UserID, &o.PaymentID, &o.Title, &o.Price, &o.Quantity, &o.Image, &o.Condition, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (r *PGRepo) DeleteOne(ctx context.Context, userID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `DELETE FROM orders WHERE user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
