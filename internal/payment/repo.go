package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shoplite/commerce-api/internal/order"
)

var (
	ErrNotFound = errors.New("payment not found")
)

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	GetByOrderRef(ctx context.Context, orderRef string) (*Payment, error)
	ListByUser(ctx context.Context, userID string) ([]Payment, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// TransitionIfCreated swaps condition from created to target and records
	// the gateway payment id. Returns true only when this call performed the
	// transition; false means someone else already moved the payment to a
	// terminal state.
	TransitionIfCreated(ctx context.Context, id, gatewayPaymentID, target string) (bool, error)

	// ConfirmPaid performs the paid transition and, in the same transaction,
	// materializes one order per current cart line and clears the cart.
	// Returns the created orders and whether this call won the transition.
	ConfirmPaid(ctx context.Context, id, gatewayPaymentID, userID string) ([]order.Order, bool, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const paymentCols = `id, user_id, amount::text, gateway_order_ref, gateway_payment_id, condition, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	if err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.GatewayOrderRef, &p.GatewayPaymentID, &p.Condition, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PGRepo) Create(ctx context.Context, p *Payment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO payments (id, user_id, amount, gateway_order_ref, gateway_payment_id, condition, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
	`, p.ID, p.UserID, p.Amount, p.GatewayOrderRef, p.GatewayPaymentID, p.Condition)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PGRepo) GetByOrderRef(ctx context.Context, orderRef string) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE gateway_order_ref=$1`, orderRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string) ([]Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+paymentCols+` FROM payments WHERE user_id=$1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PGRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `DELETE FROM payments WHERE user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *PGRepo) TransitionIfCreated(ctx context.Context, id, gatewayPaymentID, target string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE payments
		SET condition = $2, gateway_payment_id = $3, updated_at = NOW()
		WHERE id = $1 AND condition = $4
	`, id, target, gatewayPaymentID, ConditionCreated)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PGRepo) ConfirmPaid(ctx context.Context, id, gatewayPaymentID, userID string) ([]order.Order, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Compare-and-swap on condition. Losing here means another confirmation
	// already materialized; nothing further may happen in that case.
	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET condition = $2, gateway_payment_id = $3, updated_at = NOW()
		WHERE id = $1 AND condition = $4
	`, id, ConditionPaid, gatewayPaymentID, ConditionCreated)
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 0 {
		return nil, false, nil
	}

	// Fresh read of the cart, not the session-start snapshot.
	rows, err := tx.Query(ctx, `
		SELECT title, price::text, quantity, image
		FROM cart_items WHERE user_id=$1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, false, err
	}
	type line struct {
		title, price, image string
		quantity            int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.title, &l.price, &l.quantity, &l.image); err != nil {
			rows.Close()
			return nil, false, err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	orders := make([]order.Order, 0, len(lines))
	for _, l := range lines {
		o := order.Order{
			ID:        uuid.NewString(),
			UserID:    userID,
			PaymentID: id,
			Title:     l.title,
			Price:     l.price,
			Quantity:  l.quantity,
			Image:     l.image,
			Condition: order.ConditionPaid,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO orders (id, user_id, payment_id, title, price, quantity, image, condition, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
		`, o.ID, o.UserID, o.PaymentID, o.Title, o.Price, o.Quantity, o.Image, o.Condition); err != nil {
			return nil, false, err
		}
		orders = append(orders, o)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1`, userID); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return orders, true, nil
}
