package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	d "github.com/KeyraGonzalez/tienda-checkout/internal/domain"
)

// postgres unique_violation
const uniqueViolation = "23505"

const sessionColumns = `id, user_id, status, step, payment_method, shipping_address,
	cart_snapshot, order_id, provider_order_id, idempotency_key, total_amount,
	created_at, updated_at`

func (r *Repository) CreateCheckoutSession(ctx context.Context, session *CheckoutSession) error {
	query := `INSERT INTO checkout_sessions
		(id, user_id, status, step, cart_snapshot, idempotency_key, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.Status,
		session.Step,
		session.CartSnapshot,
		session.IdempotencyKey,
		session.TotalAmount,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to create checkout session: %w", err)
	}
	return nil
}

func (r *Repository) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM checkout_sessions WHERE id = $1`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}
	return session, nil
}

func (r *Repository) GetCheckoutSessionByIdempotencyKey(ctx context.Context, key string) (*string, *d.CheckoutStatus, error) {
	query := `SELECT id, status FROM checkout_sessions WHERE idempotency_key = $1`

	var id string
	var status d.CheckoutStatus
	err := r.db.QueryRowContext(ctx, query, key).Scan(&id, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return &id, &status, nil
}

func (r *Repository) UpdateCheckoutSessionStatus(ctx context.Context, id *string, status *d.CheckoutStatus) error {
	query := `UPDATE checkout_sessions SET status = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, *id, *status)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return requireOneRow(result)
}

func (r *Repository) SetShippingAddress(ctx context.Context, id *string, address []byte, step d.CheckoutStep) error {
	query := `UPDATE checkout_sessions SET shipping_address = $2, step = $3, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, *id, address, step)
	if err != nil {
		return fmt.Errorf("failed to set shipping address: %w", err)
	}
	return requireOneRow(result)
}

func (r *Repository) SetPaymentMethod(ctx context.Context, id *string, method d.PaymentMethod) error {
	query := `UPDATE checkout_sessions SET payment_method = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, *id, string(method))
	if err != nil {
		return fmt.Errorf("failed to set payment method: %w", err)
	}
	return requireOneRow(result)
}

func (r *Repository) SetOrder(ctx context.Context, id *string, orderID *string) error {
	query := `UPDATE checkout_sessions SET order_id = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, *id, *orderID)
	if err != nil {
		return fmt.Errorf("failed to set order id: %w", err)
	}
	return requireOneRow(result)
}

func (r *Repository) SetProviderOrder(ctx context.Context, id *string, providerOrderID *string) error {
	query := `UPDATE checkout_sessions SET provider_order_id = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, *id, *providerOrderID)
	if err != nil {
		return fmt.Errorf("failed to set provider order id: %w", err)
	}
	return requireOneRow(result)
}

// CompleteCheckoutSession flips the session to its final status and records
// the outbox event in the same transaction, so a completed payment can never
// be lost between the two writes.
func (r *Repository) CompleteCheckoutSession(ctx context.Context, id *string, payload []byte, status *d.CheckoutStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	updateQuery := `UPDATE checkout_sessions SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := tx.ExecContext(ctx, updateQuery, *id, *status)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	if err := requireOneRow(result); err != nil {
		return err
	}

	outboxQuery := `INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, NOW())`
	if _, err := tx.ExecContext(ctx, outboxQuery, *id, "checkout.completed", payload); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit completion: %w", err)
	}
	return nil
}

// GetStuckSessions finds attempts where the provider captured the payment but
// the completion write never landed: still PROCESSING, provider order
// recorded, untouched for over a minute.
func (r *Repository) GetStuckSessions(ctx context.Context) ([]*CheckoutSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM checkout_sessions
		WHERE status = $1
		  AND provider_order_id IS NOT NULL
		  AND updated_at < NOW() - INTERVAL '1 minute'`

	rows, err := r.db.QueryContext(ctx, query, d.CheckoutStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*CheckoutSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stuck session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*CheckoutSession, error) {
	var s CheckoutSession
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Status,
		&s.Step,
		&s.PaymentMethod,
		&s.ShippingAddress,
		&s.CartSnapshot,
		&s.OrderID,
		&s.ProviderOrderID,
		&s.IdempotencyKey,
		&s.TotalAmount,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func requireOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected != 1 {
		return ErrSessionNotFound
	}
	return nil
}
