package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wenwu/saas-platform/lease-service/internal/models"
)

const orderColumns = `
	o.id, o.customer_id, c.email, o.status, o.hostname, o.region, o.size_slug,
	o.billing_cycle_months, o.config, o.monthly_price_cents, o.amount_cents, o.currency,
	o.checkout_session_id, o.instance_id, o.lease_id, o.error_message,
	o.created_at, o.updated_at`

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create creates a new order
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO vps_orders (
			id, customer_id, status, hostname, region, size_slug,
			billing_cycle_months, config, monthly_price_cents, amount_cents, currency,
			checkout_session_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		o.ID, o.CustomerID, o.Status, o.Hostname, o.Region, o.SizeSlug,
		o.BillingCycleMonths, o.Config, o.MonthlyPriceCents, o.AmountCents, o.Currency,
		o.CheckoutSessionID, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert order: %w", ErrConflict)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID retrieves an order by ID
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM vps_orders o JOIN customers c ON c.id = o.customer_id
		WHERE o.id = $1`
	return r.scanOrder(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

// GetByCheckoutSessionID retrieves the order paid through a checkout session
func (r *OrderRepository) GetByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM vps_orders o JOIN customers c ON c.id = o.customer_id
		WHERE o.checkout_session_id = $1`
	return r.scanOrder(conn(ctx, r.pool).QueryRow(ctx, query, sessionID))
}

// ListByCustomer retrieves a customer's orders, newest first
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM vps_orders o JOIN customers c ON c.id = o.customer_id
		WHERE o.customer_id = $1
		ORDER BY o.created_at DESC`

	rows, err := conn(ctx, r.pool).Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *OrderRepository) SetCheckoutSession(ctx context.Context, id, sessionID string) error {
	query := `UPDATE vps_orders SET checkout_session_id = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "set checkout session", query, id, sessionID)
}

func (r *OrderRepository) TransitionStatus(ctx context.Context, id, from, to string) error {
	query := `UPDATE vps_orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("transition order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrStaleStatus
	}
	return nil
}

func (r *OrderRepository) SetInstance(ctx context.Context, id, instanceID string) error {
	query := `UPDATE vps_orders SET instance_id = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "set order instance", query, id, instanceID)
}

func (r *OrderRepository) MarkActive(ctx context.Context, id, leaseID string) error {
	query := `
		UPDATE vps_orders
		SET status = 'active', lease_id = $2, error_message = NULL, updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, "mark order active", query, id, leaseID)
}

func (r *OrderRepository) MarkFailed(ctx context.Context, id, message string) error {
	query := `UPDATE vps_orders SET status = 'failed', error_message = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "mark order failed", query, id, message)
}

func (r *OrderRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *OrderRepository) scanOrder(row pgx.Row) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.CustomerEmail, &o.Status, &o.Hostname, &o.Region, &o.SizeSlug,
		&o.BillingCycleMonths, &o.Config, &o.MonthlyPriceCents, &o.AmountCents, &o.Currency,
		&o.CheckoutSessionID, &o.InstanceID, &o.LeaseID, &o.ErrorMessage,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}
