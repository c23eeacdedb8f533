package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wenwu/saas-platform/lease-service/internal/models"
)

const leaseColumns = `
	id, customer_id, COALESCE(order_id, ''), instance_id, hostname, region, size_slug,
	monthly_price_cents, currency, start_date, end_date, status, cancelled_at,
	created_at, updated_at`

type LeaseRepository struct {
	pool *pgxpool.Pool
}

func NewLeaseRepository(pool *pgxpool.Pool) *LeaseRepository {
	return &LeaseRepository{pool: pool}
}

// Create creates a new lease
func (r *LeaseRepository) Create(ctx context.Context, l *models.Lease) error {
	query := `
		INSERT INTO leases (
			id, customer_id, order_id, instance_id, hostname, region, size_slug,
			monthly_price_cents, currency, start_date, end_date, status, created_at, updated_at
		) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		l.ID, l.CustomerID, l.OrderID, l.InstanceID, l.Hostname, l.Region, l.SizeSlug,
		l.MonthlyPriceCents, l.Currency, l.StartDate, l.EndDate, l.Status, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert lease: %w", ErrConflict)
		}
		return fmt.Errorf("insert lease: %w", err)
	}
	return nil
}

// GetByID retrieves a lease by ID
func (r *LeaseRepository) GetByID(ctx context.Context, id string) (*models.Lease, error) {
	query := `SELECT ` + leaseColumns + ` FROM leases WHERE id = $1`
	return r.scanLease(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

// GetByOrderID retrieves the lease created for an order
func (r *LeaseRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Lease, error) {
	query := `SELECT ` + leaseColumns + ` FROM leases WHERE order_id = $1`
	return r.scanLease(conn(ctx, r.pool).QueryRow(ctx, query, orderID))
}

// ListByCustomer retrieves a customer's leases, newest first
func (r *LeaseRepository) ListByCustomer(ctx context.Context, customerID string) ([]*models.Lease, error) {
	query := `SELECT ` + leaseColumns + ` FROM leases WHERE customer_id = $1 ORDER BY created_at DESC`

	rows, err := conn(ctx, r.pool).Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("query leases: %w", err)
	}
	defer rows.Close()

	var leases []*models.Lease
	for rows.Next() {
		l, err := r.scanLease(rows)
		if err != nil {
			return nil, err
		}
		leases = append(leases, l)
	}
	return leases, rows.Err()
}

func (r *LeaseRepository) Cancel(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE leases
		SET status = 'cancelled', cancelled_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'active'
	`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("cancel lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrStaleStatus
	}
	return nil
}

func (r *LeaseRepository) ExpireEnded(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		UPDATE leases
		SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND end_date < $1
		RETURNING id
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("expire leases: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect expired leases: %w", err)
	}
	return ids, nil
}

func (r *LeaseRepository) scanLease(row pgx.Row) (*models.Lease, error) {
	l := &models.Lease{}
	err := row.Scan(
		&l.ID, &l.CustomerID, &l.OrderID, &l.InstanceID, &l.Hostname, &l.Region, &l.SizeSlug,
		&l.MonthlyPriceCents, &l.Currency, &l.StartDate, &l.EndDate, &l.Status, &l.CancelledAt,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan lease: %w", err)
	}
	return l, nil
}
