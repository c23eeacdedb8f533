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

const cycleColumns = `id, lease_id, sequence, amount_cents, currency, due_date, paid_date, status, created_at`

type BillingCycleRepository struct {
	pool *pgxpool.Pool
}

func NewBillingCycleRepository(pool *pgxpool.Pool) *BillingCycleRepository {
	return &BillingCycleRepository{pool: pool}
}

// CreateBatch inserts all cycles of a lease. Callers run it in the lease's
// transaction so a partial batch never commits.
func (r *BillingCycleRepository) CreateBatch(ctx context.Context, cycles []models.BillingCycle) error {
	query := `
		INSERT INTO billing_cycles (id, lease_id, sequence, amount_cents, currency, due_date, paid_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	batch := &pgx.Batch{}
	for _, c := range cycles {
		batch.Queue(query, c.ID, c.LeaseID, c.Sequence, c.AmountCents, c.Currency, c.DueDate, c.PaidDate, c.Status, c.CreatedAt)
	}

	var br pgx.BatchResults
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		br = tx.SendBatch(ctx, batch)
	} else {
		br = r.pool.SendBatch(ctx, batch)
	}
	defer br.Close()

	for i := range cycles {
		if _, err := br.Exec(); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert billing cycle %d: %w", cycles[i].Sequence, ErrConflict)
			}
			return fmt.Errorf("insert billing cycle %d: %w", cycles[i].Sequence, err)
		}
	}
	return br.Close()
}

// GetByID retrieves a billing cycle by ID
func (r *BillingCycleRepository) GetByID(ctx context.Context, id string) (*models.BillingCycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM billing_cycles WHERE id = $1`
	return r.scanCycle(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

// ListByLease retrieves a lease's cycles in sequence order
func (r *BillingCycleRepository) ListByLease(ctx context.Context, leaseID string) ([]*models.BillingCycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM billing_cycles WHERE lease_id = $1 ORDER BY sequence`

	rows, err := conn(ctx, r.pool).Query(ctx, query, leaseID)
	if err != nil {
		return nil, fmt.Errorf("query billing cycles: %w", err)
	}
	defer rows.Close()
	return r.scanCycles(rows)
}

func (r *BillingCycleRepository) CountByLease(ctx context.Context, leaseID string) (int, error) {
	var n int
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM billing_cycles WHERE lease_id = $1`, leaseID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count billing cycles: %w", err)
	}
	return n, nil
}

func (r *BillingCycleRepository) MarkPaid(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE billing_cycles
		SET status = 'paid', paid_date = $2
		WHERE id = $1 AND status IN ('pending', 'overdue')
	`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("mark cycle paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrStaleStatus
	}
	return nil
}

func (r *BillingCycleRepository) MarkOverdue(ctx context.Context, now time.Time) ([]*models.BillingCycle, error) {
	query := `
		UPDATE billing_cycles bc
		SET status = 'overdue'
		FROM leases l
		WHERE bc.lease_id = l.id
		  AND l.status = 'active'
		  AND bc.status = 'pending'
		  AND bc.due_date < $1
		RETURNING bc.id, bc.lease_id, bc.sequence, bc.amount_cents, bc.currency,
		          bc.due_date, bc.paid_date, bc.status, bc.created_at
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("mark cycles overdue: %w", err)
	}
	defer rows.Close()
	return r.scanCycles(rows)
}

func (r *BillingCycleRepository) scanCycle(row pgx.Row) (*models.BillingCycle, error) {
	c := &models.BillingCycle{}
	err := row.Scan(&c.ID, &c.LeaseID, &c.Sequence, &c.AmountCents, &c.Currency, &c.DueDate, &c.PaidDate, &c.Status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan billing cycle: %w", err)
	}
	return c, nil
}

func (r *BillingCycleRepository) scanCycles(rows pgx.Rows) ([]*models.BillingCycle, error) {
	var cycles []*models.BillingCycle
	for rows.Next() {
		c, err := r.scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}
