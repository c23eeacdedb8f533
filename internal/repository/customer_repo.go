package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wenwu/saas-platform/lease-service/internal/models"
)

type CustomerRepository struct {
	pool *pgxpool.Pool
}

func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// UpsertByEmail inserts the customer or returns the existing row for the email.
// A blank stored name is filled from the new one; anything else is kept.
func (r *CustomerRepository) UpsertByEmail(ctx context.Context, c *models.Customer) (*models.Customer, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	query := `
		INSERT INTO customers (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET
			name = CASE WHEN customers.name = '' THEN EXCLUDED.name ELSE customers.name END
		RETURNING id, name, email, created_at
	`

	out := &models.Customer{}
	err := conn(ctx, r.pool).QueryRow(ctx, query, c.ID, c.Name, c.Email).Scan(
		&out.ID, &out.Name, &out.Email, &out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}
	return out, nil
}

// GetByID retrieves a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*models.Customer, error) {
	query := `SELECT id, name, email, created_at FROM customers WHERE id = $1`
	return r.scanCustomer(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

// GetByEmail retrieves a customer by normalized email
func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	query := `SELECT id, name, email, created_at FROM customers WHERE email = $1`
	return r.scanCustomer(conn(ctx, r.pool).QueryRow(ctx, query, email))
}

func (r *CustomerRepository) scanCustomer(row pgx.Row) (*models.Customer, error) {
	c := &models.Customer{}
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan customer: %w", err)
	}
	return c, nil
}
