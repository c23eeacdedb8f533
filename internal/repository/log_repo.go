package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wenwu/saas-platform/lease-service/internal/models"
)

type LogRepository struct {
	pool *pgxpool.Pool
}

func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

// Create creates a new lease log entry
func (r *LogRepository) Create(ctx context.Context, entry *models.LeaseLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO lease_logs (id, lease_id, action, status, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		entry.ID, entry.LeaseID, entry.Action, entry.Status, entry.Message, entry.Metadata, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert lease log: %w", err)
	}
	return nil
}

// GetByLeaseID retrieves the most recent logs for a lease
func (r *LogRepository) GetByLeaseID(ctx context.Context, leaseID string, limit int) ([]*models.LeaseLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, lease_id, action, status, message, metadata, created_at
		FROM lease_logs
		WHERE lease_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, leaseID, limit)
	if err != nil {
		return nil, fmt.Errorf("query lease logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.LeaseLog
	for rows.Next() {
		entry := &models.LeaseLog{}
		err := rows.Scan(
			&entry.ID, &entry.LeaseID, &entry.Action, &entry.Status,
			&entry.Message, &entry.Metadata, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan lease log: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
