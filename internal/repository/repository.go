package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wenwu/saas-platform/lease-service/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	// ErrStaleStatus is returned by conditional updates when the row is no
	// longer in the expected status.
	ErrStaleStatus = errors.New("status changed")
)

// TxManager runs fn in a transaction; stores called with the ctx passed to fn
// join that transaction.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type CustomerStore interface {
	// UpsertByEmail returns the customer owning email, creating it when absent.
	// Email must already be normalized.
	UpsertByEmail(ctx context.Context, c *models.Customer) (*models.Customer, error)
	GetByID(ctx context.Context, id string) (*models.Customer, error)
	GetByEmail(ctx context.Context, email string) (*models.Customer, error)
}

type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*models.Order, error)
	SetCheckoutSession(ctx context.Context, id, sessionID string) error
	// TransitionStatus moves the order from one status to another, or returns
	// ErrStaleStatus when it is not in from.
	TransitionStatus(ctx context.Context, id, from, to string) error
	SetInstance(ctx context.Context, id, instanceID string) error
	MarkActive(ctx context.Context, id, leaseID string) error
	MarkFailed(ctx context.Context, id, message string) error
}

type LeaseStore interface {
	Create(ctx context.Context, l *models.Lease) error
	GetByID(ctx context.Context, id string) (*models.Lease, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Lease, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*models.Lease, error)
	// Cancel moves an active lease to cancelled, or returns ErrStaleStatus.
	Cancel(ctx context.Context, id string, at time.Time) error
	// ExpireEnded marks every active lease with end_date before now as expired
	// and returns the affected ids.
	ExpireEnded(ctx context.Context, now time.Time) ([]string, error)
}

type BillingCycleStore interface {
	CreateBatch(ctx context.Context, cycles []models.BillingCycle) error
	GetByID(ctx context.Context, id string) (*models.BillingCycle, error)
	ListByLease(ctx context.Context, leaseID string) ([]*models.BillingCycle, error)
	CountByLease(ctx context.Context, leaseID string) (int, error)
	// MarkPaid moves a pending or overdue cycle to paid, or returns ErrStaleStatus.
	MarkPaid(ctx context.Context, id string, at time.Time) error
	// MarkOverdue flags pending cycles of active leases whose due date is before now.
	MarkOverdue(ctx context.Context, now time.Time) ([]*models.BillingCycle, error)
}

type RegionStore interface {
	GetAll(ctx context.Context) ([]*models.Region, error)
	GetAvailable(ctx context.Context) ([]*models.Region, error)
	GetByCode(ctx context.Context, code string) (*models.Region, error)
	Upsert(ctx context.Context, region *models.Region) error
}

type LogStore interface {
	Create(ctx context.Context, entry *models.LeaseLog) error
	GetByLeaseID(ctx context.Context, leaseID string, limit int) ([]*models.LeaseLog, error)
}

// Store bundles the persistence collaborators of the service.
type Store struct {
	Customers CustomerStore
	Orders    OrderStore
	Leases    LeaseStore
	Cycles    BillingCycleStore
	Regions   RegionStore
	Logs      LogStore
	Tx        TxManager
}
