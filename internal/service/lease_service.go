package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wenwu/saas-platform/lease-service/internal/billing"
	"github.com/wenwu/saas-platform/lease-service/internal/clock"
	"github.com/wenwu/saas-platform/lease-service/internal/metrics"
	"github.com/wenwu/saas-platform/lease-service/internal/models"
	"github.com/wenwu/saas-platform/lease-service/internal/repository"
)

// LeaseService owns the lease lifecycle and its billing cycles
type LeaseService struct {
	store    *repository.Store
	clock    clock.Clock
	metrics  *metrics.LeaseMetrics
	log      *zap.Logger
	currency string
}

func NewLeaseService(store *repository.Store, clk clock.Clock, m *metrics.LeaseMetrics, log *zap.Logger, currency string) *LeaseService {
	return &LeaseService{
		store:    store,
		clock:    clk,
		metrics:  m,
		log:      log.Named("lease"),
		currency: currency,
	}
}

// CreateLeaseInput describes a lease for a provisioned instance
type CreateLeaseInput struct {
	CustomerID        string
	OrderID           string
	InstanceID        string
	Hostname          string
	Region            string
	SizeSlug          string
	MonthlyPriceCents int64
	Months            int
}

// LeaseDetail is a lease with its billing cycles in sequence order
type LeaseDetail struct {
	Lease  *models.Lease
	Cycles []*models.BillingCycle
}

// SweepResult counts what one lifecycle sweep changed
type SweepResult struct {
	ExpiredLeases []string
	OverdueCycles []*models.BillingCycle
}

// CreateLease stores the lease and all of its billing cycles in one transaction.
// When ctx already carries a transaction the lease joins it.
func (s *LeaseService) CreateLease(ctx context.Context, in *CreateLeaseInput) (*models.Lease, []models.BillingCycle, error) {
	if in.CustomerID == "" || in.InstanceID == "" {
		return nil, nil, fmt.Errorf("customer and instance are required")
	}

	now := s.clock.Now()
	lease := &models.Lease{
		ID:                uuid.New().String(),
		CustomerID:        in.CustomerID,
		OrderID:           in.OrderID,
		InstanceID:        in.InstanceID,
		Hostname:          in.Hostname,
		Region:            in.Region,
		SizeSlug:          in.SizeSlug,
		MonthlyPriceCents: in.MonthlyPriceCents,
		Currency:          s.currency,
		StartDate:         now,
		EndDate:           billing.TermEnd(now, in.Months),
		Status:            models.LeaseStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	cycles, err := billing.GenerateCycles(lease.ID, in.MonthlyPriceCents, in.Months, now)
	if err != nil {
		return nil, nil, err
	}
	for i := range cycles {
		cycles[i].Currency = s.currency
	}

	err = s.store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Leases.Create(ctx, lease); err != nil {
			return fmt.Errorf("create lease: %w", err)
		}
		if err := s.store.Cycles.CreateBatch(ctx, cycles); err != nil {
			return fmt.Errorf("create billing cycles: %w", err)
		}
		return s.logAction(ctx, lease.ID, models.LeaseActionCreated, lease.Status,
			fmt.Sprintf("Lease created for %d months in %s", in.Months, in.Region),
			map[string]interface{}{"instance_id": in.InstanceID, "cycles": len(cycles)})
	})
	if err != nil {
		return nil, nil, err
	}

	s.metrics.LeaseTransition(models.LeaseStatusActive, 1)
	s.log.Info("lease created",
		zap.String("lease_id", lease.ID),
		zap.String("customer_id", lease.CustomerID),
		zap.Int("months", in.Months),
		zap.Int64("monthly_price_cents", lease.MonthlyPriceCents),
	)
	return lease, cycles, nil
}

// GetLease returns a lease owned by customerID. An empty customerID skips the
// ownership check, for internal callers.
func (s *LeaseService) GetLease(ctx context.Context, customerID, leaseID string) (*LeaseDetail, error) {
	lease, err := s.ownedLease(ctx, customerID, leaseID)
	if err != nil {
		return nil, err
	}
	cycles, err := s.store.Cycles.ListByLease(ctx, lease.ID)
	if err != nil {
		return nil, fmt.Errorf("list billing cycles: %w", err)
	}
	return &LeaseDetail{Lease: lease, Cycles: cycles}, nil
}

// ListLeases returns a customer's leases, newest first
func (s *LeaseService) ListLeases(ctx context.Context, customerID string) ([]*models.Lease, error) {
	leases, err := s.store.Leases.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list leases: %w", err)
	}
	return leases, nil
}

// CancelLease moves an active lease to cancelled. Expired and cancelled leases
// are terminal and yield ErrInvalidLeaseTransition.
func (s *LeaseService) CancelLease(ctx context.Context, customerID, leaseID string) (*models.Lease, error) {
	lease, err := s.ownedLease(ctx, customerID, leaseID)
	if err != nil {
		return nil, err
	}
	if lease.IsTerminal() {
		return nil, fmt.Errorf("%w: lease is %s", ErrInvalidLeaseTransition, lease.Status)
	}

	now := s.clock.Now()
	err = s.store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Leases.Cancel(ctx, lease.ID, now); err != nil {
			return err
		}
		return s.logAction(ctx, lease.ID, models.LeaseActionCancelled, models.LeaseStatusCancelled,
			"Lease cancelled", nil)
	})
	if errors.Is(err, repository.ErrStaleStatus) {
		return nil, fmt.Errorf("%w: lease changed concurrently", ErrInvalidLeaseTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("cancel lease: %w", err)
	}

	s.metrics.LeaseTransition(models.LeaseStatusCancelled, 1)
	s.log.Info("lease cancelled", zap.String("lease_id", lease.ID), zap.String("customer_id", lease.CustomerID))

	lease.Status = models.LeaseStatusCancelled
	lease.CancelledAt = &now
	lease.UpdatedAt = now
	return lease, nil
}

// CheckLeaseExpirations marks pending cycles of active leases that are past
// due as overdue, then expires every active lease whose end date has passed.
// Leases ending in the future and terminal leases are left alone.
func (s *LeaseService) CheckLeaseExpirations(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	now := s.clock.Now()
	result := &SweepResult{}

	err := s.store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		overdue, err := s.store.Cycles.MarkOverdue(ctx, now)
		if err != nil {
			return err
		}
		for _, c := range overdue {
			err := s.logAction(ctx, c.LeaseID, models.CycleActionOverdue, models.CycleStatusOverdue,
				fmt.Sprintf("Billing cycle %d is overdue", c.Sequence),
				map[string]interface{}{"cycle_id": c.ID, "due_date": c.DueDate.Format(time.RFC3339)})
			if err != nil {
				return err
			}
		}

		expired, err := s.store.Leases.ExpireEnded(ctx, now)
		if err != nil {
			return err
		}
		for _, id := range expired {
			if err := s.logAction(ctx, id, models.LeaseActionExpired, models.LeaseStatusExpired, "Lease term ended", nil); err != nil {
				return err
			}
		}

		result.OverdueCycles = overdue
		result.ExpiredLeases = expired
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lease sweep: %w", err)
	}

	s.metrics.CyclesOverdue(len(result.OverdueCycles))
	s.metrics.LeaseTransition(models.LeaseStatusExpired, len(result.ExpiredLeases))
	s.metrics.ObserveSweep(time.Since(start).Seconds())

	if len(result.ExpiredLeases) > 0 || len(result.OverdueCycles) > 0 {
		s.log.Info("lease sweep",
			zap.Int("expired_leases", len(result.ExpiredLeases)),
			zap.Int("overdue_cycles", len(result.OverdueCycles)),
		)
	}
	return result, nil
}

// PayBillingCycle records payment of a pending or overdue cycle. Cycles of
// cancelled or expired leases can no longer be paid.
func (s *LeaseService) PayBillingCycle(ctx context.Context, cycleID string) (*models.BillingCycle, error) {
	now := s.clock.Now()

	var paid *models.BillingCycle
	err := s.store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.store.Cycles.GetByID(ctx, cycleID)
		if err != nil {
			return err
		}
		lease, err := s.store.Leases.GetByID(ctx, c.LeaseID)
		if err != nil {
			return fmt.Errorf("get lease: %w", err)
		}
		if lease.IsTerminal() {
			return fmt.Errorf("%w: lease is %s", ErrInvalidCycleTransition, lease.Status)
		}

		if err := s.store.Cycles.MarkPaid(ctx, cycleID, now); err != nil {
			return err
		}
		c.Status = models.CycleStatusPaid
		c.PaidDate = &now
		paid = c
		return s.logAction(ctx, c.LeaseID, models.CycleActionPaid, models.CycleStatusPaid,
			fmt.Sprintf("Billing cycle %d paid", c.Sequence),
			map[string]interface{}{"cycle_id": c.ID, "amount_cents": c.AmountCents})
	})
	switch {
	case errors.Is(err, ErrInvalidCycleTransition):
		return nil, err
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrCycleNotFound
	case errors.Is(err, repository.ErrStaleStatus):
		return nil, ErrInvalidCycleTransition
	case err != nil:
		return nil, fmt.Errorf("pay billing cycle: %w", err)
	}

	s.metrics.CyclePaid()
	s.log.Info("billing cycle paid", zap.String("cycle_id", cycleID), zap.String("lease_id", paid.LeaseID))
	return paid, nil
}

// LeaseLogs returns the most recent lifecycle log entries of a lease
func (s *LeaseService) LeaseLogs(ctx context.Context, leaseID string, limit int) ([]*models.LeaseLog, error) {
	return s.store.Logs.GetByLeaseID(ctx, leaseID, limit)
}

func (s *LeaseService) ownedLease(ctx context.Context, customerID, leaseID string) (*models.Lease, error) {
	lease, err := s.store.Leases.GetByID(ctx, leaseID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrLeaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lease: %w", err)
	}
	if customerID != "" && lease.CustomerID != customerID {
		return nil, ErrForbidden
	}
	return lease, nil
}

func (s *LeaseService) logAction(ctx context.Context, leaseID, action, status, message string, metadata map[string]interface{}) error {
	return s.store.Logs.Create(ctx, &models.LeaseLog{
		LeaseID:   leaseID,
		Action:    action,
		Status:    status,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: s.clock.Now(),
	})
}
