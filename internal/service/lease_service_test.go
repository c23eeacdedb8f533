package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenwu/saas-platform/lease-service/internal/billing"
	"github.com/wenwu/saas-platform/lease-service/internal/models"
)

func createLease(t *testing.T, e *testEnv, customerID string, months int) *models.Lease {
	t.Helper()
	l, _, err := e.leases.CreateLease(context.Background(), &CreateLeaseInput{
		CustomerID:        customerID,
		InstanceID:        "droplet-1",
		Hostname:          "web.example.com",
		Region:            "fra1",
		SizeSlug:          "s-1vcpu-1gb",
		MonthlyPriceCents: 1000,
		Months:            months,
	})
	require.NoError(t, err)
	return l
}

func TestCreateLease_PersistsLeaseAndCycles(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.customer(t, "owner@example.com")

	for _, months := range []int{1, 3, 6, 12} {
		lease := createLease(t, e, c.ID, months)

		assert.Equal(t, models.LeaseStatusActive, lease.Status)
		assert.Equal(t, "eur", lease.Currency)
		assert.True(t, lease.StartDate.Equal(t0))
		assert.Equal(t, months, billing.MonthOffset(lease.StartDate, lease.EndDate))

		n, err := e.store.Cycles.CountByLease(ctx, lease.ID)
		require.NoError(t, err)
		assert.Equal(t, months, n)

		detail, err := e.leases.GetLease(ctx, c.ID, lease.ID)
		require.NoError(t, err)
		require.Len(t, detail.Cycles, months)
		assert.Equal(t, models.CycleStatusPaid, detail.Cycles[0].Status)
		for i, cycle := range detail.Cycles {
			assert.Equal(t, i, cycle.Sequence)
			assert.Equal(t, int64(1000), cycle.AmountCents)
		}

		logs, err := e.leases.LeaseLogs(ctx, lease.ID, 10)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, models.LeaseActionCreated, logs[0].Action)
	}
}

func TestCreateLease_IsAtomic(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.customer(t, "owner@example.com")

	e.store.Cycles = failingCycles{e.store.Cycles}

	_, _, err := e.leases.CreateLease(ctx, &CreateLeaseInput{
		CustomerID: c.ID, InstanceID: "droplet-1", MonthlyPriceCents: 1000, Months: 3,
	})
	require.Error(t, err)

	leases, err := e.leases.ListLeases(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, leases)
}

func TestCreateLease_RejectsEmptyTerm(t *testing.T) {
	e := newTestEnv(t)
	c := e.customer(t, "owner@example.com")

	_, _, err := e.leases.CreateLease(context.Background(), &CreateLeaseInput{
		CustomerID: c.ID, InstanceID: "droplet-1", MonthlyPriceCents: 1000, Months: 0,
	})
	assert.ErrorIs(t, err, billing.ErrInvalidTerm)
}

func TestCancelLease(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.customer(t, "owner@example.com")
	other := e.customer(t, "other@example.com")
	lease := createLease(t, e, owner.ID, 3)

	_, err := e.leases.CancelLease(ctx, other.ID, lease.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = e.leases.CancelLease(ctx, owner.ID, "missing")
	assert.ErrorIs(t, err, ErrLeaseNotFound)

	cancelled, err := e.leases.CancelLease(ctx, owner.ID, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = e.leases.CancelLease(ctx, owner.ID, lease.ID)
	assert.ErrorIs(t, err, ErrInvalidLeaseTransition)
}

func TestCancelLease_ExpiredIsTerminal(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.customer(t, "owner@example.com")
	lease := createLease(t, e, c.ID, 1)

	e.clock.Set(t0.AddDate(0, 2, 0))
	_, err := e.leases.CheckLeaseExpirations(ctx)
	require.NoError(t, err)

	_, err = e.leases.CancelLease(ctx, "", lease.ID)
	assert.ErrorIs(t, err, ErrInvalidLeaseTransition)
}

func TestCheckLeaseExpirations(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.customer(t, "owner@example.com")

	short := createLease(t, e, c.ID, 1)
	long := createLease(t, e, c.ID, 12)
	cancelled := createLease(t, e, c.ID, 1)
	_, err := e.leases.CancelLease(ctx, c.ID, cancelled.ID)
	require.NoError(t, err)

	e.clock.Set(t0.AddDate(0, 1, 0).Add(time.Hour))
	result, err := e.leases.CheckLeaseExpirations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{short.ID}, result.ExpiredLeases)

	got, err := e.leases.GetLease(ctx, "", short.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusExpired, got.Lease.Status)

	got, err = e.leases.GetLease(ctx, "", long.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusActive, got.Lease.Status)

	got, err = e.leases.GetLease(ctx, "", cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusCancelled, got.Lease.Status)

	again, err := e.leases.CheckLeaseExpirations(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.ExpiredLeases)
}

func TestCheckLeaseExpirations_MarksOverdueCycles(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.customer(t, "owner@example.com")
	lease := createLease(t, e, c.ID, 6)

	e.clock.Set(t0.AddDate(0, 2, 1))
	result, err := e.leases.CheckLeaseExpirations(ctx)
	require.NoError(t, err)
	require.Len(t, result.OverdueCycles, 2)
	assert.Empty(t, result.ExpiredLeases)

	detail, err := e.leases.GetLease(ctx, c.ID, lease.ID)
	require.NoError(t, err)
	statuses := make([]string, 0, len(detail.Cycles))
	for _, cycle := range detail.Cycles {
		statuses = append(statuses, cycle.Status)
	}
	assert.Equal(t, []string{
		models.CycleStatusPaid,
		models.CycleStatusOverdue,
		models.CycleStatusOverdue,
		models.CycleStatusPending,
		models.CycleStatusPending,
		models.CycleStatusPending,
	}, statuses)
}

func TestPayBillingCycle(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.customer(t, "owner@example.com")
	lease := createLease(t, e, c.ID, 3)

	detail, err := e.leases.GetLease(ctx, c.ID, lease.ID)
	require.NoError(t, err)

	_, err = e.leases.PayBillingCycle(ctx, detail.Cycles[0].ID)
	assert.ErrorIs(t, err, ErrInvalidCycleTransition)

	e.clock.Advance(24 * time.Hour)
	paid, err := e.leases.PayBillingCycle(ctx, detail.Cycles[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.CycleStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidDate)
	assert.True(t, paid.PaidDate.Equal(t0.Add(24*time.Hour)))

	_, err = e.leases.PayBillingCycle(ctx, "missing")
	assert.ErrorIs(t, err, ErrCycleNotFound)
}

func TestPayBillingCycle_RejectsTerminalLease(t *testing.T) {
	tests := []struct {
		name      string
		terminate func(t *testing.T, e *testEnv, leaseID string)
	}{
		{"cancelled", func(t *testing.T, e *testEnv, leaseID string) {
			_, err := e.leases.CancelLease(context.Background(), "", leaseID)
			require.NoError(t, err)
		}},
		{"expired", func(t *testing.T, e *testEnv, leaseID string) {
			e.clock.Set(t0.AddDate(0, 4, 0))
			_, err := e.leases.CheckLeaseExpirations(context.Background())
			require.NoError(t, err)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			ctx := context.Background()
			c := e.customer(t, "owner@example.com")
			lease := createLease(t, e, c.ID, 3)

			detail, err := e.leases.GetLease(ctx, c.ID, lease.ID)
			require.NoError(t, err)
			tt.terminate(t, e, lease.ID)

			_, err = e.leases.PayBillingCycle(ctx, detail.Cycles[1].ID)
			assert.ErrorIs(t, err, ErrInvalidCycleTransition)

			cycle, err := e.store.Cycles.GetByID(ctx, detail.Cycles[1].ID)
			require.NoError(t, err)
			assert.NotEqual(t, models.CycleStatusPaid, cycle.Status)
			assert.Nil(t, cycle.PaidDate)
		})
	}
}

func TestLeaseLogs_StampedWithClock(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.customer(t, "owner@example.com")
	lease := createLease(t, e, c.ID, 3)

	e.clock.Advance(time.Hour)
	_, err := e.leases.CancelLease(ctx, c.ID, lease.ID)
	require.NoError(t, err)

	logs, err := e.leases.LeaseLogs(ctx, lease.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.LeaseActionCancelled, logs[0].Action)
	assert.True(t, logs[0].CreatedAt.Equal(t0.Add(time.Hour)), "got %s", logs[0].CreatedAt)
	assert.True(t, logs[1].CreatedAt.Equal(t0), "got %s", logs[1].CreatedAt)
}
