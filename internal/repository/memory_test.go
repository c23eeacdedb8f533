package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenwu/saas-platform/lease-service/internal/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seedLease(t *testing.T, s *Store, id string, end time.Time) *models.Lease {
	t.Helper()
	ctx := context.Background()
	c, err := s.Customers.UpsertByEmail(ctx, &models.Customer{Email: "owner@example.com"})
	require.NoError(t, err)

	l := &models.Lease{
		ID:                id,
		CustomerID:        c.ID,
		InstanceID:        "droplet-" + id,
		Hostname:          id + ".example.com",
		Region:            "fra1",
		SizeSlug:          "s-1vcpu-1gb",
		MonthlyPriceCents: 1000,
		Currency:          "eur",
		StartDate:         t0,
		EndDate:           end,
		Status:            models.LeaseStatusActive,
		CreatedAt:         t0,
		UpdatedAt:         t0,
	}
	require.NoError(t, s.Leases.Create(ctx, l))
	return l
}

func TestMemoryCustomers_UpsertIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.Customers.UpsertByEmail(ctx, &models.Customer{Email: "ada@example.com"})
	require.NoError(t, err)
	second, err := s.Customers.UpsertByEmail(ctx, &models.Customer{Email: "ada@example.com", Name: "Ada"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ada", second.Name)

	third, err := s.Customers.UpsertByEmail(ctx, &models.Customer{Email: "ada@example.com", Name: "Other"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", third.Name)
}

func TestMemoryCustomers_ConcurrentUpsertYieldsOneRow(t *testing.T) {
	db := NewMemoryDB()
	s := db.Store()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := s.Customers.UpsertByEmail(ctx, &models.Customer{Email: "race@example.com"})
			if assert.NoError(t, err) {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, db.customers, 1)
}

func TestMemoryTx_RollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c, err := s.Customers.UpsertByEmail(ctx, &models.Customer{Email: "tx@example.com"})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Leases.Create(ctx, &models.Lease{
			ID: "lease_tx", CustomerID: c.ID, Status: models.LeaseStatusActive,
			StartDate: t0, EndDate: t0.AddDate(0, 1, 0),
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Leases.GetByID(ctx, "lease_tx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTx_Commits(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		_, err := s.Customers.UpsertByEmail(ctx, &models.Customer{Email: "ok@example.com"})
		return err
	})
	require.NoError(t, err)

	_, err = s.Customers.GetByEmail(ctx, "ok@example.com")
	assert.NoError(t, err)
}

func TestMemoryCycles_DuplicateSequenceConflicts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedLease(t, s, "lease_dup", t0.AddDate(0, 3, 0))

	cycle := models.BillingCycle{ID: "c0", LeaseID: "lease_dup", Sequence: 0, Status: models.CycleStatusPending, DueDate: t0}
	require.NoError(t, s.Cycles.CreateBatch(ctx, []models.BillingCycle{cycle}))

	cycle.ID = "c0-again"
	err := s.Cycles.CreateBatch(ctx, []models.BillingCycle{cycle})
	assert.ErrorIs(t, err, ErrConflict)

	n, err := s.Cycles.CountByLease(ctx, "lease_dup")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryLeases_ExpireEnded(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedLease(t, s, "lease_past", t0.Add(-time.Hour))
	seedLease(t, s, "lease_future", t0.Add(time.Hour))

	ids, err := s.Leases.ExpireEnded(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, []string{"lease_past"}, ids)

	past, _ := s.Leases.GetByID(ctx, "lease_past")
	future, _ := s.Leases.GetByID(ctx, "lease_future")
	assert.Equal(t, models.LeaseStatusExpired, past.Status)
	assert.Equal(t, models.LeaseStatusActive, future.Status)

	ids, err = s.Leases.ExpireEnded(ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryLeases_CancelOnlyFromActive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedLease(t, s, "lease_c", t0.AddDate(0, 1, 0))

	require.NoError(t, s.Leases.Cancel(ctx, "lease_c", t0))
	assert.ErrorIs(t, s.Leases.Cancel(ctx, "lease_c", t0), ErrStaleStatus)
	assert.ErrorIs(t, s.Leases.Cancel(ctx, "missing", t0), ErrNotFound)

	l, err := s.Leases.GetByID(ctx, "lease_c")
	require.NoError(t, err)
	require.NotNil(t, l.CancelledAt)
	assert.Equal(t, models.LeaseStatusCancelled, l.Status)
}

func TestMemoryCycles_MarkOverdueSkipsInactiveLeases(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedLease(t, s, "lease_a", t0.AddDate(0, 3, 0))
	seedLease(t, s, "lease_b", t0.AddDate(0, 3, 0))
	require.NoError(t, s.Leases.Cancel(ctx, "lease_b", t0))

	var batch []models.BillingCycle
	for _, leaseID := range []string{"lease_a", "lease_b"} {
		for i := 0; i < 2; i++ {
			batch = append(batch, models.BillingCycle{
				ID: fmt.Sprintf("%s-%d", leaseID, i), LeaseID: leaseID, Sequence: i,
				DueDate: t0.AddDate(0, i, 0), Status: models.CycleStatusPending,
			})
		}
	}
	require.NoError(t, s.Cycles.CreateBatch(ctx, batch))

	overdue, err := s.Cycles.MarkOverdue(ctx, t0.AddDate(0, 1, 1))
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, "lease_a-0", overdue[0].ID)
	assert.Equal(t, "lease_a-1", overdue[1].ID)

	require.NoError(t, s.Cycles.MarkPaid(ctx, "lease_a-0", t0))
	assert.ErrorIs(t, s.Cycles.MarkPaid(ctx, "lease_a-0", t0), ErrStaleStatus)
}

func TestMemoryOrders_TransitionStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c, err := s.Customers.UpsertByEmail(ctx, &models.Customer{Email: "buyer@example.com"})
	require.NoError(t, err)

	require.NoError(t, s.Orders.Create(ctx, &models.Order{ID: "order_1", CustomerID: c.ID, Status: models.OrderStatusPending, CreatedAt: t0}))
	require.NoError(t, s.Orders.SetCheckoutSession(ctx, "order_1", "cs_test_1"))

	require.NoError(t, s.Orders.TransitionStatus(ctx, "order_1", models.OrderStatusPending, models.OrderStatusProvisioning))
	assert.ErrorIs(t, s.Orders.TransitionStatus(ctx, "order_1", models.OrderStatusPending, models.OrderStatusProvisioning), ErrStaleStatus)

	o, err := s.Orders.GetByCheckoutSessionID(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, "order_1", o.ID)
	assert.Equal(t, "buyer@example.com", o.CustomerEmail)
	assert.Equal(t, models.OrderStatusProvisioning, o.Status)
}
