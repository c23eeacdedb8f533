package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenwu/saas-platform/lease-service/internal/models"
)

func TestGenerateCycles_CountAndStatus(t *testing.T) {
	now := time.Date(2024, 5, 14, 9, 30, 0, 0, time.UTC)

	for _, n := range []int{1, 3, 6, 12} {
		cycles, err := GenerateCycles("lease_x", 2500, n, now)
		require.NoError(t, err)
		require.Len(t, cycles, n)

		assert.Equal(t, models.CycleStatusPaid, cycles[0].Status)
		require.NotNil(t, cycles[0].PaidDate)
		assert.True(t, cycles[0].PaidDate.Equal(now))

		for i, c := range cycles[1:] {
			assert.Equal(t, models.CycleStatusPending, c.Status, "cycle %d", i+1)
			assert.Nil(t, c.PaidDate, "cycle %d", i+1)
		}
	}
}

func TestGenerateCycles_MonthOffsets(t *testing.T) {
	starts := []time.Time{
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC),
		time.Date(2023, 8, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
	}
	for _, start := range starts {
		cycles, err := GenerateCycles("lease_x", 1000, 12, start)
		require.NoError(t, err)
		for i, c := range cycles {
			assert.Equal(t, i, MonthOffset(cycles[0].DueDate, c.DueDate), "start=%s cycle=%d", start, i)
			assert.Equal(t, i, c.Sequence)
		}
	}
}

func TestGenerateCycles_YearRollover(t *testing.T) {
	now := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	cycles, err := GenerateCycles("lease_x", 1000, 4, now)
	require.NoError(t, err)

	last := cycles[3].DueDate
	assert.Equal(t, 2025, last.Year())
	assert.Equal(t, time.January, last.Month())
	assert.Equal(t, 10, last.Day())
}

func TestGenerateCycles_ClampsToMonthEnd(t *testing.T) {
	now := time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC)
	cycles, err := GenerateCycles("lease_x", 1000, 3, now)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC), cycles[1].DueDate)
	assert.Equal(t, time.Date(2024, 3, 31, 8, 0, 0, 0, time.UTC), cycles[2].DueDate)
}

func TestGenerateCycles_ThreeMonthScenario(t *testing.T) {
	now := time.Now().UTC()
	cycles, err := GenerateCycles("lease_1", 1000, 3, now)
	require.NoError(t, err)
	require.Len(t, cycles, 3)

	for i, c := range cycles {
		assert.Equal(t, "lease_1", c.LeaseID)
		assert.Equal(t, int64(1000), c.AmountCents)
		assert.Equal(t, i, MonthOffset(now, c.DueDate))
		assert.NotEmpty(t, c.ID)
	}
	assert.Equal(t, models.CycleStatusPaid, cycles[0].Status)
	assert.True(t, cycles[0].DueDate.Equal(now))
}

func TestGenerateCycles_RejectsEmptyTerm(t *testing.T) {
	for _, n := range []int{0, -3} {
		_, err := GenerateCycles("lease_x", 1000, n, time.Now())
		assert.ErrorIs(t, err, ErrInvalidTerm)
	}

	_, err := GenerateCycles("lease_x", -1, 1, time.Now())
	assert.Error(t, err)
}

func TestGenerateCycles_UniqueIDs(t *testing.T) {
	cycles, err := GenerateCycles("lease_x", 1000, 12, time.Now())
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, c := range cycles {
		assert.False(t, seen[c.ID])
		seen[c.ID] = true
	}
}

func TestTermEnd(t *testing.T) {
	start := time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC), TermEnd(start, 1))
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), TermEnd(start, 6))
	assert.Equal(t, time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), TermEnd(start, 12))
}
