// Package billing builds the monthly billing cycles of a lease term.
package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wenwu/saas-platform/lease-service/internal/models"
)

var ErrInvalidTerm = errors.New("lease term must be at least one month")

// GenerateCycles returns exactly months cycles for a lease starting at now.
// Cycle 0 covers the first month and is already paid by checkout; the rest are
// pending. Cycle i is due i calendar months after now.
func GenerateCycles(leaseID string, monthlyAmountCents int64, months int, now time.Time) ([]models.BillingCycle, error) {
	if months < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTerm, months)
	}
	if monthlyAmountCents < 0 {
		return nil, fmt.Errorf("cycle amount must not be negative: %d", monthlyAmountCents)
	}

	cycles := make([]models.BillingCycle, 0, months)
	for i := 0; i < months; i++ {
		c := models.BillingCycle{
			ID:          uuid.NewString(),
			LeaseID:     leaseID,
			Sequence:    i,
			AmountCents: monthlyAmountCents,
			DueDate:     AddMonths(now, i),
			Status:      models.CycleStatusPending,
			CreatedAt:   now,
		}
		if i == 0 {
			paid := now
			c.PaidDate = &paid
			c.Status = models.CycleStatusPaid
		}
		cycles = append(cycles, c)
	}
	return cycles, nil
}

// TermEnd is the end of a lease term that starts at start.
func TermEnd(start time.Time, months int) time.Time {
	return AddMonths(start, months)
}

// AddMonths moves t forward n calendar months. Unlike time.AddDate it never
// spills into the following month: Jan 31 + 1 month is the last day of February.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// MonthOffset is the number of calendar months between a and b.
func MonthOffset(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
