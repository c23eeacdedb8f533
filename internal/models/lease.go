package models

import "time"

// Lease status constants
const (
	LeaseStatusActive    = "active"
	LeaseStatusExpired   = "expired"
	LeaseStatusCancelled = "cancelled"
)

// Billing cycle status constants
const (
	CycleStatusPending = "pending"
	CycleStatusPaid    = "paid"
	CycleStatusOverdue = "overdue"
)

// Lease log actions
const (
	LeaseActionCreated   = "lease_created"
	LeaseActionExpired   = "lease_expired"
	LeaseActionCancelled = "lease_cancelled"
	CycleActionPaid      = "cycle_paid"
	CycleActionOverdue   = "cycle_overdue"
)

// Customer is looked up or created by email; email is unique.
type Customer struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// Lease is a customer's claim on one provisioned VPS for a fixed term.
// MonthlyPriceCents is fixed at creation.
type Lease struct {
	ID                string
	CustomerID        string
	OrderID           string
	InstanceID        string
	Hostname          string
	Region            string
	SizeSlug          string
	MonthlyPriceCents int64
	Currency          string
	StartDate         time.Time
	EndDate           time.Time
	Status            string
	CancelledAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsTerminal reports whether the lease can no longer change status.
func (l *Lease) IsTerminal() bool {
	return l.Status == LeaseStatusExpired || l.Status == LeaseStatusCancelled
}

// BillingCycle is one month's invoice record within a lease term.
type BillingCycle struct {
	ID          string
	LeaseID     string
	Sequence    int
	AmountCents int64
	Currency    string
	DueDate     time.Time
	PaidDate    *time.Time
	Status      string
	CreatedAt   time.Time
}

// LeaseLog represents a lease lifecycle log entry
type LeaseLog struct {
	ID        string
	LeaseID   string
	Action    string
	Status    string
	Message   string
	Metadata  map[string]interface{}
	CreatedAt time.Time
}
