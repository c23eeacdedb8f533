package models

import "github.com/wenwu/saas-platform/lease-service/internal/pricing"

// ==================== Catalog DTOs ====================

// RegionListResponse is the list of available regions
type RegionListResponse struct {
	Regions []RegionInfo `json:"regions"`
}

// RegionInfo is a single region entry
type RegionInfo struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	Available bool   `json:"available"`
}

// PackageListResponse is the filtered, sorted package catalog
type PackageListResponse struct {
	Packages []Package `json:"packages"`
}

// QuoteResponse is the price breakdown for a package and billing cycle.
// Amounts are decimal strings in the billing currency.
type QuoteResponse struct {
	SizeSlug           string         `json:"size_slug"`
	BillingCycleMonths int            `json:"billing_cycle_months"`
	Addons             pricing.Addons `json:"addons"`
	Currency           string         `json:"currency"`
	BaseMonthly        string         `json:"base_monthly"`
	DiscountPercent    string         `json:"discount_percent"`
	DiscountedMonthly  string         `json:"discounted_monthly"`
	AddonsMonthly      string         `json:"addons_monthly"`
	MonthlyTotal       string         `json:"monthly_total"`
	TermTotal          string         `json:"term_total"`
	TermTotalCents     int64          `json:"term_total_cents"`
}

// ==================== Checkout DTOs ====================

// CheckoutRequest starts the purchase of a VPS lease
type CheckoutRequest struct {
	SizeSlug           string         `json:"size_slug" binding:"required"`
	Region             string         `json:"region"`
	Hostname           string         `json:"hostname" binding:"required"`
	BillingCycleMonths int            `json:"billing_cycle_months" binding:"required"`
	Addons             pricing.Addons `json:"addons"`
	CustomerName       string         `json:"customer_name"`
}

// CheckoutResponse carries the payment provider redirect
type CheckoutResponse struct {
	OrderID     string `json:"order_id"`
	SessionURL  string `json:"session_url"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// CompleteOrderRequest is sent by internal callers once payment succeeded
type CompleteOrderRequest struct {
	SessionID string `json:"session_id"`
}

// ==================== Dashboard DTOs ====================

// DashboardOrder is the customer-facing view of an order
type DashboardOrder struct {
	OrderID            string      `json:"order_id"`
	Status             string      `json:"status"`
	Hostname           string      `json:"hostname"`
	Region             string      `json:"region"`
	SizeSlug           string      `json:"size_slug"`
	BillingCycleMonths int         `json:"billing_cycle_months"`
	Config             OrderConfig `json:"config"`
	MonthlyPrice       string      `json:"monthly_price"`
	Amount             string      `json:"amount"`
	Currency           string      `json:"currency"`
	LeaseID            *string     `json:"lease_id,omitempty"`
	ErrorMessage       *string     `json:"error_message,omitempty"`
	CreatedAt          string      `json:"created_at"`
}

// LeaseInfo is the customer-facing view of a lease
type LeaseInfo struct {
	LeaseID       string             `json:"lease_id"`
	CustomerID    string             `json:"customer_id"`
	InstanceID    string             `json:"instance_id"`
	Hostname      string             `json:"hostname"`
	Region        string             `json:"region"`
	SizeSlug      string             `json:"size_slug"`
	MonthlyPrice  string             `json:"monthly_price"`
	Currency      string             `json:"currency"`
	StartDate     string             `json:"start_date"`
	EndDate       string             `json:"end_date"`
	TermMonths    int                `json:"term_months"`
	Status        string             `json:"status"`
	BillingCycles []BillingCycleInfo `json:"billing_cycles,omitempty"`
}

// BillingCycleInfo is a single cycle in a lease view
type BillingCycleInfo struct {
	CycleID  string  `json:"cycle_id"`
	Sequence int     `json:"sequence"`
	Amount   string  `json:"amount"`
	DueDate  string  `json:"due_date"`
	PaidDate *string `json:"paid_date,omitempty"`
	Status   string  `json:"status"`
}

// SweepResponse reports what a lifecycle sweep changed
type SweepResponse struct {
	ExpiredLeases int `json:"expired_leases"`
	OverdueCycles int `json:"overdue_cycles"`
}
