package models

import (
	"time"

	"github.com/wenwu/saas-platform/lease-service/internal/pricing"
)

// Order status constants
const (
	OrderStatusPending      = "pending"
	OrderStatusPaid         = "paid"
	OrderStatusProvisioning = "provisioning"
	OrderStatusActive       = "active"
	OrderStatusFailed       = "failed"
	OrderStatusCancelled    = "cancelled"
)

// PackageSpec is the hardware snapshot stored with an order.
type PackageSpec struct {
	Slug       string `json:"slug"`
	VCPUs      int    `json:"vcpus"`
	MemoryMB   int    `json:"memory_mb"`
	DiskGB     int    `json:"disk_gb"`
	TransferGB int    `json:"transfer_gb"`
}

// OrderConfig is persisted as JSON alongside the order row.
type OrderConfig struct {
	Package PackageSpec    `json:"package"`
	Addons  pricing.Addons `json:"addons"`
}

// Order is the persisted purchase of a VPS, denormalized for the dashboard.
type Order struct {
	ID                 string
	CustomerID         string
	CustomerEmail      string
	Status             string
	Hostname           string
	Region             string
	SizeSlug           string
	BillingCycleMonths int
	Config             OrderConfig
	MonthlyPriceCents  int64
	AmountCents        int64
	Currency           string
	CheckoutSessionID  *string
	InstanceID         *string
	LeaseID            *string
	ErrorMessage       *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
