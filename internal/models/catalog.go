package models

import (
	"time"
)

// Cloud provider constants
const (
	ProviderDigitalOcean = "digitalocean"
)

// Package is a VPS catalog entry as reported by the compute provider.
// Prices are in the billing currency.
type Package struct {
	Slug         string   `json:"slug"`
	VCPUs        int      `json:"vcpus"`
	MemoryMB     int      `json:"memory_mb"`
	DiskGB       int      `json:"disk_gb"`
	TransferGB   int      `json:"transfer_gb"`
	PriceMonthly float64  `json:"price_monthly"`
	PriceHourly  float64  `json:"price_hourly"`
	Regions      []string `json:"regions"`
	Available    bool     `json:"available"`
}

// OfferedIn reports whether the package can be provisioned in region.
func (p *Package) OfferedIn(region string) bool {
	for _, r := range p.Regions {
		if r == region {
			return true
		}
	}
	return false
}

// Region represents an available cloud region
type Region struct {
	Code      string
	Name      string
	Provider  string
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
