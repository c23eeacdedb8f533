package client

import (
	"context"
	"errors"

	"github.com/wenwu/saas-platform/lease-service/internal/models"
)

var ErrProviderUnavailable = errors.New("compute provider unavailable")

// DropletRequest describes the VPS to create for a lease.
type DropletRequest struct {
	Name   string
	Region string
	Size   string
	Image  string
	Tags   []string
}

// Droplet is the provider's view of a created VPS.
type Droplet struct {
	ID       string
	Name     string
	Region   string
	Size     string
	Status   string
	PublicIP string
}

// ComputeProvider provisions and lists VPS capacity.
type ComputeProvider interface {
	ListPackages(ctx context.Context) ([]models.Package, error)
	ListRegions(ctx context.Context) ([]models.Region, error)
	CreateDroplet(ctx context.Context, req *DropletRequest) (*Droplet, error)
	DeleteDroplet(ctx context.Context, id string) error
}
