package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/digitalocean/godo"
	"go.uber.org/zap"

	"github.com/wenwu/saas-platform/lease-service/internal/models"
)

const doPageSize = 200

// DigitalOceanClient manages droplets through the DigitalOcean API
type DigitalOceanClient struct {
	client *godo.Client
	log    *zap.Logger
}

// NewDigitalOceanClient creates a new DigitalOcean client
func NewDigitalOceanClient(token string, log *zap.Logger) *DigitalOceanClient {
	return &DigitalOceanClient{
		client: godo.NewFromToken(token),
		log:    log.Named("digitalocean"),
	}
}

// ListPackages returns every droplet size, following pagination
func (c *DigitalOceanClient) ListPackages(ctx context.Context) ([]models.Package, error) {
	var packages []models.Package
	opt := &godo.ListOptions{PerPage: doPageSize}
	for {
		sizes, resp, err := c.client.Sizes.List(ctx, opt)
		if err != nil {
			return nil, c.mapError("list sizes", err)
		}
		for _, s := range sizes {
			packages = append(packages, models.Package{
				Slug:         s.Slug,
				VCPUs:        s.Vcpus,
				MemoryMB:     s.Memory,
				DiskGB:       s.Disk,
				TransferGB:   int(s.Transfer * 1024),
				PriceMonthly: s.PriceMonthly,
				PriceHourly:  s.PriceHourly,
				Regions:      s.Regions,
				Available:    s.Available,
			})
		}
		next, ok := nextPage(resp)
		if !ok {
			break
		}
		opt.Page = next
	}
	return packages, nil
}

// ListRegions returns every region known to the account
func (c *DigitalOceanClient) ListRegions(ctx context.Context) ([]models.Region, error) {
	var regions []models.Region
	opt := &godo.ListOptions{PerPage: doPageSize}
	for {
		page, resp, err := c.client.Regions.List(ctx, opt)
		if err != nil {
			return nil, c.mapError("list regions", err)
		}
		for _, r := range page {
			regions = append(regions, models.Region{
				Code:      r.Slug,
				Name:      r.Name,
				Provider:  models.ProviderDigitalOcean,
				Available: r.Available,
			})
		}
		next, ok := nextPage(resp)
		if !ok {
			break
		}
		opt.Page = next
	}
	return regions, nil
}

// CreateDroplet creates a droplet and returns as soon as the API accepts it
func (c *DigitalOceanClient) CreateDroplet(ctx context.Context, req *DropletRequest) (*Droplet, error) {
	c.log.Info("creating droplet",
		zap.String("name", req.Name),
		zap.String("region", req.Region),
		zap.String("size", req.Size),
	)

	d, _, err := c.client.Droplets.Create(ctx, &godo.DropletCreateRequest{
		Name:       req.Name,
		Region:     req.Region,
		Size:       req.Size,
		Image:      godo.DropletCreateImage{Slug: req.Image},
		Tags:       req.Tags,
		Monitoring: true,
		IPv6:       true,
	})
	if err != nil {
		return nil, c.mapError("create droplet", err)
	}

	out := &Droplet{
		ID:     strconv.Itoa(d.ID),
		Name:   d.Name,
		Status: d.Status,
		Region: req.Region,
		Size:   req.Size,
	}
	if ip, err := d.PublicIPv4(); err == nil {
		out.PublicIP = ip
	}
	return out, nil
}

// DeleteDroplet deletes a droplet; a droplet that is already gone is not an error
func (c *DigitalOceanClient) DeleteDroplet(ctx context.Context, id string) error {
	dropletID, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("invalid droplet id %q: %w", id, err)
	}

	c.log.Info("deleting droplet", zap.String("droplet_id", id))
	resp, err := c.client.Droplets.Delete(ctx, dropletID)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return c.mapError("delete droplet", err)
	}
	return nil
}

func (c *DigitalOceanClient) mapError(op string, err error) error {
	var errResp *godo.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s: %w: %v", op, ErrProviderUnavailable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, ErrProviderUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nextPage(resp *godo.Response) (int, bool) {
	if resp == nil || resp.Links == nil || resp.Links.IsLastPage() {
		return 0, false
	}
	page, err := resp.Links.CurrentPage()
	if err != nil {
		return 0, false
	}
	return page + 1, true
}

// DropletName builds a provider-safe droplet name from a hostname.
func DropletName(prefix, hostname string) string {
	name := strings.ToLower(strings.TrimSpace(hostname))
	if prefix != "" {
		name = prefix + "-" + name
	}
	return name
}
