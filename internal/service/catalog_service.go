package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wenwu/saas-platform/lease-service/internal/cache"
	"github.com/wenwu/saas-platform/lease-service/internal/client"
	"github.com/wenwu/saas-platform/lease-service/internal/models"
	"github.com/wenwu/saas-platform/lease-service/internal/pricing"
	"github.com/wenwu/saas-platform/lease-service/internal/repository"
)

const catalogCacheKey = "catalog:v1"

// Package sort orders
const (
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortVCPUs     = "vcpus"
	SortMemory    = "memory"
)

// PackageFilter narrows the package catalog. Zero values match everything.
type PackageFilter struct {
	Region        string
	MinVCPUs      int
	MinMemoryMB   int
	AvailableOnly bool
	Sort          string
}

type catalogSnapshot struct {
	Packages []models.Package `json:"packages"`
	Regions  []models.Region  `json:"regions"`
}

// CatalogService serves packages and regions from the compute provider, cached
type CatalogService struct {
	provider client.ComputeProvider
	regions  repository.RegionStore
	cache    cache.Cache
	ttl      time.Duration
	currency string
	log      *zap.Logger
}

func NewCatalogService(provider client.ComputeProvider, regions repository.RegionStore, c cache.Cache, ttl time.Duration, currency string, log *zap.Logger) *CatalogService {
	return &CatalogService{
		provider: provider,
		regions:  regions,
		cache:    c,
		ttl:      ttl,
		currency: currency,
		log:      log.Named("catalog"),
	}
}

// ListPackages returns the filtered catalog, cheapest first unless f.Sort says otherwise.
func (s *CatalogService) ListPackages(ctx context.Context, f PackageFilter) ([]models.Package, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.Package, 0, len(snap.Packages))
	for _, p := range snap.Packages {
		if f.AvailableOnly && !p.Available {
			continue
		}
		if f.Region != "" && !p.OfferedIn(f.Region) {
			continue
		}
		if p.VCPUs < f.MinVCPUs || p.MemoryMB < f.MinMemoryMB {
			continue
		}
		out = append(out, p)
	}

	sortPackages(out, f.Sort)
	return out, nil
}

func sortPackages(pkgs []models.Package, order string) {
	var less func(a, b models.Package) bool
	switch order {
	case SortPriceDesc:
		less = func(a, b models.Package) bool { return a.PriceMonthly > b.PriceMonthly }
	case SortVCPUs:
		less = func(a, b models.Package) bool { return a.VCPUs < b.VCPUs }
	case SortMemory:
		less = func(a, b models.Package) bool { return a.MemoryMB < b.MemoryMB }
	default:
		less = func(a, b models.Package) bool { return a.PriceMonthly < b.PriceMonthly }
	}
	sort.SliceStable(pkgs, func(i, j int) bool {
		if less(pkgs[i], pkgs[j]) {
			return true
		}
		if less(pkgs[j], pkgs[i]) {
			return false
		}
		return pkgs[i].Slug < pkgs[j].Slug
	})
}

// GetPackage looks a package up by slug
func (s *CatalogService) GetPackage(ctx context.Context, slug string) (*models.Package, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range snap.Packages {
		if p.Slug == slug {
			p := p
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, slug)
}

// ListRegions returns available regions from the database, falling back to the
// provider catalog before the first sync.
func (s *CatalogService) ListRegions(ctx context.Context) ([]models.Region, error) {
	stored, err := s.regions.GetAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	if len(stored) > 0 {
		out := make([]models.Region, 0, len(stored))
		for _, r := range stored {
			out = append(out, *r)
		}
		return out, nil
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Region, 0, len(snap.Regions))
	for _, r := range snap.Regions {
		if r.Available {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CheckRegion rejects a region the last sync recorded as unavailable. Regions
// that were never synced are left to the package catalog.
func (s *CatalogService) CheckRegion(ctx context.Context, code string) error {
	r, err := s.regions.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get region: %w", err)
	}
	if !r.Available {
		return fmt.Errorf("%w: %s", ErrRegionUnavailable, code)
	}
	return nil
}

// SyncRegions refreshes the catalog and upserts every provider region
func (s *CatalogService) SyncRegions(ctx context.Context) (int, error) {
	snap, err := s.refresh(ctx)
	if err != nil {
		return 0, err
	}
	for i := range snap.Regions {
		if err := s.regions.Upsert(ctx, &snap.Regions[i]); err != nil {
			return 0, fmt.Errorf("sync region %s: %w", snap.Regions[i].Code, err)
		}
	}
	s.log.Info("regions synced", zap.Int("count", len(snap.Regions)))
	return len(snap.Regions), nil
}

// Quote prices a package for a billing cycle and add-on selection
func (s *CatalogService) Quote(ctx context.Context, slug string, months int, addons pricing.Addons) (*models.QuoteResponse, *models.Package, error) {
	pkg, err := s.GetPackage(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	q, err := pricing.NewQuote(pricing.FromFloat(pkg.PriceMonthly), months, addons)
	if err != nil {
		return nil, nil, err
	}

	return &models.QuoteResponse{
		SizeSlug:           pkg.Slug,
		BillingCycleMonths: months,
		Addons:             addons,
		Currency:           s.currency,
		BaseMonthly:        q.BaseMonthly.StringFixed(2),
		DiscountPercent:    q.DiscountRate.Shift(2).String(),
		DiscountedMonthly:  q.DiscountedMonthly.StringFixed(2),
		AddonsMonthly:      q.AddonsMonthly.StringFixed(2),
		MonthlyTotal:       q.MonthlyTotal.StringFixed(2),
		TermTotal:          pricing.FromCents(q.TermTotalCents).StringFixed(2),
		TermTotalCents:     q.TermTotalCents,
	}, pkg, nil
}

// Refresh fetches sizes and regions concurrently and replaces the cached catalog.
func (s *CatalogService) Refresh(ctx context.Context) error {
	_, err := s.refresh(ctx)
	return err
}

// Invalidate drops the cached catalog so the next read goes to the provider.
func (s *CatalogService) Invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, catalogCacheKey); err != nil {
		s.log.Warn("failed to invalidate catalog", zap.Error(err))
	}
}

func (s *CatalogService) refresh(ctx context.Context) (*catalogSnapshot, error) {
	snap := &catalogSnapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pkgs, err := s.provider.ListPackages(gctx)
		if err != nil {
			return fmt.Errorf("list packages: %w", err)
		}
		for i := range pkgs {
			pkgs[i].Slug = strings.TrimSpace(pkgs[i].Slug)
		}
		snap.Packages = pkgs
		return nil
	})
	g.Go(func() error {
		regions, err := s.provider.ListRegions(gctx)
		if err != nil {
			return fmt.Errorf("list regions: %w", err)
		}
		snap.Regions = regions
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, catalogCacheKey, snap, s.ttl); err != nil {
		s.log.Warn("failed to cache catalog", zap.Error(err))
	}
	return snap, nil
}

func (s *CatalogService) snapshot(ctx context.Context) (*catalogSnapshot, error) {
	var snap catalogSnapshot
	found, err := s.cache.Get(ctx, catalogCacheKey, &snap)
	if err != nil {
		s.log.Warn("catalog cache read failed", zap.Error(err))
	}
	if found {
		return &snap, nil
	}

	fresh, err := s.refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return fresh, nil
}
