package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wenwu/saas-platform/lease-service/internal/cache"
	"github.com/wenwu/saas-platform/lease-service/internal/client"
	"github.com/wenwu/saas-platform/lease-service/internal/clock"
	"github.com/wenwu/saas-platform/lease-service/internal/config"
	"github.com/wenwu/saas-platform/lease-service/internal/metrics"
	"github.com/wenwu/saas-platform/lease-service/internal/models"
	"github.com/wenwu/saas-platform/lease-service/internal/repository"
)

var t0 = time.Date(2024, 10, 10, 9, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu        sync.Mutex
	packages  []models.Package
	regions   []models.Region
	listCalls int
	createErr error
	created   []client.DropletRequest
	deleted   []string
	nextID    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		packages: []models.Package{
			{Slug: "s-1vcpu-1gb", VCPUs: 1, MemoryMB: 1024, DiskGB: 25, TransferGB: 1024, PriceMonthly: 6, Regions: []string{"fra1", "ams3"}, Available: true},
			{Slug: "s-2vcpu-4gb", VCPUs: 2, MemoryMB: 4096, DiskGB: 80, TransferGB: 4096, PriceMonthly: 24, Regions: []string{"fra1"}, Available: true},
			{Slug: "s-8vcpu-16gb", VCPUs: 8, MemoryMB: 16384, DiskGB: 320, TransferGB: 6144, PriceMonthly: 64, Regions: []string{"fra1", "nyc3"}, Available: true},
			{Slug: "legacy-512mb", VCPUs: 1, MemoryMB: 512, DiskGB: 20, TransferGB: 1024, PriceMonthly: 4, Regions: []string{"fra1"}, Available: false},
		},
		regions: []models.Region{
			{Code: "fra1", Name: "Frankfurt 1", Provider: models.ProviderDigitalOcean, Available: true},
			{Code: "ams3", Name: "Amsterdam 3", Provider: models.ProviderDigitalOcean, Available: true},
			{Code: "nyc1", Name: "New York 1", Provider: models.ProviderDigitalOcean, Available: false},
		},
		nextID: 1000,
	}
}

func (p *fakeProvider) ListPackages(context.Context) ([]models.Package, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	return append([]models.Package(nil), p.packages...), nil
}

func (p *fakeProvider) ListRegions(context.Context) ([]models.Region, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Region(nil), p.regions...), nil
}

func (p *fakeProvider) CreateDroplet(_ context.Context, req *client.DropletRequest) (*client.Droplet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.nextID++
	p.created = append(p.created, *req)
	return &client.Droplet{ID: strconv.Itoa(p.nextID), Name: req.Name, Region: req.Region, Size: req.Size, Status: "new"}, nil
}

func (p *fakeProvider) DeleteDroplet(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, id)
	return nil
}

// cancellingProvider cancels the caller's context once the droplet exists.
type cancellingProvider struct {
	*fakeProvider
	cancel context.CancelFunc
}

func (p *cancellingProvider) CreateDroplet(ctx context.Context, req *client.DropletRequest) (*client.Droplet, error) {
	d, err := p.fakeProvider.CreateDroplet(ctx, req)
	p.cancel()
	return d, err
}

// ctxOrders and ctxTx fail on a done context the way the pgx stores do.
type ctxOrders struct {
	repository.OrderStore
}

func (o ctxOrders) SetInstance(ctx context.Context, id, instanceID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("set order instance: %w", err)
	}
	return o.OrderStore.SetInstance(ctx, id, instanceID)
}

func (o ctxOrders) MarkActive(ctx context.Context, id, leaseID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mark order active: %w", err)
	}
	return o.OrderStore.MarkActive(ctx, id, leaseID)
}

func (o ctxOrders) MarkFailed(ctx context.Context, id, message string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mark order failed: %w", err)
	}
	return o.OrderStore.MarkFailed(ctx, id, message)
}

type ctxTx struct {
	repository.TxManager
}

func (t ctxTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	return t.TxManager.RunInTx(ctx, fn)
}

type fakeGateway struct {
	mu       sync.Mutex
	err      error
	requests []client.CheckoutSessionRequest
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req *client.CheckoutSessionRequest) (*client.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.requests = append(g.requests, *req)
	id := "cs_test_" + req.OrderID
	return &client.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (g *fakeGateway) ParseWebhook([]byte, string) (*client.PaymentEvent, error) {
	return nil, errors.New("not used")
}

// failingCycles makes every cycle insert fail.
type failingCycles struct {
	repository.BillingCycleStore
}

func (failingCycles) CreateBatch(context.Context, []models.BillingCycle) error {
	return errors.New("disk full")
}

type testEnv struct {
	cfg       *config.Config
	store     *repository.Store
	clock     *clock.FakeClock
	provider  *fakeProvider
	gateway   *fakeGateway
	catalog   *CatalogService
	customers *CustomerService
	leases    *LeaseService
	orders    *OrderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Billing:  config.BillingConfig{Currency: "eur", CatalogCacheTTL: time.Minute, ProvisioningTimeout: 15 * time.Minute},
		Provider: config.ProviderConfig{DefaultImage: "ubuntu-22-04-x64", DefaultRegion: "fra1"},
	}
	log := zap.NewNop()
	clk := clock.NewFakeClock(t0)
	db := repository.NewMemoryDB()
	db.SetClock(clk.Now)
	store := db.Store()
	m := metrics.New(prometheus.NewRegistry())
	provider := newFakeProvider()
	gateway := &fakeGateway{}

	catalog := NewCatalogService(provider, store.Regions, cache.NewMemory(), cfg.Billing.CatalogCacheTTL, cfg.Billing.Currency, log)
	customers := NewCustomerService(store.Customers, log)
	leases := NewLeaseService(store, clk, m, log, cfg.Billing.Currency)
	orders := NewOrderService(cfg, store, catalog, customers, leases, gateway, provider, clk, m, log)

	return &testEnv{
		cfg:       cfg,
		store:     store,
		clock:     clk,
		provider:  provider,
		gateway:   gateway,
		catalog:   catalog,
		customers: customers,
		leases:    leases,
		orders:    orders,
	}
}

func (e *testEnv) customer(t *testing.T, email string) *models.Customer {
	t.Helper()
	c, err := e.customers.GetOrCreate(context.Background(), "", email)
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return c
}
