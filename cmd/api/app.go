package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wenwu/saas-platform/lease-service/internal/cache"
	"github.com/wenwu/saas-platform/lease-service/internal/client"
	"github.com/wenwu/saas-platform/lease-service/internal/clock"
	"github.com/wenwu/saas-platform/lease-service/internal/config"
	"github.com/wenwu/saas-platform/lease-service/internal/db"
	"github.com/wenwu/saas-platform/lease-service/internal/http"
	"github.com/wenwu/saas-platform/lease-service/internal/metrics"
	"github.com/wenwu/saas-platform/lease-service/internal/repository"
	"github.com/wenwu/saas-platform/lease-service/internal/service"
)

// app holds the wired dependency graph shared by the commands
type app struct {
	pool     *pgxpool.Pool
	redis    *cache.RedisCache
	payments client.PaymentGateway

	catalog   *service.CatalogService
	customers *service.CustomerService
	leases    *service.LeaseService
	orders    *service.OrderService
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, autoMigrate bool) (*app, error) {
	a := &app{}
	clk := clock.New()

	var store *repository.Store
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		mdb := repository.NewMemoryDB()
		mdb.SetClock(clk.Now)
		store = mdb.Store()
	default:
		pool, err := db.NewPool(ctx, &cfg.Database, log)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		if autoMigrate {
			if err := db.Migrate(pool); err != nil {
				a.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		store = repository.NewPostgresStore(pool)
	}

	var c cache.Cache = cache.NewMemory()
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedis(ctx, cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = rc
		c = rc
	}

	provider := client.NewDigitalOceanClient(cfg.Provider.Token, log)
	a.payments = client.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL)
	m := metrics.New(prometheus.DefaultRegisterer)

	a.catalog = service.NewCatalogService(provider, store.Regions, c, cfg.Billing.CatalogCacheTTL, cfg.Billing.Currency, log)
	a.customers = service.NewCustomerService(store.Customers, log)
	a.leases = service.NewLeaseService(store, clk, m, log, cfg.Billing.Currency)
	a.orders = service.NewOrderService(cfg, store, a.catalog, a.customers, a.leases, a.payments, provider, clk, m, log)

	return a, nil
}

func (a *app) httpServices() *http.Services {
	return &http.Services{
		Catalog:   a.catalog,
		Customers: a.customers,
		Orders:    a.orders,
		Leases:    a.leases,
		Payments:  a.payments,
	}
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
