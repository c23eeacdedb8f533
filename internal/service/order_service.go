package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wenwu/saas-platform/lease-service/internal/client"
	"github.com/wenwu/saas-platform/lease-service/internal/clock"
	"github.com/wenwu/saas-platform/lease-service/internal/config"
	"github.com/wenwu/saas-platform/lease-service/internal/metrics"
	"github.com/wenwu/saas-platform/lease-service/internal/models"
	"github.com/wenwu/saas-platform/lease-service/internal/pricing"
	"github.com/wenwu/saas-platform/lease-service/internal/repository"
)

// Provisioning age after which an order without a lease is retried.
const defaultProvisioningTimeout = 15 * time.Minute

// RFC 1123 labels, dot separated, at most 253 characters overall.
var hostnamePattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

// OrderService handles checkout and turns paid orders into leases
type OrderService struct {
	cfg       *config.Config
	store     *repository.Store
	catalog   *CatalogService
	customers *CustomerService
	leases    *LeaseService
	payments  client.PaymentGateway
	provider  client.ComputeProvider
	clock     clock.Clock
	metrics   *metrics.LeaseMetrics
	log       *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	cfg *config.Config,
	store *repository.Store,
	catalog *CatalogService,
	customers *CustomerService,
	leases *LeaseService,
	payments client.PaymentGateway,
	provider client.ComputeProvider,
	clk clock.Clock,
	m *metrics.LeaseMetrics,
	log *zap.Logger,
) *OrderService {
	return &OrderService{
		cfg:       cfg,
		store:     store,
		catalog:   catalog,
		customers: customers,
		leases:    leases,
		payments:  payments,
		provider:  provider,
		clock:     clk,
		metrics:   m,
		log:       log.Named("order"),
	}
}

// NormalizeHostname lower-cases a hostname and checks it is RFC 1123 valid.
func NormalizeHostname(hostname string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(hostname))
	if h == "" || len(h) > 253 || !hostnamePattern.MatchString(h) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHostname, hostname)
	}
	return h, nil
}

// StartCheckout prices the requested package, records a pending order and
// opens a payment session for the full term.
func (s *OrderService) StartCheckout(ctx context.Context, customerEmail string, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	hostname, err := NormalizeHostname(req.Hostname)
	if err != nil {
		return nil, err
	}
	region := strings.ToLower(strings.TrimSpace(req.Region))
	if region == "" {
		region = s.cfg.Provider.DefaultRegion
	}

	pkg, err := s.catalog.GetPackage(ctx, req.SizeSlug)
	if err != nil {
		return nil, err
	}
	q, err := pricing.NewQuote(pricing.FromFloat(pkg.PriceMonthly), req.BillingCycleMonths, req.Addons)
	if err != nil {
		return nil, err
	}
	if !pkg.Available {
		return nil, fmt.Errorf("%w: %s", ErrPackageUnavailable, pkg.Slug)
	}
	if !pkg.OfferedIn(region) {
		return nil, fmt.Errorf("%w: %s in %s", ErrRegionUnavailable, pkg.Slug, region)
	}
	if err := s.catalog.CheckRegion(ctx, region); err != nil {
		return nil, err
	}

	customer, err := s.customers.GetOrCreate(ctx, req.CustomerName, customerEmail)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	order := &models.Order{
		ID:                 uuid.New().String(),
		CustomerID:         customer.ID,
		CustomerEmail:      customer.Email,
		Status:             models.OrderStatusPending,
		Hostname:           hostname,
		Region:             region,
		SizeSlug:           pkg.Slug,
		BillingCycleMonths: req.BillingCycleMonths,
		Config: models.OrderConfig{
			Package: models.PackageSpec{
				Slug:       pkg.Slug,
				VCPUs:      pkg.VCPUs,
				MemoryMB:   pkg.MemoryMB,
				DiskGB:     pkg.DiskGB,
				TransferGB: pkg.TransferGB,
			},
			Addons: req.Addons,
		},
		MonthlyPriceCents: q.MonthlyTotalCents(),
		AmountCents:       q.TermTotalCents,
		Currency:          s.cfg.Billing.Currency,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	session, err := s.payments.CreateCheckoutSession(ctx, &client.CheckoutSessionRequest{
		OrderID:       order.ID,
		CustomerID:    customer.ID,
		CustomerEmail: customer.Email,
		ProductName:   fmt.Sprintf("VPS %s (%s)", pkg.Slug, hostname),
		Description:   fmt.Sprintf("%d month lease in %s", req.BillingCycleMonths, region),
		AmountCents:   order.AmountCents,
		Currency:      order.Currency,
	})
	if err != nil {
		s.metrics.Checkout(metrics.CheckoutFailed)
		if markErr := s.store.Orders.MarkFailed(ctx, order.ID, err.Error()); markErr != nil {
			s.log.Error("failed to mark order failed", zap.String("order_id", order.ID), zap.Error(markErr))
		}
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	if err := s.store.Orders.SetCheckoutSession(ctx, order.ID, session.ID); err != nil {
		return nil, fmt.Errorf("store checkout session: %w", err)
	}

	s.metrics.Checkout(metrics.CheckoutStarted)
	s.log.Info("checkout started",
		zap.String("order_id", order.ID),
		zap.String("customer_id", customer.ID),
		zap.String("size", pkg.Slug),
		zap.Int("months", req.BillingCycleMonths),
		zap.Int64("amount_cents", order.AmountCents),
	)

	return &models.CheckoutResponse{
		OrderID:     order.ID,
		SessionURL:  session.URL,
		AmountCents: order.AmountCents,
		Currency:    order.Currency,
	}, nil
}

// CompleteOrder provisions the droplet of a paid order and creates its lease.
// Repeated calls for an active order return it unchanged. A provisioning order
// is returned as is while it is in flight and retried once it has been stuck
// longer than the provisioning timeout. If the lease cannot be stored the
// droplet is deleted again and the order is marked failed.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID, sessionID string) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if sessionID != "" && (order.CheckoutSessionID == nil || *order.CheckoutSessionID != sessionID) {
		return nil, ErrSessionMismatch
	}

	switch order.Status {
	case models.OrderStatusActive:
		return order, nil
	case models.OrderStatusProvisioning:
		settled, err := s.recoverProvisioning(ctx, order)
		if err != nil || settled != nil {
			return settled, err
		}
	case models.OrderStatusPending:
		if err := s.store.Orders.TransitionStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusPaid); err != nil {
			return s.resolveRace(ctx, order.ID, err)
		}
	case models.OrderStatusPaid:
	default:
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidOrderTransition, order.Status)
	}

	if err := s.store.Orders.TransitionStatus(ctx, order.ID, models.OrderStatusPaid, models.OrderStatusProvisioning); err != nil {
		return s.resolveRace(ctx, order.ID, err)
	}

	droplet, err := s.provider.CreateDroplet(ctx, &client.DropletRequest{
		Name:   client.DropletName(s.cfg.Billing.DropletNamePrefix, order.Hostname),
		Region: order.Region,
		Size:   order.SizeSlug,
		Image:  s.cfg.Provider.DefaultImage,
		Tags:   dropletTags(order),
	})
	if err != nil {
		s.fail(ctx, order.ID, fmt.Sprintf("create droplet: %v", err))
		s.catalog.Invalidate(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	if err := s.store.Orders.SetInstance(ctx, order.ID, droplet.ID); err != nil {
		s.log.Warn("failed to store droplet id", zap.String("order_id", order.ID), zap.Error(err))
	}

	var lease *models.Lease
	err = s.store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		l, _, err := s.leases.CreateLease(ctx, &CreateLeaseInput{
			CustomerID:        order.CustomerID,
			OrderID:           order.ID,
			InstanceID:        droplet.ID,
			Hostname:          order.Hostname,
			Region:            order.Region,
			SizeSlug:          order.SizeSlug,
			MonthlyPriceCents: order.MonthlyPriceCents,
			Months:            order.BillingCycleMonths,
		})
		if err != nil {
			return err
		}
		lease = l
		return s.store.Orders.MarkActive(ctx, order.ID, l.ID)
	})
	if err != nil {
		s.compensate(order.ID, droplet.ID)
		s.fail(ctx, order.ID, fmt.Sprintf("create lease: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	s.metrics.Checkout(metrics.CheckoutCompleted)
	s.log.Info("order completed",
		zap.String("order_id", order.ID),
		zap.String("lease_id", lease.ID),
		zap.String("droplet_id", droplet.ID),
	)
	return s.getOrder(ctx, order.ID)
}

// HandlePaymentEvent completes the order behind a paid checkout session.
// Unpaid sessions are acknowledged and ignored.
func (s *OrderService) HandlePaymentEvent(ctx context.Context, ev *client.PaymentEvent) (*models.Order, error) {
	if !ev.Paid {
		s.log.Info("ignoring unpaid checkout session", zap.String("session_id", ev.SessionID))
		return nil, nil
	}

	orderID := ev.OrderID
	if orderID == "" {
		o, err := s.store.Orders.GetByCheckoutSessionID(ctx, ev.SessionID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get order by session: %w", err)
		}
		orderID = o.ID
	}
	return s.CompleteOrder(ctx, orderID, ev.SessionID)
}

// ListDashboardOrders returns the dashboard view of a customer's orders.
// An email that never checked out has no orders.
func (s *OrderService) ListDashboardOrders(ctx context.Context, customerEmail string) ([]models.DashboardOrder, error) {
	customer, err := s.customers.FindByEmail(ctx, customerEmail)
	if errors.Is(err, ErrCustomerNotFound) {
		return []models.DashboardOrder{}, nil
	}
	if err != nil {
		return nil, err
	}

	orders, err := s.store.Orders.ListByCustomer(ctx, customer.ID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	out := make([]models.DashboardOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, ToDashboardOrder(o))
	}
	return out, nil
}

// ToDashboardOrder flattens an order for the customer dashboard
func ToDashboardOrder(o *models.Order) models.DashboardOrder {
	return models.DashboardOrder{
		OrderID:            o.ID,
		Status:             o.Status,
		Hostname:           o.Hostname,
		Region:             o.Region,
		SizeSlug:           o.SizeSlug,
		BillingCycleMonths: o.BillingCycleMonths,
		Config:             o.Config,
		MonthlyPrice:       pricing.FromCents(o.MonthlyPriceCents).StringFixed(2),
		Amount:             pricing.FromCents(o.AmountCents).StringFixed(2),
		Currency:           o.Currency,
		LeaseID:            o.LeaseID,
		ErrorMessage:       o.ErrorMessage,
		CreatedAt:          o.CreatedAt.Format(time.RFC3339),
	}
}

func (s *OrderService) getOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := s.store.Orders.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// resolveRace handles a lost status transition: another caller moved the order first.
func (s *OrderService) resolveRace(ctx context.Context, id string, err error) (*models.Order, error) {
	if !errors.Is(err, repository.ErrStaleStatus) {
		return nil, fmt.Errorf("transition order: %w", err)
	}
	o, getErr := s.getOrder(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if o.Status == models.OrderStatusActive || o.Status == models.OrderStatusProvisioning {
		return o, nil
	}
	return nil, fmt.Errorf("%w: order is %s", ErrInvalidOrderTransition, o.Status)
}

// recoverProvisioning settles an order found in provisioning. It returns the
// order to report, or nil when the order was moved back to paid and should be
// provisioned again.
func (s *OrderService) recoverProvisioning(ctx context.Context, order *models.Order) (*models.Order, error) {
	lease, err := s.store.Leases.GetByOrderID(ctx, order.ID)
	switch {
	case err == nil:
		if err := s.store.Orders.MarkActive(ctx, order.ID, lease.ID); err != nil {
			return nil, fmt.Errorf("mark order active: %w", err)
		}
		s.log.Warn("order had a lease but was still provisioning",
			zap.String("order_id", order.ID),
			zap.String("lease_id", lease.ID),
		)
		return s.getOrder(ctx, order.ID)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("get lease by order: %w", err)
	}

	timeout := s.cfg.Billing.ProvisioningTimeout
	if timeout <= 0 {
		timeout = defaultProvisioningTimeout
	}
	age := s.clock.Now().Sub(order.UpdatedAt)
	if age < timeout {
		return order, nil
	}

	if err := s.store.Orders.TransitionStatus(ctx, order.ID, models.OrderStatusProvisioning, models.OrderStatusPaid); err != nil {
		return s.resolveRace(ctx, order.ID, err)
	}
	s.log.Warn("retrying stale provisioning", zap.String("order_id", order.ID), zap.Duration("age", age))
	if order.InstanceID != nil {
		s.compensate(order.ID, *order.InstanceID)
	}
	return nil, nil
}

// fail marks the order failed. The update runs detached from ctx so that a
// caller hanging up does not leave the order in provisioning.
func (s *OrderService) fail(ctx context.Context, orderID, message string) {
	s.metrics.Checkout(metrics.CheckoutFailed)
	s.log.Error("order failed", zap.String("order_id", orderID), zap.String("reason", message))
	if err := s.store.Orders.MarkFailed(context.WithoutCancel(ctx), orderID, message); err != nil {
		s.log.Error("failed to mark order failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

// compensate deletes a droplet whose lease could not be stored. It runs on a
// fresh context so a cancelled request does not leak the droplet.
func (s *OrderService) compensate(orderID, dropletID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.provider.DeleteDroplet(ctx, dropletID); err != nil {
		s.log.Error("failed to delete orphaned droplet",
			zap.String("order_id", orderID),
			zap.String("droplet_id", dropletID),
			zap.Error(err),
		)
		return
	}
	s.log.Warn("deleted droplet after lease creation failed",
		zap.String("order_id", orderID),
		zap.String("droplet_id", dropletID),
	)
}

func dropletTags(o *models.Order) []string {
	tags := []string{"lease-service", "order-" + o.ID}
	if o.Config.Addons.Plesk {
		tags = append(tags, "addon-plesk")
	}
	if o.Config.Addons.LiteSpeed {
		tags = append(tags, "addon-litespeed")
	}
	if o.Config.Addons.ExtraIPv4 {
		tags = append(tags, "addon-extra-ipv4")
	}
	return tags
}
