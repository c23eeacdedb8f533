package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wenwu/saas-platform/lease-service/internal/billing"
	"github.com/wenwu/saas-platform/lease-service/internal/client"
	"github.com/wenwu/saas-platform/lease-service/internal/models"
	"github.com/wenwu/saas-platform/lease-service/internal/pricing"
	"github.com/wenwu/saas-platform/lease-service/internal/service"
)

type Handler struct {
	svc *Services
	log *zap.Logger
}

func NewHandler(svc *Services, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log.Named("http")}
}

// writeError maps service errors onto HTTP status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidHostname),
		errors.Is(err, service.ErrPackageNotFound),
		errors.Is(err, service.ErrPackageUnavailable),
		errors.Is(err, service.ErrRegionUnavailable),
		errors.Is(err, pricing.ErrUnsupportedBillingCycle),
		errors.Is(err, billing.ErrInvalidTerm):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrLeaseNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrCycleNotFound),
		errors.Is(err, service.ErrCustomerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidOrderTransition),
		errors.Is(err, service.ErrInvalidLeaseTransition),
		errors.Is(err, service.ErrInvalidCycleTransition),
		errors.Is(err, service.ErrSessionMismatch):
		status = http.StatusConflict
	case errors.Is(err, service.ErrProvisioningFailed),
		errors.Is(err, client.ErrPaymentProvider),
		errors.Is(err, client.ErrProviderUnavailable):
		status = http.StatusBadGateway
	}

	_ = c.Error(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// ==================== Public API Handlers ====================

// GetRegions returns the regions a lease can be placed in
func (h *Handler) GetRegions(c *gin.Context) {
	regions, err := h.svc.Catalog.ListRegions(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := models.RegionListResponse{Regions: make([]models.RegionInfo, 0, len(regions))}
	for _, r := range regions {
		resp.Regions = append(resp.Regions, models.RegionInfo{
			Code:      r.Code,
			Name:      r.Name,
			Provider:  r.Provider,
			Available: r.Available,
		})
	}
	c.JSON(http.StatusOK, resp)
}

type packagesQuery struct {
	Region      string `form:"region"`
	MinVCPUs    int    `form:"min_vcpus"`
	MinMemoryMB int    `form:"min_memory_mb"`
	All         bool   `form:"all"`
	Sort        string `form:"sort"`
}

// GetPackages lists the package catalog. Unavailable packages are hidden unless all=true.
func (h *Handler) GetPackages(c *gin.Context) {
	var q packagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pkgs, err := h.svc.Catalog.ListPackages(c.Request.Context(), service.PackageFilter{
		Region:        q.Region,
		MinVCPUs:      q.MinVCPUs,
		MinMemoryMB:   q.MinMemoryMB,
		AvailableOnly: !q.All,
		Sort:          q.Sort,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.PackageListResponse{Packages: pkgs})
}

type quoteQuery struct {
	SizeSlug  string `form:"size_slug" binding:"required"`
	Months    int    `form:"billing_cycle_months" binding:"required"`
	Plesk     bool   `form:"plesk"`
	LiteSpeed bool   `form:"litespeed"`
	ExtraIPv4 bool   `form:"extra_ipv4"`
}

// GetQuote prices a package for a billing cycle
func (h *Handler) GetQuote(c *gin.Context) {
	var q quoteQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quote, _, err := h.svc.Catalog.Quote(c.Request.Context(), q.SizeSlug, q.Months, pricing.Addons{
		Plesk:     q.Plesk,
		LiteSpeed: q.LiteSpeed,
		ExtraIPv4: q.ExtraIPv4,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// ==================== Customer API Handlers ====================

// Checkout creates a pending order and returns the payment page URL
func (h *Handler) Checkout(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.svc.Orders.StartCheckout(c.Request.Context(), c.GetString(ctxEmail), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetMyOrders returns the dashboard view of the caller's orders
func (h *Handler) GetMyOrders(c *gin.Context) {
	orders, err := h.svc.Orders.ListDashboardOrders(c.Request.Context(), c.GetString(ctxEmail))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// GetMyLeases lists the caller's leases without their billing cycles
func (h *Handler) GetMyLeases(c *gin.Context) {
	customer, err := h.svc.Customers.FindByEmail(c.Request.Context(), c.GetString(ctxEmail))
	if errors.Is(err, service.ErrCustomerNotFound) {
		c.JSON(http.StatusOK, gin.H{"leases": []models.LeaseInfo{}})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	leases, err := h.svc.Leases.ListLeases(c.Request.Context(), customer.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]models.LeaseInfo, 0, len(leases))
	for _, l := range leases {
		out = append(out, toLeaseInfo(l, nil))
	}
	c.JSON(http.StatusOK, gin.H{"leases": out})
}

// GetMyLease returns one of the caller's leases with its billing cycles
func (h *Handler) GetMyLease(c *gin.Context) {
	customerID, ok := h.currentCustomerID(c)
	if !ok {
		return
	}

	detail, err := h.svc.Leases.GetLease(c.Request.Context(), customerID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLeaseInfo(detail.Lease, detail.Cycles))
}

// CancelMyLease cancels one of the caller's active leases
func (h *Handler) CancelMyLease(c *gin.Context) {
	customerID, ok := h.currentCustomerID(c)
	if !ok {
		return
	}

	lease, err := h.svc.Leases.CancelLease(c.Request.Context(), customerID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLeaseInfo(lease, nil))
}

// currentCustomerID resolves the JWT email to a customer. A caller that never
// checked out owns no leases, so lookups by id answer 404.
func (h *Handler) currentCustomerID(c *gin.Context) (string, bool) {
	customer, err := h.svc.Customers.FindByEmail(c.Request.Context(), c.GetString(ctxEmail))
	if errors.Is(err, service.ErrCustomerNotFound) {
		h.writeError(c, service.ErrLeaseNotFound)
		return "", false
	}
	if err != nil {
		h.writeError(c, err)
		return "", false
	}
	return customer.ID, true
}

// ==================== Internal API Handlers ====================

// CompleteOrder provisions a paid order, for callers that confirm payment out of band
func (h *Handler) CompleteOrder(c *gin.Context) {
	var req models.CompleteOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	order, err := h.svc.Orders.CompleteOrder(c.Request.Context(), c.Param("id"), req.SessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, service.ToDashboardOrder(order))
}

// SweepLeases runs one expiration sweep
func (h *Handler) SweepLeases(c *gin.Context) {
	result, err := h.svc.Leases.CheckLeaseExpirations(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SweepResponse{
		ExpiredLeases: len(result.ExpiredLeases),
		OverdueCycles: len(result.OverdueCycles),
	})
}

// CancelLease cancels any active lease regardless of owner
func (h *Handler) CancelLease(c *gin.Context) {
	lease, err := h.svc.Leases.CancelLease(c.Request.Context(), "", c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLeaseInfo(lease, nil))
}

// GetLeaseLogs returns recent lifecycle log entries of a lease
func (h *Handler) GetLeaseLogs(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	logs, err := h.svc.Leases.LeaseLogs(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(logs))
	for _, l := range logs {
		out = append(out, gin.H{
			"action":     l.Action,
			"status":     l.Status,
			"message":    l.Message,
			"metadata":   l.Metadata,
			"created_at": l.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"logs": out})
}

// PayBillingCycle records payment of a billing cycle
func (h *Handler) PayBillingCycle(c *gin.Context) {
	cycle, err := h.svc.Leases.PayBillingCycle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCycleInfo(cycle))
}

// SyncRegions pulls regions from the compute provider into the database
func (h *Handler) SyncRegions(c *gin.Context) {
	n, err := h.svc.Catalog.SyncRegions(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": n})
}

// ==================== View conversion ====================

func toLeaseInfo(l *models.Lease, cycles []*models.BillingCycle) models.LeaseInfo {
	info := models.LeaseInfo{
		LeaseID:      l.ID,
		CustomerID:   l.CustomerID,
		InstanceID:   l.InstanceID,
		Hostname:     l.Hostname,
		Region:       l.Region,
		SizeSlug:     l.SizeSlug,
		MonthlyPrice: pricing.FromCents(l.MonthlyPriceCents).StringFixed(2),
		Currency:     l.Currency,
		StartDate:    l.StartDate.Format(time.RFC3339),
		EndDate:      l.EndDate.Format(time.RFC3339),
		TermMonths:   billing.MonthOffset(l.StartDate, l.EndDate),
		Status:       l.Status,
	}
	for _, cy := range cycles {
		info.BillingCycles = append(info.BillingCycles, toCycleInfo(cy))
	}
	return info
}

func toCycleInfo(cy *models.BillingCycle) models.BillingCycleInfo {
	info := models.BillingCycleInfo{
		CycleID:  cy.ID,
		Sequence: cy.Sequence,
		Amount:   pricing.FromCents(cy.AmountCents).StringFixed(2),
		DueDate:  cy.DueDate.Format(time.RFC3339),
		Status:   cy.Status,
	}
	if cy.PaidDate != nil {
		paid := cy.PaidDate.Format(time.RFC3339)
		info.PaidDate = &paid
	}
	return info
}
