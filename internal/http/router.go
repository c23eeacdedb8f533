package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wenwu/saas-platform/lease-service/internal/client"
	"github.com/wenwu/saas-platform/lease-service/internal/config"
	"github.com/wenwu/saas-platform/lease-service/internal/logger"
	"github.com/wenwu/saas-platform/lease-service/internal/service"
)

// RateLimiter 简单的内存速率限制器 (滑动窗口)
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int           // 最大请求数
	window   time.Duration // 时间窗口
	now      func() time.Time
}

// NewRateLimiter 创建速率限制器
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.window)

	// 清理过期请求
	var valid []time.Time
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// RateLimitMiddleware 速率限制中间件
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 使用用户 ID 或 IP 作为限制 key
		key := c.GetString(ctxUserID)
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, please try again later",
			})
			return
		}

		c.Next()
	}
}

// Services bundles what the HTTP layer calls into
type Services struct {
	Catalog   *service.CatalogService
	Customers *service.CustomerService
	Orders    *service.OrderService
	Leases    *service.LeaseService
	Payments  client.PaymentGateway
}

type Server struct {
	router  *gin.Engine
	handler *Handler
	cfg     *config.Config
	log     *zap.Logger

	// 每用户每分钟最多 30 次请求
	userLimiter *RateLimiter
	// 每用户每小时最多 10 次下单，足够覆盖支付重试
	checkoutLimiter *RateLimiter
}

func NewServer(cfg *config.Config, svc *Services, log *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(logger.GinMiddleware(log))

	s := &Server{
		router:          router,
		handler:         NewHandler(svc, log),
		cfg:             cfg,
		log:             log,
		userLimiter:     NewRateLimiter(30, time.Minute),
		checkoutLimiter: NewRateLimiter(10, time.Hour),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "lease-service",
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public API - storefront catalog, no authentication
	public := s.router.Group("/api/v1/public")
	{
		public.GET("/regions", s.handler.GetRegions)
		public.GET("/packages", s.handler.GetPackages)
		public.GET("/quote", s.handler.GetQuote)
	}

	// Customer API - requires JWT authentication
	user := s.router.Group("/api/v1")
	user.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	user.Use(RateLimitMiddleware(s.userLimiter))
	{
		user.POST("/checkout", RateLimitMiddleware(s.checkoutLimiter), s.handler.Checkout)
		user.GET("/my/orders", s.handler.GetMyOrders)
		user.GET("/my/leases", s.handler.GetMyLeases)
		user.GET("/my/leases/:id", s.handler.GetMyLease)
		user.POST("/my/leases/:id/cancel", s.handler.CancelMyLease)
	}

	// Internal API - called by billing jobs and admin tooling
	internal := s.router.Group("/api/internal")
	internal.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		internal.POST("/orders/:id/complete", s.handler.CompleteOrder)
		internal.POST("/leases/sweep", s.handler.SweepLeases)
		internal.POST("/leases/:id/cancel", s.handler.CancelLease)
		internal.GET("/leases/:id/logs", s.handler.GetLeaseLogs)
		internal.POST("/billing-cycles/:id/pay", s.handler.PayBillingCycle)
		internal.POST("/regions/sync", s.handler.SyncRegions)
	}

	// Payment provider callbacks, authenticated by signature
	s.router.POST("/api/webhooks/stripe", s.handler.StripeWebhook)
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.log.Info("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}
