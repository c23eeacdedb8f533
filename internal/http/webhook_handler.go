package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wenwu/saas-platform/lease-service/internal/client"
	"github.com/wenwu/saas-platform/lease-service/internal/service"
)

// Upper bound on a buffered webhook body.
const maxWebhookBody = 65536

// StripeWebhook verifies a Stripe event and completes the paid order behind it.
// Event types other than a completed checkout are acknowledged and dropped.
func (h *Handler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}

	ev, err := h.svc.Payments.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if errors.Is(err, client.ErrWebhookUnsupported) {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	if err != nil {
		h.log.Warn("rejected stripe webhook", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook"})
		return
	}

	order, err := h.svc.Orders.HandlePaymentEvent(c.Request.Context(), ev)
	if err != nil {
		h.log.Error("payment event not applied",
			zap.String("session_id", ev.SessionID),
			zap.String("order_id", ev.OrderID),
			zap.Error(err),
		)
		// 上游故障返回 5xx 让 Stripe 重投；业务错误重试无意义，直接确认
		if retryable(err) {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true, "error": err.Error()})
		return
	}

	resp := gin.H{"received": true}
	if order != nil {
		resp["order_id"] = order.ID
		resp["status"] = order.Status
	}
	c.JSON(http.StatusOK, resp)
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrSessionMismatch),
		errors.Is(err, service.ErrInvalidOrderTransition):
		return false
	}
	return true
}
