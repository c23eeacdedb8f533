package client

import (
	"context"
	"errors"
)

var (
	ErrPaymentProvider    = errors.New("payment provider error")
	ErrInvalidWebhook     = errors.New("invalid webhook payload")
	ErrWebhookUnsupported = errors.New("unsupported webhook event")
)

// CheckoutSessionRequest is everything the payment page needs to charge a lease term.
type CheckoutSessionRequest struct {
	OrderID       string
	CustomerID    string
	CustomerEmail string
	ProductName   string
	Description   string
	AmountCents   int64
	Currency      string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentEvent is a verified, provider-neutral webhook notification.
type PaymentEvent struct {
	Type      string
	SessionID string
	OrderID   string
	Paid      bool
}

const PaymentEventCheckoutCompleted = "checkout.session.completed"

// PaymentGateway creates hosted checkout sessions and verifies their webhooks.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (*PaymentEvent, error)
}
