package client

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func signedPayload(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Header, signed.Payload
}

func TestStripeGateway_ParseWebhook_CheckoutCompleted(t *testing.T) {
	g := NewStripeGateway("sk_test_x", testWebhookSecret, "https://example.com/ok", "https://example.com/cancel")

	payload := `{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_123",
			"object": "checkout.session",
			"payment_status": "paid",
			"client_reference_id": "order-ref",
			"metadata": {"order_id": "order-abc"}
		}}
	}`
	header, body := signedPayload(t, payload)

	ev, err := g.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, PaymentEventCheckoutCompleted, ev.Type)
	assert.Equal(t, "cs_test_123", ev.SessionID)
	assert.Equal(t, "order-abc", ev.OrderID)
	assert.True(t, ev.Paid)
}

func TestStripeGateway_ParseWebhook_FallsBackToClientReference(t *testing.T) {
	g := NewStripeGateway("sk_test_x", testWebhookSecret, "", "")

	payload := `{"id":"evt_2","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_2","object":"checkout.session","payment_status":"unpaid","client_reference_id":"order-ref"}}}`
	header, body := signedPayload(t, payload)

	ev, err := g.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, "order-ref", ev.OrderID)
	assert.False(t, ev.Paid)
}

func TestStripeGateway_ParseWebhook_Rejects(t *testing.T) {
	g := NewStripeGateway("sk_test_x", testWebhookSecret, "", "")

	_, err := g.ParseWebhook([]byte(`{"id":"evt_3"}`), "t=1,v1=bad")
	assert.ErrorIs(t, err, ErrInvalidWebhook)

	header, body := signedPayload(t, `{"id":"evt_4","object":"event","type":"invoice.paid","data":{"object":{}}}`)
	_, err = g.ParseWebhook(body, header)
	assert.ErrorIs(t, err, ErrWebhookUnsupported)
}

func TestDropletName(t *testing.T) {
	tests := []struct {
		prefix, hostname, want string
	}{
		{"", "Web-1.example.com", "web-1.example.com"},
		{"lease", " db.example.com ", "lease-db.example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DropletName(tt.prefix, tt.hostname), fmt.Sprintf("%q", tt.hostname))
	}
}
