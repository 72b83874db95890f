package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// Provider represents the configured payment gateway backend.
type Provider string

const (
	ProviderFeePay  Provider = "feepay"
	ProviderSandbox Provider = "sandbox"
)

// OrderRequest asks the gateway to open an order for the given amount.
type OrderRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Receipt  string          `json:"receipt"`
	Account  string          `json:"account"`
	Note     string          `json:"note,omitempty"`
}

// Order is the gateway-issued order. Its ID is the stable reference the
// whole booking transaction hangs off.
type Order struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// PaymentRecord is the gateway's view of a captured payment, fetched to
// confirm funds before committing a booking.
type PaymentRecord struct {
	ID      string          `json:"id"`
	OrderID string          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
	Status  string          `json:"status"` // authorized, captured, failed, refunded
}

// Notification is an entry of the gateway's asynchronous transaction feed.
type Notification struct {
	OrderID   string          `json:"order_id"`
	PaymentID string          `json:"payment_id"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp int64           `json:"timestamp"`
}

// PaymentGateway is the single abstraction BookingTransaction talks to, so
// alternate gateways can be substituted without touching the core.
type PaymentGateway interface {
	// Provider returns the gateway backend type.
	Provider() Provider

	// CreateOrder opens an order; checkout happens client side against the
	// returned order id.
	CreateOrder(ctx context.Context, req *OrderRequest) (*Order, error)

	// VerifySignature recomputes the checkout signature over
	// orderID|paymentID with the shared secret.
	VerifySignature(orderID, paymentID, signature string) bool

	// FetchPayment confirms capture state with the gateway.
	FetchPayment(ctx context.Context, paymentID string) (*PaymentRecord, error)

	// Refund returns captured funds, used for manual reconciliation.
	Refund(ctx context.Context, paymentID string) error

	// SetNotificationChannel registers the channel receiving the gateway's
	// asynchronous transaction feed.
	SetNotificationChannel(ch chan *Notification)

	// Close gracefully shuts down any connections.
	Close(ctx context.Context) error
}

// SignPayload computes the hex HMAC-SHA256 checkout signature over
// orderID|paymentID. Both the server-side check and the sandbox gateway use
// the same primitive.
func SignPayload(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureValid compares a received signature against the expected one in
// constant time.
func SignatureValid(orderID, paymentID, signature, secret string) bool {
	expected := SignPayload(orderID, paymentID, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}
