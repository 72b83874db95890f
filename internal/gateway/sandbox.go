package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Sandbox is an in-process gateway for development and tests. Orders live in
// memory; CompletePayment plays the role of the client-side checkout and the
// bank settlement in one step.
type Sandbox struct {
	secret string

	mu       sync.Mutex
	seq      int
	orders   map[string]*Order
	payments map[string]*PaymentRecord
	notifyCh chan *Notification
}

func NewSandbox(secret string) *Sandbox {
	return &Sandbox{
		secret:   secret,
		orders:   make(map[string]*Order),
		payments: make(map[string]*PaymentRecord),
	}
}

func (s *Sandbox) Provider() Provider {
	return ProviderSandbox
}

func (s *Sandbox) CreateOrder(_ context.Context, req *OrderRequest) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	order := &Order{
		ID:        fmt.Sprintf("order_SBX%06d", s.seq),
		Amount:    req.Amount,
		Currency:  req.Currency,
		Status:    "created",
		CreatedAt: time.Now().UTC(),
	}
	s.orders[order.ID] = order

	return order, nil
}

func (s *Sandbox) VerifySignature(orderID, paymentID, signature string) bool {
	return SignatureValid(orderID, paymentID, signature, s.secret)
}

func (s *Sandbox) FetchPayment(_ context.Context, paymentID string) (*PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID]
	if !ok {
		return nil, ErrPaymentUnknown
	}
	cp := *p
	return &cp, nil
}

func (s *Sandbox) Refund(_ context.Context, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID]
	if !ok {
		return ErrPaymentUnknown
	}
	p.Status = "refunded"
	return nil
}

func (s *Sandbox) SetNotificationChannel(ch chan *Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyCh = ch
}

func (s *Sandbox) Close(_ context.Context) error {
	return nil
}

// CompletePayment captures funds for an order and returns the checkout
// triple the client would post back to the server.
func (s *Sandbox) CompletePayment(orderID string) (paymentID, signature string, err error) {
	s.mu.Lock()
	order, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return "", "", fmt.Errorf("sandbox: unknown order %s", orderID)
	}

	s.seq++
	paymentID = fmt.Sprintf("pay_SBX%06d", s.seq)
	order.Status = "paid"
	s.payments[paymentID] = &PaymentRecord{
		ID:      paymentID,
		OrderID: orderID,
		Amount:  order.Amount,
		Status:  "captured",
	}
	amount := order.Amount
	ch := s.notifyCh
	s.mu.Unlock()

	signature = SignPayload(orderID, paymentID, s.secret)

	if ch != nil {
		ch <- &Notification{
			OrderID:   orderID,
			PaymentID: paymentID,
			Status:    "captured",
			Amount:    amount,
			Timestamp: time.Now().Unix(),
		}
	}

	return paymentID, signature, nil
}
