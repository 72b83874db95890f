package gateway

import (
	"context"
	"errors"
	"time"

	"studyseat-system/internal/gateway/feepay"
)

// FeePayAdapter adapts the standalone FeePay client to the PaymentGateway
// interface.
type FeePayAdapter struct {
	fp *feepay.FeePay

	// tranCh carries the raw FeePay feed; forwarded as Notifications.
	tranCh chan *feepay.Transaction
}

// NewFeePayAdapter creates and connects a FeePay-backed gateway.
func NewFeePayAdapter(ctx context.Context, cfg *feepay.Config) (*FeePayAdapter, error) {
	fp, err := feepay.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &FeePayAdapter{fp: fp}, nil
}

func (a *FeePayAdapter) Provider() Provider {
	return ProviderFeePay
}

func (a *FeePayAdapter) CreateOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	reply, err := a.fp.CreateOrder(ctx, &feepay.FormOrder{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Note:     req.Note,
	})
	if err != nil {
		return nil, err
	}

	return &Order{
		ID:        reply.OrderID,
		Amount:    reply.Amount,
		Currency:  reply.Currency,
		Status:    reply.Status,
		CreatedAt: time.Unix(reply.CreatedAt, 0),
	}, nil
}

func (a *FeePayAdapter) VerifySignature(orderID, paymentID, signature string) bool {
	return SignatureValid(orderID, paymentID, signature, a.fp.KeySecret())
}

func (a *FeePayAdapter) FetchPayment(ctx context.Context, paymentID string) (*PaymentRecord, error) {
	reply, err := a.fp.CheckPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, feepay.ErrPaymentUnknown) {
			return nil, ErrPaymentUnknown
		}
		return nil, err
	}

	return &PaymentRecord{
		ID:      reply.PaymentID,
		OrderID: reply.OrderID,
		Amount:  reply.Amount,
		Status:  reply.Status,
	}, nil
}

func (a *FeePayAdapter) Refund(ctx context.Context, paymentID string) error {
	return a.fp.Refund(ctx, paymentID)
}

func (a *FeePayAdapter) SetNotificationChannel(ch chan *Notification) {
	a.tranCh = make(chan *feepay.Transaction, 1)
	a.fp.SetTranChannel(a.tranCh)

	go func() {
		for t := range a.tranCh {
			ch <- &Notification{
				OrderID:   t.OrderID,
				PaymentID: t.PaymentID,
				Status:    t.Status,
				Amount:    t.Amount,
				Timestamp: t.CreatedAt.Unix(),
			}
		}
	}()
}

func (a *FeePayAdapter) Close(ctx context.Context) error {
	err := a.fp.Close(ctx)
	if a.tranCh != nil {
		close(a.tranCh)
	}
	return err
}

// ErrPaymentUnknown is returned by FetchPayment when the gateway has no
// record of the payment id.
var ErrPaymentUnknown = errors.New("gateway: payment not found")
