package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

// Payment is one gateway order. OrderID is issued at order creation,
// PaymentID only once the gateway captured funds. SeatNumber 0 marks a
// fee-only payment with no seat attached.
type Payment struct {
	OrderID      string             `json:"order_id"`
	PaymentID    string             `json:"payment_id,omitempty"`
	Signature    string             `json:"signature,omitempty"`
	Amount       decimal.Decimal    `json:"amount"`
	Account      string             `json:"account"`
	SeatNumber   int                `json:"seat_number,omitempty"`
	Shift        Shift              `json:"shift,omitempty"`
	Months       int                `json:"months,omitempty"`
	Status       PaymentStatus      `json:"status"`
	Verification VerificationStatus `json:"verification"`
	CreatedAt    time.Time          `json:"created_at,omitzero"`
}

// FeeOnly reports whether the payment is detached from any seat.
func (p *Payment) FeeOnly() bool {
	return p.SeatNumber == 0
}
