package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"studyseat-system/internal/gateway"
	"studyseat-system/internal/status"
	"studyseat-system/models"
	"studyseat-system/monitoring"
	"studyseat-system/utils"
)

// BookingService ties a verified payment to a seat commitment. The money
// side is never retried automatically: a verified payment whose booking
// step lost the seat race is flagged for manual reconciliation instead.
type BookingService struct {
	payments PaymentStore
	profile  ProfileStore
	seats    *SeatService
	gw       gateway.PaymentGateway
	notifier Notifier
	breaker  *utils.CircuitBreaker

	// gatewayTimeout bounds the synchronous gateway round trips in the
	// request path; other requests are never blocked by them.
	gatewayTimeout time.Duration

	now func() time.Time
}

func NewBookingService(payments PaymentStore, profile ProfileStore, seats *SeatService, gw gateway.PaymentGateway, notifier Notifier, gatewayTimeout time.Duration) *BookingService {
	return &BookingService{
		payments:       payments,
		profile:        profile,
		seats:          seats,
		gw:             gw,
		notifier:       notifier,
		breaker:        utils.NewCircuitBreaker("payment-gateway"),
		gatewayTimeout: gatewayTimeout,
		now:            time.Now,
	}
}

type CreateOrderRequest struct {
	AccountID  string
	SeatNumber int // 0 = fee-only order, no seat attached
	Shift      models.Shift
	Months     int
	Amount     decimal.Decimal
}

// CreateOrder opens a gateway order and registers a pending Payment. The
// seat availability check here is advisory: nothing holds the seat while
// the user sits in the external payment UI, that race is accepted and
// resolved at verification time.
func (s *BookingService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Payment, error) {
	account, err := s.profile.Account(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.ProfileComplete() {
		return nil, status.ErrProfileIncomplete
	}

	if req.SeatNumber != 0 {
		if !models.ValidSeatNumber(req.SeatNumber) {
			return nil, status.ErrSeatOutOfRange.Withf("seat %d is out of range 1..%d", req.SeatNumber, models.TotalSeats)
		}
		if !models.ValidShift(req.Shift) {
			return nil, status.ErrInvalidShift.Withf("unknown shift %q", req.Shift)
		}
		if req.Months < 1 {
			return nil, status.ErrInvalidMonths
		}

		seat, err := s.seats.Seat(ctx, req.SeatNumber)
		if err != nil {
			return nil, err
		}
		if seat.Status != models.SeatAvailable {
			// A renewal never goes through a new booking: the commit at
			// verification time could only lose against the account's own
			// occupancy.
			if seat.Occupant == req.AccountID {
				return nil, status.ErrSeatOccupied.Withf("seat %d is already yours, extend the booking instead", req.SeatNumber)
			}
			return nil, status.ErrSeatTaken.Withf("seat %d is already booked", req.SeatNumber)
		}
	}

	receipt, err := utils.GenerateCode(6)
	if err != nil {
		return nil, err
	}

	started := s.now()
	result, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		defer cancel()
		return s.gw.CreateOrder(callCtx, &gateway.OrderRequest{
			Amount:   req.Amount,
			Currency: "INR",
			Receipt:  receipt,
			Account:  req.AccountID,
		})
	})
	monitoring.TrackGatewayCall("create_order", s.now().Sub(started))
	if err != nil {
		return nil, status.ErrGatewayRejected.Withf("gateway order creation failed: %v", err)
	}
	order := result.(*gateway.Order)

	payment := &models.Payment{
		OrderID:      order.ID,
		Amount:       req.Amount,
		Account:      req.AccountID,
		SeatNumber:   req.SeatNumber,
		Shift:        req.Shift,
		Months:       req.Months,
		Status:       models.PaymentPending,
		Verification: models.VerificationPending,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	return payment, nil
}

type VerifyRequest struct {
	OrderID   string
	PaymentID string
	Signature string
	AccountID string

	// ChangeSeat carries the change-seat intent through to the ledger.
	ChangeSeat bool
}

type VerifyResult struct {
	OrderID    string `json:"order_id"`
	PaymentID  string `json:"payment_id"`
	SeatNumber int    `json:"seat_number,omitempty"`

	// AlreadyProcessed marks an idempotent replay of a commit that already
	// happened.
	AlreadyProcessed bool `json:"already_processed,omitempty"`
}

// VerifyPayment checks the checkout signature, confirms capture with the
// gateway and commits the booking in one pass. A replay with an
// already-verified payment id returns the committed result without
// touching the ledger again.
func (s *BookingService) VerifyPayment(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	payment, err := s.payments.PaymentByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if payment.Account != req.AccountID {
		return nil, status.ErrOrderNotFound
	}

	if payment.Verification == models.VerificationVerified && payment.PaymentID == req.PaymentID {
		return s.replayResult(ctx, payment)
	}
	if payment.Status == models.PaymentCancelled {
		return nil, status.ErrOrderNotPending
	}

	if !s.gw.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		if err := s.payments.MarkVerificationFailed(ctx, req.OrderID); err != nil {
			log.Printf("marking verification failed for %s: %v", req.OrderID, err)
		}
		if err := s.payments.SetPaymentStatus(ctx, req.OrderID, models.PaymentFailed); err != nil {
			log.Printf("marking payment failed for %s: %v", req.OrderID, err)
		}
		monitoring.TrackPaymentVerification("signature_mismatch")
		s.notifier.Publish(AccountChannel(req.AccountID), models.NewRealtimeEvent(models.EventPaymentFailed, map[string]any{
			"order_id": req.OrderID,
			"reason":   "signature mismatch",
		}))
		return nil, status.ErrSignatureMismatch
	}

	// Confirm capture before committing anything. A timeout here must not
	// be answered with a retry of the monetary step: the gateway may have
	// already captured the funds.
	started := s.now()
	record, err := s.fetchPayment(ctx, req.PaymentID)
	monitoring.TrackGatewayCall("fetch_payment", s.now().Sub(started))
	if err != nil {
		return nil, err
	}
	if record.Status != "captured" {
		monitoring.TrackPaymentVerification("not_captured")
		return nil, status.ErrGatewayRejected.Withf("payment %s is %s, not captured", req.PaymentID, record.Status)
	}

	// The conditional flip pending->verified is the idempotency barrier:
	// of two concurrent verifications exactly one passes this point.
	flipped, err := s.payments.MarkVerified(ctx, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		return nil, err
	}
	if !flipped {
		replay, err := s.payments.PaymentByOrderID(ctx, req.OrderID)
		if err != nil {
			return nil, err
		}
		if replay.Verification == models.VerificationVerified && replay.PaymentID == req.PaymentID {
			return s.replayResult(ctx, replay)
		}
		return nil, status.ErrOrderNotPending
	}

	if payment.FeeOnly() {
		return s.finishCommit(ctx, payment, req.PaymentID)
	}

	_, err = s.seats.BookSeat(ctx, BookSeatRequest{
		SeatNumber: payment.SeatNumber,
		AccountID:  payment.Account,
		Shift:      payment.Shift,
		Months:     payment.Months,
		ChangeSeat: req.ChangeSeat,
		PaymentRef: payment.OrderID,
	})
	if err != nil {
		if errors.Is(err, status.ErrSeatTaken) || errors.Is(err, status.ErrOneSeatLimit) {
			// Funds are captured; the payment stays verified and the case
			// goes to manual reconciliation, never a silent retry.
			if stErr := s.payments.SetPaymentStatus(ctx, req.OrderID, models.PaymentPaid); stErr != nil {
				log.Printf("marking conflicted payment %s paid: %v", req.OrderID, stErr)
			}
			monitoring.TrackPaymentVerification("booking_conflict")
			s.notifier.Publish(ChannelAdmin, models.NewRealtimeEvent(models.EventPaymentCompleted, map[string]any{
				"order_id":             req.OrderID,
				"payment_id":           req.PaymentID,
				"seat_number":          payment.SeatNumber,
				"needs_reconciliation": true,
			}))
			return nil, status.ErrBookingConflict.Withf(
				"payment %s captured but seat %d was taken; contact support with your payment id", req.PaymentID, payment.SeatNumber)
		}
		return nil, err
	}

	return s.finishCommit(ctx, payment, req.PaymentID)
}

// replayResult answers a repeated verification of an already-verified
// payment. Verified is not the same as committed: a payment whose booking
// step lost the seat race stays verified for reconciliation, and its replay
// must keep reporting the conflict instead of a success.
func (s *BookingService) replayResult(ctx context.Context, payment *models.Payment) (*VerifyResult, error) {
	if !payment.FeeOnly() {
		seat, err := s.seats.Seat(ctx, payment.SeatNumber)
		if err != nil {
			return nil, err
		}
		if seat.Occupant != payment.Account || seat.LastPayment != payment.OrderID {
			monitoring.TrackPaymentVerification("booking_conflict")
			return nil, status.ErrBookingConflict.Withf(
				"payment %s captured but seat %d was taken; contact support with your payment id", payment.PaymentID, payment.SeatNumber)
		}
	}

	monitoring.TrackPaymentVerification("replay")
	return &VerifyResult{
		OrderID:          payment.OrderID,
		PaymentID:        payment.PaymentID,
		SeatNumber:       payment.SeatNumber,
		AlreadyProcessed: true,
	}, nil
}

func (s *BookingService) finishCommit(ctx context.Context, payment *models.Payment, paymentID string) (*VerifyResult, error) {
	if err := s.payments.SetPaymentStatus(ctx, payment.OrderID, models.PaymentPaid); err != nil {
		return nil, err
	}
	if err := s.profile.SetAccountPayment(ctx, payment.Account, models.PaymentPaid); err != nil {
		return nil, err
	}

	monitoring.TrackPaymentVerification("success")
	s.notifier.Publish(AccountChannel(payment.Account), models.NewRealtimeEvent(models.EventPaymentCompleted, map[string]any{
		"order_id":    payment.OrderID,
		"payment_id":  paymentID,
		"seat_number": payment.SeatNumber,
	}))

	return &VerifyResult{
		OrderID:    payment.OrderID,
		PaymentID:  paymentID,
		SeatNumber: payment.SeatNumber,
	}, nil
}

func (s *BookingService) fetchPayment(ctx context.Context, paymentID string) (*gateway.PaymentRecord, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	record, err := s.gw.FetchPayment(callCtx, paymentID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			monitoring.TrackPaymentVerification("timeout")
			return nil, status.ErrVerificationTimeout
		}
		if errors.Is(err, gateway.ErrPaymentUnknown) {
			return nil, status.ErrPaymentNotFound.Withf("gateway has no record of payment %s", paymentID)
		}
		return nil, status.ErrGatewayRejected.Withf("payment lookup failed: %v", err)
	}
	return record, nil
}

// CancelOrder cancels a still-pending order (abandoned checkout). The seat
// was never held, so there is nothing to release.
func (s *BookingService) CancelOrder(ctx context.Context, orderID, accountID string) error {
	payment, err := s.payments.PaymentByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if payment.Account != accountID {
		return status.ErrOrderNotFound
	}
	if payment.Status != models.PaymentPending {
		return status.ErrOrderNotPending.Withf("order %s is %s", orderID, payment.Status)
	}

	return s.payments.SetPaymentStatus(ctx, orderID, models.PaymentCancelled)
}

// Refund returns captured funds and releases the linked seat. Admin only;
// this is the manual-reconciliation exit for BOOKING_CONFLICT_AFTER_PAYMENT
// cases as well as ordinary refunds.
func (s *BookingService) Refund(ctx context.Context, orderID string) error {
	payment, err := s.payments.PaymentByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if payment.Verification != models.VerificationVerified {
		return status.ErrOrderNotPending.Withf("order %s was never verified", orderID)
	}
	if payment.Status == models.PaymentRefunded {
		return nil
	}

	started := s.now()
	err = s.gw.Refund(ctx, payment.PaymentID)
	monitoring.TrackGatewayCall("refund", s.now().Sub(started))
	if err != nil {
		return status.ErrGatewayRejected.Withf("refund failed: %v", err)
	}

	if err := s.payments.SetPaymentStatus(ctx, orderID, models.PaymentRefunded); err != nil {
		return err
	}

	if payment.SeatNumber != 0 {
		seat, err := s.seats.Seat(ctx, payment.SeatNumber)
		if err == nil && seat.Status == models.SeatBooked && seat.Occupant == payment.Account {
			if err := s.seats.ReleaseSeat(ctx, payment.SeatNumber, models.ReasonAdmin); err != nil {
				log.Printf("releasing seat %d after refund of %s: %v", payment.SeatNumber, orderID, err)
			}
		}
	}

	s.notifier.Publish(AccountChannel(payment.Account), models.NewRealtimeEvent(models.EventPaymentRefunded, map[string]any{
		"order_id":   orderID,
		"payment_id": payment.PaymentID,
	}))

	return nil
}

// GatewayBreakerState reports the circuit breaker state for the admin
// dashboard.
func (s *BookingService) GatewayBreakerState() utils.State {
	return s.breaker.State()
}

// Unreconciled lists verified payments whose seat commitment never landed,
// the queue for manual repair.
func (s *BookingService) Unreconciled(ctx context.Context) ([]models.Payment, error) {
	verified, err := s.payments.VerifiedPayments(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.Payment
	for _, p := range verified {
		if p.SeatNumber == 0 || p.Status == models.PaymentRefunded {
			continue
		}
		seat, err := s.seats.Seat(ctx, p.SeatNumber)
		if err != nil {
			continue
		}
		if seat.Occupant != p.Account || seat.LastPayment != p.OrderID {
			out = append(out, p)
		}
	}
	return out, nil
}

// AccountPayments lists the account's payment records.
func (s *BookingService) AccountPayments(ctx context.Context, accountID string, limit int) ([]models.Payment, error) {
	return s.payments.AccountPayments(ctx, accountID, limit)
}

// Payment returns one payment, owner-checked.
func (s *BookingService) Payment(ctx context.Context, orderID, accountID string) (*models.Payment, error) {
	payment, err := s.payments.PaymentByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if accountID != "" && payment.Account != accountID {
		return nil, status.ErrOrderNotFound
	}
	return payment, nil
}

// ConsumeNotifications drains the gateway's asynchronous transaction feed.
// The feed is advisory: captures are committed only through VerifyPayment,
// but failures and refunds reported by the gateway are mirrored into the
// payment records so dashboards stay honest.
func (s *BookingService) ConsumeNotifications(ctx context.Context, ch chan *gateway.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			s.handleNotification(ctx, n)
		}
	}
}

func (s *BookingService) handleNotification(ctx context.Context, n *gateway.Notification) {
	payment, err := s.payments.PaymentByOrderID(ctx, n.OrderID)
	if err != nil {
		log.Printf("gateway notification for unknown order %s ignored", n.OrderID)
		return
	}

	switch n.Status {
	case "failed":
		if payment.Status != models.PaymentPending {
			return
		}
		if err := s.payments.SetPaymentStatus(ctx, n.OrderID, models.PaymentFailed); err != nil {
			log.Printf("mirroring failed payment %s: %v", n.OrderID, err)
			return
		}
		s.notifier.Publish(AccountChannel(payment.Account), models.NewRealtimeEvent(models.EventPaymentFailed, map[string]any{
			"order_id": n.OrderID,
			"reason":   "payment failed at the gateway",
		}))

	case "refunded":
		if err := s.payments.SetPaymentStatus(ctx, n.OrderID, models.PaymentRefunded); err != nil {
			log.Printf("mirroring refunded payment %s: %v", n.OrderID, err)
		}

	case "captured":
		// Informational; the commit happens in VerifyPayment.
		log.Printf("gateway reports capture for order %s (payment %s)", n.OrderID, n.PaymentID)
	}
}
