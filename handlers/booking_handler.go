package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"studyseat-system/models"
	"studyseat-system/services"
)

type BookingHandler struct {
	bookings *services.BookingService
}

func NewBookingHandler(bookings *services.BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

type createOrderRequest struct {
	SeatNumber int    `json:"seat_number"` // 0 = fee-only payment
	Shift      string `json:"shift"`
	Months     int    `json:"months"`
	Amount     string `json:"amount"`
}

// CreateOrder opens a gateway order for the checkout widget. The seat is
// not held; it is committed only when the payment verifies.
func (h *BookingHandler) CreateOrder(e *core.RequestEvent) error {
	var req createOrderRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("invalid request body", err)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		return apis.NewBadRequestError("invalid amount", err)
	}

	payment, err := h.bookings.CreateOrder(e.Request.Context(), services.CreateOrderRequest{
		AccountID:  e.Auth.Id,
		SeatNumber: req.SeatNumber,
		Shift:      models.Shift(req.Shift),
		Months:     req.Months,
		Amount:     amount,
	})
	if err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"order_id":    payment.OrderID,
		"amount":      payment.Amount.String(),
		"seat_number": payment.SeatNumber,
	})
}

type verifyRequest struct {
	OrderID    string `json:"order_id"`
	PaymentID  string `json:"payment_id"`
	Signature  string `json:"signature"`
	ChangeSeat bool   `json:"change_seat"`
}

// VerifyPayment is the booking commit: signature check, gateway capture
// confirmation, then the atomic seat occupation. Safe to retry; a replay
// of a finished verification returns the committed result.
func (h *BookingHandler) VerifyPayment(e *core.RequestEvent) error {
	var req verifyRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("invalid request body", err)
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return apis.NewBadRequestError("order_id, payment_id and signature are required", nil)
	}

	result, err := h.bookings.VerifyPayment(e.Request.Context(), services.VerifyRequest{
		OrderID:    req.OrderID,
		PaymentID:  req.PaymentID,
		Signature:  req.Signature,
		AccountID:  e.Auth.Id,
		ChangeSeat: req.ChangeSeat,
	})
	if err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, result)
}

// CancelOrder abandons a pending order before checkout completes.
func (h *BookingHandler) CancelOrder(e *core.RequestEvent) error {
	orderID := e.Request.PathValue("orderId")
	if orderID == "" {
		return apis.NewBadRequestError("missing order id", nil)
	}

	if err := h.bookings.CancelOrder(e.Request.Context(), orderID, e.Auth.Id); err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *BookingHandler) GetOrder(e *core.RequestEvent) error {
	orderID := e.Request.PathValue("orderId")
	if orderID == "" {
		return apis.NewBadRequestError("missing order id", nil)
	}

	payment, err := h.bookings.Payment(e.Request.Context(), orderID, e.Auth.Id)
	if err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, payment)
}

func (h *BookingHandler) MyPayments(e *core.RequestEvent) error {
	payments, err := h.bookings.AccountPayments(e.Request.Context(), e.Auth.Id, 50)
	if err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{"payments": payments})
}
