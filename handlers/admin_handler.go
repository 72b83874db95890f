package handlers

import (
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"studyseat-system/models"
	"studyseat-system/services"
)

// AdminHandler covers the floor manager's operations: status flips, forced
// releases, refunds and the reconciliation queue. All routes behind the
// admin key middleware.
type AdminHandler struct {
	seats    *services.SeatService
	bookings *services.BookingService
}

func NewAdminHandler(seats *services.SeatService, bookings *services.BookingService) *AdminHandler {
	return &AdminHandler{seats: seats, bookings: bookings}
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// SetSeatStatus switches a seat between the non-booked statuses
// (maintenance, reserved, available). Occupied seats must be released first.
func (h *AdminHandler) SetSeatStatus(e *core.RequestEvent) error {
	number, ok := pathInt(e, "number")
	if !ok {
		return apis.NewBadRequestError("invalid seat number", nil)
	}

	var req setStatusRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("invalid request body", err)
	}

	if err := h.seats.SetStatus(e.Request.Context(), number, models.SeatStatus(req.Status)); err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

type releaseRequest struct {
	Reason string `json:"reason"`
}

// ReleaseSeat is the administrative release, the only way an expired
// (yellow) booking leaves the floor.
func (h *AdminHandler) ReleaseSeat(e *core.RequestEvent) error {
	number, ok := pathInt(e, "number")
	if !ok {
		return apis.NewBadRequestError("invalid seat number", nil)
	}

	var req releaseRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("invalid request body", err)
	}
	reason := models.ReleaseReason(req.Reason)
	if req.Reason == "" {
		reason = models.ReasonAdmin
	}

	if err := h.seats.ReleaseSeat(e.Request.Context(), number, reason); err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]string{"status": "released"})
}

// ExtendSeat extends any booking regardless of owner.
func (h *AdminHandler) ExtendSeat(e *core.RequestEvent) error {
	number, ok := pathInt(e, "number")
	if !ok {
		return apis.NewBadRequestError("invalid seat number", nil)
	}

	var req extendRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("invalid request body", err)
	}

	seat, err := h.seats.ExtendBooking(e.Request.Context(), number, "", req.Months)
	if err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, seat)
}

// Refund returns captured funds and frees the linked seat. This is the
// manual-reconciliation exit for payments whose booking step lost the race.
func (h *AdminHandler) Refund(e *core.RequestEvent) error {
	orderID := e.Request.PathValue("orderId")
	if orderID == "" {
		return apis.NewBadRequestError("missing order id", nil)
	}

	if err := h.bookings.Refund(e.Request.Context(), orderID); err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]string{"status": "refunded"})
}

// Unreconciled lists verified payments that never landed on a seat.
func (h *AdminHandler) Unreconciled(e *core.RequestEvent) error {
	payments, err := h.bookings.Unreconciled(e.Request.Context())
	if err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{"payments": payments})
}

// Dashboard summarizes the floor and the payment pipeline for the admin UI.
func (h *AdminHandler) Dashboard(e *core.RequestEvent) error {
	seats, err := h.seats.Seats(e.Request.Context())
	if err != nil {
		return fail(e, err)
	}

	now := time.Now()
	byStatus := map[models.SeatStatus]int{}
	awaitingRelease := 0
	for i := range seats {
		byStatus[seats[i].Status]++
		if seats[i].ExpiredAt(now) {
			awaitingRelease++
		}
	}

	unreconciled, err := h.bookings.Unreconciled(e.Request.Context())
	if err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"total_seats":      len(seats),
		"available":        byStatus[models.SeatAvailable],
		"booked":           byStatus[models.SeatBooked],
		"reserved":         byStatus[models.SeatReserved],
		"maintenance":      byStatus[models.SeatMaintenance],
		"awaiting_release": awaitingRelease,
		"unreconciled":     len(unreconciled),
		"gateway_breaker":  h.bookings.GatewayBreakerState().String(),
	})
}
