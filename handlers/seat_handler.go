package handlers

import (
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"studyseat-system/models"
	"studyseat-system/services"
)

type SeatHandler struct {
	seats *services.SeatService
}

func NewSeatHandler(seats *services.SeatService) *SeatHandler {
	return &SeatHandler{seats: seats}
}

// seatView is the API shape of a seat: the stored fields plus the derived
// color tag the floor map renders from.
type seatView struct {
	Number        int                  `json:"number"`
	Status        models.SeatStatus    `json:"status"`
	DisplayStatus models.DisplayStatus `json:"display_status"`
	Occupant      string               `json:"occupant,omitempty"`
	Shift         models.Shift         `json:"shift,omitempty"`
	BookedAt      string               `json:"booked_at,omitempty"`
	ExpiresAt     string               `json:"expires_at,omitempty"`
}

func viewOf(seat *models.Seat, now time.Time) seatView {
	v := seatView{
		Number:        seat.Number,
		Status:        seat.Status,
		DisplayStatus: seat.DisplayStatus(now),
		Occupant:      seat.Occupant,
		Shift:         seat.Shift,
	}
	if !seat.BookedAt.IsZero() {
		v.BookedAt = seat.BookedAt.Format(time.RFC3339)
	}
	if !seat.ExpiresAt.IsZero() {
		v.ExpiresAt = seat.ExpiresAt.Format(time.RFC3339)
	}
	return v
}

// ListSeats returns the full floor map. This is the reconciliation poll
// clients fall back on when realtime pushes are lost.
func (h *SeatHandler) ListSeats(e *core.RequestEvent) error {
	seats, err := h.seats.Seats(e.Request.Context())
	if err != nil {
		return fail(e, err)
	}

	now := time.Now()
	views := make([]seatView, 0, len(seats))
	for i := range seats {
		views = append(views, viewOf(&seats[i], now))
	}

	return e.JSON(http.StatusOK, map[string]any{
		"seats": views,
		"total": models.TotalSeats,
	})
}

func (h *SeatHandler) GetSeat(e *core.RequestEvent) error {
	number, ok := pathInt(e, "number")
	if !ok {
		return apis.NewBadRequestError("invalid seat number", nil)
	}

	seat, err := h.seats.Seat(e.Request.Context(), number)
	if err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, viewOf(seat, time.Now()))
}

// MySeat returns the authenticated account's seat, 404 when none.
func (h *SeatHandler) MySeat(e *core.RequestEvent) error {
	seat, err := h.seats.AccountSeat(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return fail(e, err)
	}
	if seat == nil {
		return apis.NewNotFoundError("no seat booked", nil)
	}

	return e.JSON(http.StatusOK, viewOf(seat, time.Now()))
}

func (h *SeatHandler) MyHistory(e *core.RequestEvent) error {
	history, err := h.seats.AccountHistory(e.Request.Context(), e.Auth.Id, 50)
	if err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{"history": history})
}

type extendRequest struct {
	Months int `json:"months"`
}

// ExtendSeat adds months to the caller's own booking.
func (h *SeatHandler) ExtendSeat(e *core.RequestEvent) error {
	number, ok := pathInt(e, "number")
	if !ok {
		return apis.NewBadRequestError("invalid seat number", nil)
	}

	var req extendRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("invalid request body", err)
	}

	seat, err := h.seats.ExtendBooking(e.Request.Context(), number, e.Auth.Id, req.Months)
	if err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, viewOf(seat, time.Now()))
}

// ReleaseSeat gives up the caller's own booking.
func (h *SeatHandler) ReleaseSeat(e *core.RequestEvent) error {
	number, ok := pathInt(e, "number")
	if !ok {
		return apis.NewBadRequestError("invalid seat number", nil)
	}

	seat, err := h.seats.Seat(e.Request.Context(), number)
	if err != nil {
		return fail(e, err)
	}
	if seat.Occupant != e.Auth.Id {
		return apis.NewForbiddenError("seat is booked by another account", nil)
	}

	if err := h.seats.ReleaseSeat(e.Request.Context(), number, models.ReasonUserRequest); err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]string{"status": "released"})
}
