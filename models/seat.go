package models

import (
	"time"
)

// TotalSeats is the fixed number of physical study seats.
const TotalSeats = 60

type SeatStatus string

const (
	SeatAvailable   SeatStatus = "available"
	SeatBooked      SeatStatus = "booked"
	SeatReserved    SeatStatus = "reserved"
	SeatMaintenance SeatStatus = "maintenance"
	SeatExpired     SeatStatus = "expired"
)

// DisplayStatus is the UI-facing color tag. It is always derived from
// status+expiry and never stored.
type DisplayStatus string

const (
	DisplayGreen  DisplayStatus = "green"
	DisplayRed    DisplayStatus = "red"
	DisplayYellow DisplayStatus = "yellow"
	DisplayGray   DisplayStatus = "gray"
)

type Shift string

const (
	ShiftMorning   Shift = "morning"
	ShiftAfternoon Shift = "afternoon"
	ShiftEvening   Shift = "evening"
	ShiftFullDay   Shift = "full_day"
)

func ValidShift(s Shift) bool {
	switch s {
	case ShiftMorning, ShiftAfternoon, ShiftEvening, ShiftFullDay:
		return true
	}
	return false
}

func ValidSeatNumber(n int) bool {
	return n >= 1 && n <= TotalSeats
}

type Seat struct {
	Number      int        `json:"number"`
	Status      SeatStatus `json:"status"`
	Occupant    string     `json:"occupant,omitempty"` // account id, set only while booked
	Shift       Shift      `json:"shift,omitempty"`
	BookedAt    time.Time  `json:"booked_at,omitzero"`
	ExpiresAt   time.Time  `json:"expires_at,omitzero"`
	LastPayment string     `json:"last_payment,omitempty"` // order id of the latest linked payment
}

// DisplayStatus computes the color tag for the seat at the given instant:
// available seats read green, booked-and-current red, booked-past-expiry
// yellow (awaiting release), everything withdrawn from circulation gray.
func (s *Seat) DisplayStatus(now time.Time) DisplayStatus {
	switch s.Status {
	case SeatAvailable:
		return DisplayGreen
	case SeatBooked:
		if !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt) {
			return DisplayYellow
		}
		return DisplayRed
	case SeatExpired, SeatReserved:
		return DisplayYellow
	default:
		return DisplayGray
	}
}

// ExpiredAt reports whether the booking has run past its expiry.
func (s *Seat) ExpiredAt(now time.Time) bool {
	return s.Status == SeatBooked && !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Occupancy is the booking payload committed into a seat in one
// conditional update.
type Occupancy struct {
	Account    string
	Shift      Shift
	BookedAt   time.Time
	ExpiresAt  time.Time
	PaymentRef string // order id, empty for administrative assignments
}

// ReleaseReason closes a booking-history entry.
type ReleaseReason string

const (
	ReasonExpired       ReleaseReason = "expired"
	ReasonManual        ReleaseReason = "manual"
	ReasonAdmin         ReleaseReason = "admin"
	ReasonPaymentFailed ReleaseReason = "payment_failed"
	ReasonUserRequest   ReleaseReason = "user_request"
	ReasonSeatChange    ReleaseReason = "seat_change"
)

func ValidReleaseReason(r ReleaseReason) bool {
	switch r {
	case ReasonExpired, ReasonManual, ReasonAdmin, ReasonPaymentFailed, ReasonUserRequest, ReasonSeatChange:
		return true
	}
	return false
}

// BookingHistory is one occupancy interval of a seat.
type BookingHistory struct {
	ID         string        `json:"id,omitempty"`
	SeatNumber int           `json:"seat_number"`
	Account    string        `json:"account"`
	Shift      Shift         `json:"shift"`
	Months     int           `json:"months"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at,omitzero"`
	Reason     ReleaseReason `json:"reason,omitempty"`
	PaymentRef string        `json:"payment_ref,omitempty"`
}
