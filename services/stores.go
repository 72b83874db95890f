package services

import (
	"context"
	"time"

	"studyseat-system/models"
)

// SeatStore is the persistence boundary of the seat ledger. Implementations
// must make OccupyIfAvailable, ExtendExpiry and SetStatusIfVacant atomic
// conditional updates; a read-then-write pair is not acceptable.
type SeatStore interface {
	// Seat returns the seat by number, status.ErrSeatNotFound when absent.
	Seat(ctx context.Context, number int) (*models.Seat, error)

	// Seats returns all seats ordered by number.
	Seats(ctx context.Context) ([]models.Seat, error)

	// AccountSeat returns the seat booked by the account, or nil.
	AccountSeat(ctx context.Context, accountID string) (*models.Seat, error)

	// OccupyIfAvailable books the seat only while its status still reads
	// available and the account holds no other booked seat. replacing, when
	// non-zero, names a seat mid-handover that is exempt from the one-seat
	// check. Returns false when the conditional update lost.
	OccupyIfAvailable(ctx context.Context, number int, occ models.Occupancy, replacing int) (bool, error)

	// ReleaseSeat returns the seat to available and clears occupancy fields.
	ReleaseSeat(ctx context.Context, number int) error

	// ExtendExpiry moves the expiry only while the occupant still matches.
	ExtendExpiry(ctx context.Context, number int, occupant string, until time.Time) (bool, error)

	// SetStatusIfVacant switches a non-booked status only while unoccupied.
	SetStatusIfVacant(ctx context.Context, number int, st models.SeatStatus) (bool, error)

	// ExpiredSeats lists booked seats whose expiry has passed.
	ExpiredSeats(ctx context.Context, now time.Time) ([]models.Seat, error)

	// OpenHistory appends a booking-history entry.
	OpenHistory(ctx context.Context, h models.BookingHistory) error

	// CloseHistory closes the open entry of the seat/account pair.
	CloseHistory(ctx context.Context, number int, account string, endedAt time.Time, reason models.ReleaseReason) error

	// AccountHistory lists the account's booking intervals, newest first.
	AccountHistory(ctx context.Context, accountID string, limit int) ([]models.BookingHistory, error)
}

// PaymentStore persists gateway orders and their verification state.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *models.Payment) error

	// PaymentByOrderID returns status.ErrOrderNotFound when absent.
	PaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error)

	// PaymentByPaymentID returns status.ErrPaymentNotFound when absent.
	PaymentByPaymentID(ctx context.Context, paymentID string) (*models.Payment, error)

	// MarkVerified flips verification pending->verified and records the
	// payment id and signature, conditionally: false when the payment was
	// already verified or failed (the idempotency barrier).
	MarkVerified(ctx context.Context, orderID, paymentID, signature string) (bool, error)

	// MarkVerificationFailed flips verification to failed.
	MarkVerificationFailed(ctx context.Context, orderID string) error

	SetPaymentStatus(ctx context.Context, orderID string, st models.PaymentStatus) error

	// VerifiedPayments lists captured payments for reconciliation checks.
	VerifiedPayments(ctx context.Context) ([]models.Payment, error)

	// AccountPayments lists the account's payments, newest first.
	AccountPayments(ctx context.Context, accountID string, limit int) ([]models.Payment, error)
}

// ProfileStore is the read-mostly view of the identity provider's account
// records. Profile field writes happen outside the core.
type ProfileStore interface {
	// Account returns the identity record with its booking state.
	Account(ctx context.Context, accountID string) (*models.Account, error)

	// SetAccountSeat records the account's current seat (0 = none).
	SetAccountSeat(ctx context.Context, accountID string, number int) error

	// SetAccountPayment records the latest payment status on the account.
	SetAccountPayment(ctx context.Context, accountID string, st models.PaymentStatus) error
}
