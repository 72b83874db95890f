package services

import (
	"context"
	"errors"
	"log"
	"time"

	"studyseat-system/internal/status"
	"studyseat-system/models"
	"studyseat-system/monitoring"
)

// SeatService is the seat ledger: the authoritative record of which seats
// are occupied by which accounts. The one-winner guarantee for concurrent
// bookings comes from the store's conditional updates, not from any lock
// held here.
type SeatService struct {
	store    SeatStore
	profile  ProfileStore
	notifier Notifier

	now func() time.Time
}

func NewSeatService(store SeatStore, profile ProfileStore, notifier Notifier) *SeatService {
	return &SeatService{
		store:    store,
		profile:  profile,
		notifier: notifier,
		now:      time.Now,
	}
}

type BookSeatRequest struct {
	SeatNumber int
	AccountID  string
	Shift      models.Shift
	Months     int

	// ChangeSeat releases the account's prior seat as part of the same
	// operation instead of failing with ONE_SEAT_LIMIT.
	ChangeSeat bool

	// PaymentRef is the order id the booking is committed under; empty for
	// administrative assignments.
	PaymentRef string
}

// BookSeat books the seat check-and-commit atomically. Exactly one of two
// racing calls for the same seat wins; the loser gets SEAT_TAKEN. The
// one-seat-per-account rule is enforced inside the same conditional update,
// so an account racing itself for two seats also ends up with one.
func (s *SeatService) BookSeat(ctx context.Context, req BookSeatRequest) (*models.Seat, error) {
	if !models.ValidSeatNumber(req.SeatNumber) {
		return nil, status.ErrSeatOutOfRange.Withf("seat %d is out of range 1..%d", req.SeatNumber, models.TotalSeats)
	}
	if !models.ValidShift(req.Shift) {
		return nil, status.ErrInvalidShift.Withf("unknown shift %q", req.Shift)
	}
	if req.Months < 1 {
		return nil, status.ErrInvalidMonths
	}

	prior, err := s.store.AccountSeat(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if prior != nil && prior.Number != req.SeatNumber && !req.ChangeSeat {
		monitoring.TrackBookingOperation("book", "one_seat_limit")
		return nil, status.ErrOneSeatLimit.Withf("account already holds seat %d", prior.Number)
	}

	now := s.now().UTC()
	occ := models.Occupancy{
		Account:    req.AccountID,
		Shift:      req.Shift,
		BookedAt:   now,
		ExpiresAt:  now.AddDate(0, req.Months, 0),
		PaymentRef: req.PaymentRef,
	}

	replacing := 0
	if req.ChangeSeat && prior != nil {
		replacing = prior.Number
	}

	won, err := s.store.OccupyIfAvailable(ctx, req.SeatNumber, occ, replacing)
	if err != nil {
		return nil, err
	}
	if !won {
		seat, lookupErr := s.store.Seat(ctx, req.SeatNumber)
		if errors.Is(lookupErr, status.ErrSeatNotFound) {
			return nil, lookupErr
		}
		if lookupErr == nil && seat.Status == models.SeatAvailable {
			// The seat itself was free, so the update lost to the account's
			// own concurrent booking of another seat.
			monitoring.TrackBookingOperation("book", "one_seat_limit")
			return nil, status.ErrOneSeatLimit.Withf("account already holds a seat")
		}
		monitoring.TrackBookingOperation("book", "seat_taken")
		return nil, status.ErrSeatTaken.Withf("seat %d is already booked", req.SeatNumber)
	}

	if err := s.afterOccupy(ctx, req, prior, occ, now); err != nil {
		return nil, err
	}

	monitoring.TrackBookingOperation("book", "success")
	return s.store.Seat(ctx, req.SeatNumber)
}

// afterOccupy finishes the commit once the conditional update won: history,
// prior-seat handover for a change, account seat ref, notification. A
// persistence failure here rolls the occupation back best effort.
func (s *SeatService) afterOccupy(ctx context.Context, req BookSeatRequest, prior *models.Seat, occ models.Occupancy, now time.Time) error {
	err := s.store.OpenHistory(ctx, models.BookingHistory{
		SeatNumber: req.SeatNumber,
		Account:    req.AccountID,
		Shift:      req.Shift,
		Months:     req.Months,
		StartedAt:  now,
		PaymentRef: req.PaymentRef,
	})

	priorReleased := false
	if err == nil && req.ChangeSeat && prior != nil && prior.Number != req.SeatNumber {
		if err = s.store.ReleaseSeat(ctx, prior.Number); err == nil {
			priorReleased = true
			err = s.store.CloseHistory(ctx, prior.Number, req.AccountID, now, models.ReasonSeatChange)
		}
	}

	if err == nil {
		err = s.profile.SetAccountSeat(ctx, req.AccountID, req.SeatNumber)
	}

	if err != nil {
		if priorReleased {
			log.Printf("MANUAL REPAIR: prior seat %d of %s was freed before the change to seat %d failed, the account holds no seat now",
				prior.Number, req.AccountID, req.SeatNumber)
		}
		if rbErr := s.store.ReleaseSeat(ctx, req.SeatNumber); rbErr != nil {
			// Rollback failed; leave it to manual repair, retrying could
			// double-book.
			log.Printf("MANUAL REPAIR: seat %d occupied by %s but commit failed (%v) and rollback failed (%v)",
				req.SeatNumber, req.AccountID, err, rbErr)
		}
		monitoring.TrackBookingOperation("book", "storage_error")
		return status.ErrStorageUnavailable.Withf("seat commit: %v", err)
	}

	if req.ChangeSeat && prior != nil && prior.Number != req.SeatNumber {
		s.notifier.Publish(ChannelSeats, models.NewRealtimeEvent(models.EventSeatChanged, map[string]any{
			"account_id": req.AccountID,
			"from_seat":  prior.Number,
			"to_seat":    req.SeatNumber,
		}))
	} else {
		s.notifier.Publish(ChannelSeats, models.NewRealtimeEvent(models.EventSeatBooked, map[string]any{
			"account_id":  req.AccountID,
			"seat_number": req.SeatNumber,
			"expires_at":  occ.ExpiresAt.Format(time.RFC3339),
		}))
	}

	return nil
}

// ReleaseSeat returns a seat to circulation and closes its booking-history
// entry with the given reason.
func (s *SeatService) ReleaseSeat(ctx context.Context, number int, reason models.ReleaseReason) error {
	if !models.ValidSeatNumber(number) {
		return status.ErrSeatOutOfRange.Withf("seat %d is out of range 1..%d", number, models.TotalSeats)
	}
	if !models.ValidReleaseReason(reason) {
		return status.ErrInvalidReason.Withf("unknown release reason %q", reason)
	}

	seat, err := s.store.Seat(ctx, number)
	if err != nil {
		return err
	}

	if seat.Status != models.SeatBooked {
		// Freeing a maintenance/reserved/expired seat has no occupancy to
		// close out.
		if seat.Status == models.SeatAvailable {
			return status.ErrNoActiveBooking.Withf("seat %d is not booked", number)
		}
		if _, err := s.store.SetStatusIfVacant(ctx, number, models.SeatAvailable); err != nil {
			return err
		}
		return nil
	}

	occupant := seat.Occupant
	if err := s.store.ReleaseSeat(ctx, number); err != nil {
		return err
	}
	if err := s.store.CloseHistory(ctx, number, occupant, s.now().UTC(), reason); err != nil {
		return err
	}
	if err := s.profile.SetAccountSeat(ctx, occupant, 0); err != nil {
		return err
	}

	monitoring.TrackBookingOperation("release", string(reason))
	s.notifier.Publish(ChannelSeats, models.NewRealtimeEvent(models.EventSeatReleased, map[string]any{
		"seat_number": number,
		"reason":      string(reason),
	}))

	return nil
}

// ExtendBooking adds months to the seat's expiry. Same occupant only;
// accountID empty skips the ownership check (admin path).
func (s *SeatService) ExtendBooking(ctx context.Context, number int, accountID string, months int) (*models.Seat, error) {
	if !models.ValidSeatNumber(number) {
		return nil, status.ErrSeatOutOfRange.Withf("seat %d is out of range 1..%d", number, models.TotalSeats)
	}
	if months < 1 {
		return nil, status.ErrInvalidMonths
	}

	seat, err := s.store.Seat(ctx, number)
	if err != nil {
		return nil, err
	}
	if seat.Status != models.SeatBooked || seat.ExpiresAt.IsZero() {
		return nil, status.ErrNoActiveBooking.Withf("seat %d has no active booking", number)
	}
	if accountID != "" && seat.Occupant != accountID {
		return nil, status.ErrNotSeatOwner.Withf("seat %d is booked by another account", number)
	}

	extended, err := s.store.ExtendExpiry(ctx, number, seat.Occupant, seat.ExpiresAt.AddDate(0, months, 0))
	if err != nil {
		return nil, err
	}
	if !extended {
		// The booking changed hands between read and update.
		return nil, status.ErrNoActiveBooking.Withf("seat %d has no active booking", number)
	}

	monitoring.TrackBookingOperation("extend", "success")
	s.notifier.Publish(ChannelSeats, models.NewRealtimeEvent(models.EventSeatExtended, map[string]any{
		"seat_number": number,
		"months":      months,
	}))

	return s.store.Seat(ctx, number)
}

// SetStatus switches a seat between the non-booked administrative statuses.
// Occupied seats must be released first.
func (s *SeatService) SetStatus(ctx context.Context, number int, st models.SeatStatus) error {
	if !models.ValidSeatNumber(number) {
		return status.ErrSeatOutOfRange.Withf("seat %d is out of range 1..%d", number, models.TotalSeats)
	}
	if st == models.SeatBooked {
		return status.ErrSeatOccupied.Withf("seat %d can only become booked through a payment", number)
	}

	changed, err := s.store.SetStatusIfVacant(ctx, number, st)
	if err != nil {
		return err
	}
	if !changed {
		return status.ErrSeatOccupied.Withf("seat %d is occupied", number)
	}
	return nil
}

// Seat reads one seat.
func (s *SeatService) Seat(ctx context.Context, number int) (*models.Seat, error) {
	if !models.ValidSeatNumber(number) {
		return nil, status.ErrSeatOutOfRange.Withf("seat %d is out of range 1..%d", number, models.TotalSeats)
	}
	return s.store.Seat(ctx, number)
}

// Seats reads the whole ledger.
func (s *SeatService) Seats(ctx context.Context) ([]models.Seat, error) {
	return s.store.Seats(ctx)
}

// AccountSeat returns the seat the account occupies, or nil.
func (s *SeatService) AccountSeat(ctx context.Context, accountID string) (*models.Seat, error) {
	return s.store.AccountSeat(ctx, accountID)
}

// AccountHistory lists the account's booking intervals.
func (s *SeatService) AccountHistory(ctx context.Context, accountID string, limit int) ([]models.BookingHistory, error) {
	return s.store.AccountHistory(ctx, accountID, limit)
}

// RunSweeper periodically announces booked seats that ran past their
// expiry on the admin channel. It never auto-releases: the yellow
// awaiting-release state stays observable until an explicit release.
func (s *SeatService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepExpired(ctx)
		}
	}
}

func (s *SeatService) sweepExpired(ctx context.Context) {
	expired, err := s.store.ExpiredSeats(ctx, s.now().UTC())
	if err != nil {
		log.Printf("expiry sweep failed: %v", err)
		return
	}

	for _, seat := range expired {
		s.notifier.Publish(ChannelAdmin, models.NewRealtimeEvent(models.EventSeatExpired, map[string]any{
			"seat_number": seat.Number,
			"account_id":  seat.Occupant,
			"expired_at":  seat.ExpiresAt.Format(time.RFC3339),
		}))
	}

	if len(expired) > 0 {
		log.Printf("expiry sweep: %d seats awaiting release", len(expired))
	}
}
