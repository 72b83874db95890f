package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyseat-system/internal/status"
	"studyseat-system/models"
)

func newSeatFixture(t *testing.T) (*SeatService, *fakeSeatStore, *fakeProfileStore, *recordingNotifier) {
	t.Helper()

	store := newFakeSeatStore(models.TotalSeats)
	profile := newFakeProfileStore()
	profile.addAccount(models.Account{ID: "alice", Name: "Alice", Email: "alice@example.com", Phone: "111"})
	profile.addAccount(models.Account{ID: "bob", Name: "Bob", Email: "bob@example.com", Phone: "222"})
	notifier := &recordingNotifier{}

	return NewSeatService(store, profile, notifier), store, profile, notifier
}

func TestBookSeat(t *testing.T) {
	ctx := context.Background()

	t.Run("books an available seat", func(t *testing.T) {
		svc, _, profile, notifier := newSeatFixture(t)

		seat, err := svc.BookSeat(ctx, BookSeatRequest{
			SeatNumber: 12,
			AccountID:  "alice",
			Shift:      models.ShiftFullDay,
			Months:     3,
			PaymentRef: "order_1",
		})
		require.NoError(t, err)

		assert.Equal(t, models.SeatBooked, seat.Status)
		assert.Equal(t, "alice", seat.Occupant)
		assert.Equal(t, "order_1", seat.LastPayment)
		assert.WithinDuration(t, time.Now().AddDate(0, 3, 0), seat.ExpiresAt, time.Minute)

		account, err := profile.Account(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 12, account.SeatNumber)

		require.Len(t, notifier.eventsOfType(models.EventSeatBooked), 1)
	})

	t.Run("rejects out of range numbers", func(t *testing.T) {
		svc, _, _, _ := newSeatFixture(t)

		for _, n := range []int{0, -1, models.TotalSeats + 1} {
			_, err := svc.BookSeat(ctx, BookSeatRequest{SeatNumber: n, AccountID: "alice", Shift: models.ShiftMorning, Months: 1})
			assert.ErrorIs(t, err, status.ErrSeatOutOfRange, "seat %d", n)
		}
	})

	t.Run("rejects unknown shift and zero months", func(t *testing.T) {
		svc, _, _, _ := newSeatFixture(t)

		_, err := svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 1, AccountID: "alice", Shift: "night", Months: 1})
		assert.ErrorIs(t, err, status.ErrInvalidShift)

		_, err = svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 1, AccountID: "alice", Shift: models.ShiftMorning, Months: 0})
		assert.ErrorIs(t, err, status.ErrInvalidMonths)
	})

	t.Run("second booking of the same seat loses", func(t *testing.T) {
		svc, _, _, _ := newSeatFixture(t)

		_, err := svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 7, AccountID: "alice", Shift: models.ShiftMorning, Months: 1})
		require.NoError(t, err)

		_, err = svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 7, AccountID: "bob", Shift: models.ShiftMorning, Months: 1})
		assert.ErrorIs(t, err, status.ErrSeatTaken)
	})

	t.Run("exactly one of many concurrent bookings wins", func(t *testing.T) {
		svc, store, _, _ := newSeatFixture(t)
		profile := newFakeProfileStore()

		const racers = 20
		accounts := make([]string, racers)
		for i := range accounts {
			accounts[i] = string(rune('a'+i)) + "-racer"
			profile.addAccount(models.Account{ID: accounts[i], Name: "r", Email: "r@example.com", Phone: "3"})
		}
		svc = NewSeatService(store, profile, &recordingNotifier{})

		var wg sync.WaitGroup
		errs := make([]error, racers)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.BookSeat(ctx, BookSeatRequest{
					SeatNumber: 30, AccountID: accounts[i], Shift: models.ShiftEvening, Months: 1,
				})
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, status.ErrSeatTaken)
			}
		}
		assert.Equal(t, 1, winners)
	})

	t.Run("one seat per account", func(t *testing.T) {
		svc, _, _, _ := newSeatFixture(t)

		_, err := svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 1, AccountID: "alice", Shift: models.ShiftMorning, Months: 1})
		require.NoError(t, err)

		_, err = svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 2, AccountID: "alice", Shift: models.ShiftMorning, Months: 1})
		assert.ErrorIs(t, err, status.ErrOneSeatLimit)
	})

	t.Run("one seat rule holds when the prior-seat read is stale", func(t *testing.T) {
		store := &staleAccountStore{newFakeSeatStore(models.TotalSeats)}
		profile := newFakeProfileStore()
		profile.addAccount(models.Account{ID: "alice", Name: "Alice", Email: "alice@example.com", Phone: "111"})
		svc := NewSeatService(store, profile, &recordingNotifier{})

		_, err := svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 1, AccountID: "alice", Shift: models.ShiftMorning, Months: 1})
		require.NoError(t, err)

		// The stale read misses the first booking, so only the conditional
		// update itself stands between the account and a second seat.
		_, err = svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 2, AccountID: "alice", Shift: models.ShiftMorning, Months: 1})
		assert.ErrorIs(t, err, status.ErrOneSeatLimit)

		second, err := store.Seat(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, models.SeatAvailable, second.Status)
	})

	t.Run("one account racing itself for many seats wins at most one", func(t *testing.T) {
		store := &staleAccountStore{newFakeSeatStore(models.TotalSeats)}
		profile := newFakeProfileStore()
		profile.addAccount(models.Account{ID: "alice", Name: "Alice", Email: "alice@example.com", Phone: "111"})
		svc := NewSeatService(store, profile, &recordingNotifier{})

		const racers = 10
		var wg sync.WaitGroup
		for i := 1; i <= racers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				svc.BookSeat(ctx, BookSeatRequest{SeatNumber: n, AccountID: "alice", Shift: models.ShiftMorning, Months: 1})
			}(i)
		}
		wg.Wait()

		seats, err := store.Seats(ctx)
		require.NoError(t, err)
		held := 0
		for _, seat := range seats {
			if seat.Status == models.SeatBooked && seat.Occupant == "alice" {
				held++
			}
		}
		assert.Equal(t, 1, held)
	})

	t.Run("failed change-seat commit rolls back the new seat", func(t *testing.T) {
		store := &failingCloseStore{fakeSeatStore: newFakeSeatStore(models.TotalSeats), failSeat: 1}
		profile := newFakeProfileStore()
		profile.addAccount(models.Account{ID: "alice", Name: "Alice", Email: "alice@example.com", Phone: "111"})
		svc := NewSeatService(store, profile, &recordingNotifier{})

		_, err := svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 1, AccountID: "alice", Shift: models.ShiftMorning, Months: 1})
		require.NoError(t, err)

		_, err = svc.BookSeat(ctx, BookSeatRequest{
			SeatNumber: 2, AccountID: "alice", Shift: models.ShiftMorning, Months: 1, ChangeSeat: true,
		})
		assert.ErrorIs(t, err, status.ErrStorageUnavailable)

		// The old seat was freed before the failure and the new one was
		// rolled back; the account holds nothing until manual repair.
		first, err := store.Seat(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.SeatAvailable, first.Status)

		second, err := store.Seat(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, models.SeatAvailable, second.Status)
	})

	t.Run("change seat releases the old one", func(t *testing.T) {
		svc, store, profile, notifier := newSeatFixture(t)

		_, err := svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 1, AccountID: "alice", Shift: models.ShiftMorning, Months: 1})
		require.NoError(t, err)

		seat, err := svc.BookSeat(ctx, BookSeatRequest{
			SeatNumber: 2, AccountID: "alice", Shift: models.ShiftMorning, Months: 1, ChangeSeat: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "alice", seat.Occupant)

		old, err := store.Seat(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.SeatAvailable, old.Status)
		assert.Empty(t, old.Occupant)

		account, err := profile.Account(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 2, account.SeatNumber)

		require.Len(t, notifier.eventsOfType(models.EventSeatChanged), 1)
	})
}

// staleAccountStore simulates the window where two bookings by the same
// account both read "no prior seat" before either commits.
type staleAccountStore struct {
	*fakeSeatStore
}

func (s *staleAccountStore) AccountSeat(context.Context, string) (*models.Seat, error) {
	return nil, nil
}

// failingCloseStore fails CloseHistory for one seat to force a mid-commit
// persistence error.
type failingCloseStore struct {
	*fakeSeatStore
	failSeat int
}

func (s *failingCloseStore) CloseHistory(ctx context.Context, number int, account string, endedAt time.Time, reason models.ReleaseReason) error {
	if number == s.failSeat {
		return status.ErrStorageUnavailable
	}
	return s.fakeSeatStore.CloseHistory(ctx, number, account, endedAt, reason)
}

func TestReleaseSeat(t *testing.T) {
	ctx := context.Background()

	t.Run("releases a booked seat and closes history", func(t *testing.T) {
		svc, store, profile, notifier := newSeatFixture(t)

		_, err := svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 5, AccountID: "alice", Shift: models.ShiftMorning, Months: 1})
		require.NoError(t, err)

		require.NoError(t, svc.ReleaseSeat(ctx, 5, models.ReasonUserRequest))

		seat, err := store.Seat(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, models.SeatAvailable, seat.Status)

		history, err := svc.AccountHistory(ctx, "alice", 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.ReasonUserRequest, history[0].Reason)
		assert.False(t, history[0].EndedAt.IsZero())

		account, err := profile.Account(ctx, "alice")
		require.NoError(t, err)
		assert.Zero(t, account.SeatNumber)

		require.Len(t, notifier.eventsOfType(models.EventSeatReleased), 1)
	})

	t.Run("releasing an expired booking turns the seat green", func(t *testing.T) {
		svc, store, _, _ := newSeatFixture(t)

		_, err := svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 12, AccountID: "alice", Shift: models.ShiftMorning, Months: 1})
		require.NoError(t, err)

		later := time.Now().AddDate(0, 2, 0)
		svc.now = func() time.Time { return later }

		seat, err := store.Seat(ctx, 12)
		require.NoError(t, err)
		require.Equal(t, models.DisplayYellow, seat.DisplayStatus(later))

		require.NoError(t, svc.ReleaseSeat(ctx, 12, models.ReasonExpired))

		seat, err = store.Seat(ctx, 12)
		require.NoError(t, err)
		assert.Equal(t, models.SeatAvailable, seat.Status)
		assert.Equal(t, models.DisplayGreen, seat.DisplayStatus(later))

		history, err := svc.AccountHistory(ctx, "alice", 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.ReasonExpired, history[0].Reason)
	})

	t.Run("releasing an available seat reports no active booking", func(t *testing.T) {
		svc, _, _, _ := newSeatFixture(t)

		err := svc.ReleaseSeat(ctx, 3, models.ReasonManual)
		assert.ErrorIs(t, err, status.ErrNoActiveBooking)
	})

	t.Run("rejects unknown reasons", func(t *testing.T) {
		svc, _, _, _ := newSeatFixture(t)

		err := svc.ReleaseSeat(ctx, 3, "because")
		assert.ErrorIs(t, err, status.ErrInvalidReason)
	})

	t.Run("frees a maintenance seat without history", func(t *testing.T) {
		svc, store, _, _ := newSeatFixture(t)

		require.NoError(t, svc.SetStatus(ctx, 9, models.SeatMaintenance))
		require.NoError(t, svc.ReleaseSeat(ctx, 9, models.ReasonAdmin))

		seat, err := store.Seat(ctx, 9)
		require.NoError(t, err)
		assert.Equal(t, models.SeatAvailable, seat.Status)
	})
}

func TestExtendBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("pushes the expiry forward", func(t *testing.T) {
		svc, _, _, notifier := newSeatFixture(t)

		seat, err := svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 4, AccountID: "alice", Shift: models.ShiftMorning, Months: 1})
		require.NoError(t, err)
		before := seat.ExpiresAt

		extended, err := svc.ExtendBooking(ctx, 4, "alice", 2)
		require.NoError(t, err)
		assert.Equal(t, before.AddDate(0, 2, 0), extended.ExpiresAt)

		require.Len(t, notifier.eventsOfType(models.EventSeatExtended), 1)
	})

	t.Run("rejects other accounts", func(t *testing.T) {
		svc, _, _, _ := newSeatFixture(t)

		_, err := svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 4, AccountID: "alice", Shift: models.ShiftMorning, Months: 1})
		require.NoError(t, err)

		_, err = svc.ExtendBooking(ctx, 4, "bob", 1)
		assert.ErrorIs(t, err, status.ErrNotSeatOwner)
	})

	t.Run("rejects seats without a booking", func(t *testing.T) {
		svc, _, _, _ := newSeatFixture(t)

		_, err := svc.ExtendBooking(ctx, 4, "alice", 1)
		assert.ErrorIs(t, err, status.ErrNoActiveBooking)
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("cannot force a seat to booked", func(t *testing.T) {
		svc, _, _, _ := newSeatFixture(t)

		err := svc.SetStatus(ctx, 2, models.SeatBooked)
		assert.ErrorIs(t, err, status.ErrSeatOccupied)
	})

	t.Run("cannot change an occupied seat", func(t *testing.T) {
		svc, _, _, _ := newSeatFixture(t)

		_, err := svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 2, AccountID: "alice", Shift: models.ShiftMorning, Months: 1})
		require.NoError(t, err)

		err = svc.SetStatus(ctx, 2, models.SeatMaintenance)
		assert.ErrorIs(t, err, status.ErrSeatOccupied)
	})
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	svc, store, _, notifier := newSeatFixture(t)

	_, err := svc.BookSeat(ctx, BookSeatRequest{SeatNumber: 11, AccountID: "alice", Shift: models.ShiftMorning, Months: 1})
	require.NoError(t, err)

	// Move past the expiry. The sweeper must announce the seat on the admin
	// channel but leave the booking untouched.
	svc.now = func() time.Time { return time.Now().AddDate(0, 2, 0) }
	svc.sweepExpired(ctx)

	events := notifier.eventsOfType(models.EventSeatExpired)
	require.Len(t, events, 1)
	assert.Equal(t, ChannelAdmin, events[0].Channel)

	seat, err := store.Seat(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, models.SeatBooked, seat.Status)
	assert.Equal(t, "alice", seat.Occupant)
	assert.Equal(t, models.DisplayYellow, seat.DisplayStatus(svc.now()))
}
