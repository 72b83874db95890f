package services

import (
	"context"
	"sync"
	"time"

	"studyseat-system/internal/status"
	"studyseat-system/models"
)

// fakeSeatStore is a mutex-guarded in-memory SeatStore with the same
// conditional-update semantics as the SQL implementation, so the race
// scenarios are exercised honestly.
type fakeSeatStore struct {
	mu      sync.Mutex
	seats   map[int]*models.Seat
	history []models.BookingHistory
}

func newFakeSeatStore(n int) *fakeSeatStore {
	seats := make(map[int]*models.Seat, n)
	for i := 1; i <= n; i++ {
		seats[i] = &models.Seat{Number: i, Status: models.SeatAvailable}
	}
	return &fakeSeatStore{seats: seats}
}

func (f *fakeSeatStore) Seat(_ context.Context, number int) (*models.Seat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seat, ok := f.seats[number]
	if !ok {
		return nil, status.ErrSeatNotFound
	}
	cp := *seat
	return &cp, nil
}

func (f *fakeSeatStore) Seats(_ context.Context) ([]models.Seat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Seat, 0, len(f.seats))
	for i := 1; i <= len(f.seats); i++ {
		out = append(out, *f.seats[i])
	}
	return out, nil
}

func (f *fakeSeatStore) AccountSeat(_ context.Context, accountID string) (*models.Seat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, seat := range f.seats {
		if seat.Status == models.SeatBooked && seat.Occupant == accountID {
			cp := *seat
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeSeatStore) OccupyIfAvailable(_ context.Context, number int, occ models.Occupancy, replacing int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seat, ok := f.seats[number]
	if !ok || seat.Status != models.SeatAvailable {
		return false, nil
	}
	for n, other := range f.seats {
		if n != replacing && other.Status == models.SeatBooked && other.Occupant == occ.Account {
			return false, nil
		}
	}
	seat.Status = models.SeatBooked
	seat.Occupant = occ.Account
	seat.Shift = occ.Shift
	seat.BookedAt = occ.BookedAt
	seat.ExpiresAt = occ.ExpiresAt
	seat.LastPayment = occ.PaymentRef
	return true, nil
}

func (f *fakeSeatStore) ReleaseSeat(_ context.Context, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	seat, ok := f.seats[number]
	if !ok {
		return status.ErrSeatNotFound
	}
	seat.Status = models.SeatAvailable
	seat.Occupant = ""
	seat.Shift = ""
	seat.BookedAt = time.Time{}
	seat.ExpiresAt = time.Time{}
	return nil
}

func (f *fakeSeatStore) ExtendExpiry(_ context.Context, number int, occupant string, until time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seat, ok := f.seats[number]
	if !ok || seat.Status != models.SeatBooked || seat.Occupant != occupant {
		return false, nil
	}
	seat.ExpiresAt = until
	return true, nil
}

func (f *fakeSeatStore) SetStatusIfVacant(_ context.Context, number int, st models.SeatStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seat, ok := f.seats[number]
	if !ok || seat.Status == models.SeatBooked {
		return false, nil
	}
	seat.Status = st
	return true, nil
}

func (f *fakeSeatStore) ExpiredSeats(_ context.Context, now time.Time) ([]models.Seat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Seat
	for i := 1; i <= len(f.seats); i++ {
		seat := f.seats[i]
		if seat.Status == models.SeatBooked && !seat.ExpiresAt.IsZero() && now.After(seat.ExpiresAt) {
			out = append(out, *seat)
		}
	}
	return out, nil
}

func (f *fakeSeatStore) OpenHistory(_ context.Context, h models.BookingHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, h)
	return nil
}

func (f *fakeSeatStore) CloseHistory(_ context.Context, number int, account string, endedAt time.Time, reason models.ReleaseReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.history) - 1; i >= 0; i-- {
		h := &f.history[i]
		if h.SeatNumber == number && h.Account == account && h.EndedAt.IsZero() {
			h.EndedAt = endedAt
			h.Reason = reason
			return nil
		}
	}
	return nil
}

func (f *fakeSeatStore) AccountHistory(_ context.Context, accountID string, limit int) ([]models.BookingHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.BookingHistory
	for i := len(f.history) - 1; i >= 0 && len(out) < limit; i-- {
		if f.history[i].Account == accountID {
			out = append(out, f.history[i])
		}
	}
	return out, nil
}

// fakePaymentStore mirrors the conditional MarkVerified barrier in memory.
type fakePaymentStore struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: make(map[string]*models.Payment)}
}

func (f *fakePaymentStore) CreatePayment(_ context.Context, p *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.payments[p.OrderID] = &cp
	return nil
}

func (f *fakePaymentStore) PaymentByOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[orderID]
	if !ok {
		return nil, status.ErrOrderNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePaymentStore) PaymentByPaymentID(_ context.Context, paymentID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.PaymentID == paymentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, status.ErrPaymentNotFound
}

func (f *fakePaymentStore) MarkVerified(_ context.Context, orderID, paymentID, signature string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[orderID]
	if !ok || p.Verification != models.VerificationPending {
		return false, nil
	}
	p.Verification = models.VerificationVerified
	p.PaymentID = paymentID
	p.Signature = signature
	return true, nil
}

func (f *fakePaymentStore) MarkVerificationFailed(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[orderID]
	if !ok {
		return status.ErrOrderNotFound
	}
	p.Verification = models.VerificationFailed
	return nil
}

func (f *fakePaymentStore) SetPaymentStatus(_ context.Context, orderID string, st models.PaymentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[orderID]
	if !ok {
		return status.ErrOrderNotFound
	}
	p.Status = st
	return nil
}

func (f *fakePaymentStore) VerifiedPayments(_ context.Context) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payment
	for _, p := range f.payments {
		if p.Verification == models.VerificationVerified {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePaymentStore) AccountPayments(_ context.Context, accountID string, limit int) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payment
	for _, p := range f.payments {
		if p.Account == accountID && len(out) < limit {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeProfileStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{accounts: make(map[string]*models.Account)}
}

func (f *fakeProfileStore) addAccount(a models.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[a.ID] = &a
}

func (f *fakeProfileStore) Account(_ context.Context, accountID string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return nil, status.ErrStorageUnavailable
	}
	cp := *a
	return &cp, nil
}

func (f *fakeProfileStore) SetAccountSeat(_ context.Context, accountID string, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[accountID]; ok {
		a.SeatNumber = number
	}
	return nil
}

func (f *fakeProfileStore) SetAccountPayment(_ context.Context, accountID string, st models.PaymentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[accountID]; ok {
		a.PaymentStatus = st
	}
	return nil
}

// recordingNotifier collects published events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Channel string
	Event   models.RealtimeEvent
}

func (n *recordingNotifier) Publish(channel string, event models.RealtimeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, publishedEvent{Channel: channel, Event: event})
}

func (n *recordingNotifier) eventsOfType(t models.EventType) []publishedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []publishedEvent
	for _, e := range n.events {
		if e.Event.Type == t {
			out = append(out, e)
		}
	}
	return out
}
