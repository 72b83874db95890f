package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"studyseat-system/internal/status"
	"studyseat-system/models"
)

// PBStore backs the store interfaces with PocketBase collections. The
// conditional updates go through raw SQL so the status check and the write
// are one statement; everything else uses the record API.
type PBStore struct {
	app core.App
}

func NewPBStore(app core.App) *PBStore {
	return &PBStore{app: app}
}

func seatFromRecord(r *core.Record) *models.Seat {
	return &models.Seat{
		Number:      r.GetInt("number"),
		Status:      models.SeatStatus(r.GetString("status")),
		Occupant:    r.GetString("occupant"),
		Shift:       models.Shift(r.GetString("shift")),
		BookedAt:    r.GetDateTime("booked_at").Time(),
		ExpiresAt:   r.GetDateTime("expires_at").Time(),
		LastPayment: r.GetString("last_payment"),
	}
}

func (s *PBStore) seatRecord(number int) (*core.Record, error) {
	record, err := s.app.FindFirstRecordByFilter("seats", "number = {:number}", dbx.Params{"number": number})
	if err != nil {
		return nil, status.ErrSeatNotFound.Withf("seat %d does not exist", number)
	}
	return record, nil
}

func (s *PBStore) Seat(ctx context.Context, number int) (*models.Seat, error) {
	record, err := s.seatRecord(number)
	if err != nil {
		return nil, err
	}
	return seatFromRecord(record), nil
}

func (s *PBStore) Seats(ctx context.Context) ([]models.Seat, error) {
	records, err := s.app.FindRecordsByFilter("seats", "number >= 1", "number", 0, 0)
	if err != nil {
		return nil, status.ErrStorageUnavailable.Withf("listing seats: %v", err)
	}

	seats := make([]models.Seat, 0, len(records))
	for _, r := range records {
		seats = append(seats, *seatFromRecord(r))
	}
	return seats, nil
}

func (s *PBStore) AccountSeat(ctx context.Context, accountID string) (*models.Seat, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"seats",
		"occupant = {:occupant} && status = 'booked'",
		dbx.Params{"occupant": accountID},
	)
	if err != nil {
		return nil, nil
	}
	return seatFromRecord(record), nil
}

// OccupyIfAvailable is the booking race's single decision point: the status
// check, the one-seat-per-account check and the occupancy write happen in
// one UPDATE, so neither two callers racing for the same seat nor one
// account racing for two seats can both see a row affected.
func (s *PBStore) OccupyIfAvailable(ctx context.Context, number int, occ models.Occupancy, replacing int) (bool, error) {
	res, err := s.app.DB().NewQuery(`
		UPDATE seats
		SET status = 'booked',
		    occupant = {:occupant},
		    shift = {:shift},
		    booked_at = {:bookedAt},
		    expires_at = {:expiresAt},
		    last_payment = {:paymentRef}
		WHERE number = {:number} AND status = 'available'
		  AND NOT EXISTS (
		      SELECT 1 FROM seats other
		      WHERE other.occupant = {:occupant}
		        AND other.status = 'booked'
		        AND other.number != {:replacing}
		  )
	`).Bind(dbx.Params{
		"occupant":   occ.Account,
		"shift":      string(occ.Shift),
		"bookedAt":   occ.BookedAt.UTC().Format(types.DefaultDateLayout),
		"expiresAt":  occ.ExpiresAt.UTC().Format(types.DefaultDateLayout),
		"paymentRef": occ.PaymentRef,
		"number":     number,
		"replacing":  replacing,
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, status.ErrStorageUnavailable.Withf("occupying seat %d: %v", number, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, status.ErrStorageUnavailable.Withf("occupying seat %d: %v", number, err)
	}
	return rows == 1, nil
}

func (s *PBStore) ReleaseSeat(ctx context.Context, number int) error {
	record, err := s.seatRecord(number)
	if err != nil {
		return err
	}

	record.Set("status", string(models.SeatAvailable))
	record.Set("occupant", "")
	record.Set("shift", "")
	record.Set("booked_at", "")
	record.Set("expires_at", "")

	if err := s.app.Save(record); err != nil {
		return status.ErrStorageUnavailable.Withf("releasing seat %d: %v", number, err)
	}
	return nil
}

func (s *PBStore) ExtendExpiry(ctx context.Context, number int, occupant string, until time.Time) (bool, error) {
	res, err := s.app.DB().NewQuery(`
		UPDATE seats
		SET expires_at = {:until}
		WHERE number = {:number} AND status = 'booked' AND occupant = {:occupant}
	`).Bind(dbx.Params{
		"until":    until.UTC().Format(types.DefaultDateLayout),
		"number":   number,
		"occupant": occupant,
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, status.ErrStorageUnavailable.Withf("extending seat %d: %v", number, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, status.ErrStorageUnavailable.Withf("extending seat %d: %v", number, err)
	}
	return rows == 1, nil
}

func (s *PBStore) SetStatusIfVacant(ctx context.Context, number int, st models.SeatStatus) (bool, error) {
	res, err := s.app.DB().NewQuery(`
		UPDATE seats
		SET status = {:status}
		WHERE number = {:number} AND status != 'booked'
	`).Bind(dbx.Params{
		"status": string(st),
		"number": number,
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, status.ErrStorageUnavailable.Withf("updating seat %d: %v", number, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, status.ErrStorageUnavailable.Withf("updating seat %d: %v", number, err)
	}
	return rows == 1, nil
}

func (s *PBStore) ExpiredSeats(ctx context.Context, now time.Time) ([]models.Seat, error) {
	records, err := s.app.FindRecordsByFilter(
		"seats",
		"status = 'booked' && expires_at != '' && expires_at < {:now}",
		"number", 0, 0,
		dbx.Params{"now": now.UTC().Format(types.DefaultDateLayout)},
	)
	if err != nil {
		return nil, status.ErrStorageUnavailable.Withf("listing expired seats: %v", err)
	}

	seats := make([]models.Seat, 0, len(records))
	for _, r := range records {
		seats = append(seats, *seatFromRecord(r))
	}
	return seats, nil
}

// BookedSeatCount feeds the occupancy gauge.
func (s *PBStore) BookedSeatCount(ctx context.Context) (int, error) {
	var count int
	err := s.app.DB().NewQuery("SELECT COUNT(*) FROM seats WHERE status = 'booked'").
		WithContext(ctx).Row(&count)
	if err != nil {
		return 0, status.ErrStorageUnavailable.Withf("counting booked seats: %v", err)
	}
	return count, nil
}

func (s *PBStore) OpenHistory(ctx context.Context, h models.BookingHistory) error {
	collection, err := s.app.FindCollectionByNameOrId("booking_history")
	if err != nil {
		return status.ErrStorageUnavailable.Withf("booking history: %v", err)
	}

	record := core.NewRecord(collection)
	record.Set("seat_number", h.SeatNumber)
	record.Set("account", h.Account)
	record.Set("shift", string(h.Shift))
	record.Set("months", h.Months)
	record.Set("started_at", h.StartedAt.UTC().Format(types.DefaultDateLayout))
	record.Set("payment_ref", h.PaymentRef)

	if err := s.app.Save(record); err != nil {
		return status.ErrStorageUnavailable.Withf("booking history: %v", err)
	}
	return nil
}

func (s *PBStore) CloseHistory(ctx context.Context, number int, account string, endedAt time.Time, reason models.ReleaseReason) error {
	record, err := s.app.FindFirstRecordByFilter(
		"booking_history",
		"seat_number = {:number} && account = {:account} && ended_at = ''",
		dbx.Params{"number": number, "account": account},
	)
	if err != nil {
		// No open interval to close; releasing an administratively assigned
		// seat lands here.
		return nil
	}

	record.Set("ended_at", endedAt.UTC().Format(types.DefaultDateLayout))
	record.Set("reason", string(reason))

	if err := s.app.Save(record); err != nil {
		return status.ErrStorageUnavailable.Withf("booking history: %v", err)
	}
	return nil
}

func (s *PBStore) AccountHistory(ctx context.Context, accountID string, limit int) ([]models.BookingHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	records, err := s.app.FindRecordsByFilter(
		"booking_history",
		"account = {:account}",
		"-started_at", limit, 0,
		dbx.Params{"account": accountID},
	)
	if err != nil {
		return nil, status.ErrStorageUnavailable.Withf("booking history: %v", err)
	}

	out := make([]models.BookingHistory, 0, len(records))
	for _, r := range records {
		out = append(out, models.BookingHistory{
			ID:         r.Id,
			SeatNumber: r.GetInt("seat_number"),
			Account:    r.GetString("account"),
			Shift:      models.Shift(r.GetString("shift")),
			Months:     r.GetInt("months"),
			StartedAt:  r.GetDateTime("started_at").Time(),
			EndedAt:    r.GetDateTime("ended_at").Time(),
			Reason:     models.ReleaseReason(r.GetString("reason")),
			PaymentRef: r.GetString("payment_ref"),
		})
	}
	return out, nil
}

func paymentFromRecord(r *core.Record) (*models.Payment, error) {
	amount, err := decimal.NewFromString(r.GetString("amount"))
	if err != nil {
		return nil, fmt.Errorf("payment %s has malformed amount: %w", r.GetString("order_id"), err)
	}

	return &models.Payment{
		OrderID:      r.GetString("order_id"),
		PaymentID:    r.GetString("payment_id"),
		Signature:    r.GetString("signature"),
		Amount:       amount,
		Account:      r.GetString("account"),
		SeatNumber:   r.GetInt("seat_number"),
		Shift:        models.Shift(r.GetString("shift")),
		Months:       r.GetInt("months"),
		Status:       models.PaymentStatus(r.GetString("status")),
		Verification: models.VerificationStatus(r.GetString("verification")),
		CreatedAt:    r.GetDateTime("created").Time(),
	}, nil
}

func (s *PBStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	collection, err := s.app.FindCollectionByNameOrId("payments")
	if err != nil {
		return status.ErrStorageUnavailable.Withf("payments: %v", err)
	}

	record := core.NewRecord(collection)
	record.Set("order_id", p.OrderID)
	// Amount is stored as text so decimal values survive the round trip
	// without float drift.
	record.Set("amount", p.Amount.String())
	record.Set("account", p.Account)
	record.Set("seat_number", p.SeatNumber)
	record.Set("shift", string(p.Shift))
	record.Set("months", p.Months)
	record.Set("status", string(p.Status))
	record.Set("verification", string(p.Verification))

	if err := s.app.Save(record); err != nil {
		return status.ErrStorageUnavailable.Withf("payments: %v", err)
	}
	return nil
}

func (s *PBStore) PaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	record, err := s.app.FindFirstRecordByFilter("payments", "order_id = {:id}", dbx.Params{"id": orderID})
	if err != nil {
		return nil, status.ErrOrderNotFound.Withf("order %s not found", orderID)
	}
	return paymentFromRecord(record)
}

func (s *PBStore) PaymentByPaymentID(ctx context.Context, paymentID string) (*models.Payment, error) {
	record, err := s.app.FindFirstRecordByFilter("payments", "payment_id = {:id}", dbx.Params{"id": paymentID})
	if err != nil {
		return nil, status.ErrPaymentNotFound.Withf("payment %s not found", paymentID)
	}
	return paymentFromRecord(record)
}

// MarkVerified is the verification idempotency barrier, same conditional
// UPDATE shape as the seat occupation.
func (s *PBStore) MarkVerified(ctx context.Context, orderID, paymentID, signature string) (bool, error) {
	res, err := s.app.DB().NewQuery(`
		UPDATE payments
		SET verification = 'verified',
		    payment_id = {:paymentID},
		    signature = {:signature}
		WHERE order_id = {:orderID} AND verification = 'pending'
	`).Bind(dbx.Params{
		"paymentID": paymentID,
		"signature": signature,
		"orderID":   orderID,
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, status.ErrStorageUnavailable.Withf("verifying order %s: %v", orderID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, status.ErrStorageUnavailable.Withf("verifying order %s: %v", orderID, err)
	}
	return rows == 1, nil
}

func (s *PBStore) MarkVerificationFailed(ctx context.Context, orderID string) error {
	record, err := s.app.FindFirstRecordByFilter("payments", "order_id = {:id}", dbx.Params{"id": orderID})
	if err != nil {
		return status.ErrOrderNotFound.Withf("order %s not found", orderID)
	}

	record.Set("verification", string(models.VerificationFailed))
	if err := s.app.Save(record); err != nil {
		return status.ErrStorageUnavailable.Withf("payments: %v", err)
	}
	return nil
}

func (s *PBStore) SetPaymentStatus(ctx context.Context, orderID string, st models.PaymentStatus) error {
	record, err := s.app.FindFirstRecordByFilter("payments", "order_id = {:id}", dbx.Params{"id": orderID})
	if err != nil {
		return status.ErrOrderNotFound.Withf("order %s not found", orderID)
	}

	record.Set("status", string(st))
	if err := s.app.Save(record); err != nil {
		return status.ErrStorageUnavailable.Withf("payments: %v", err)
	}
	return nil
}

func (s *PBStore) VerifiedPayments(ctx context.Context) ([]models.Payment, error) {
	records, err := s.app.FindRecordsByFilter("payments", "verification = 'verified'", "-created", 0, 0)
	if err != nil {
		return nil, status.ErrStorageUnavailable.Withf("payments: %v", err)
	}

	out := make([]models.Payment, 0, len(records))
	for _, r := range records {
		p, err := paymentFromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *PBStore) AccountPayments(ctx context.Context, accountID string, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	records, err := s.app.FindRecordsByFilter(
		"payments",
		"account = {:account}",
		"-created", limit, 0,
		dbx.Params{"account": accountID},
	)
	if err != nil {
		return nil, status.ErrStorageUnavailable.Withf("payments: %v", err)
	}

	out := make([]models.Payment, 0, len(records))
	for _, r := range records {
		p, err := paymentFromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *PBStore) Account(ctx context.Context, accountID string) (*models.Account, error) {
	record, err := s.app.FindRecordById("users", accountID)
	if err != nil {
		return nil, status.ErrStorageUnavailable.Withf("account %s: %v", accountID, err)
	}

	return &models.Account{
		ID:            record.Id,
		Name:          record.GetString("name"),
		Email:         record.GetString("email"),
		Phone:         record.GetString("phone"),
		SeatNumber:    record.GetInt("seat_number"),
		PaymentStatus: models.PaymentStatus(record.GetString("payment_status")),
	}, nil
}

func (s *PBStore) SetAccountSeat(ctx context.Context, accountID string, number int) error {
	record, err := s.app.FindRecordById("users", accountID)
	if err != nil {
		return status.ErrStorageUnavailable.Withf("account %s: %v", accountID, err)
	}

	record.Set("seat_number", number)
	if err := s.app.Save(record); err != nil {
		return status.ErrStorageUnavailable.Withf("account %s: %v", accountID, err)
	}
	return nil
}

func (s *PBStore) SetAccountPayment(ctx context.Context, accountID string, st models.PaymentStatus) error {
	record, err := s.app.FindRecordById("users", accountID)
	if err != nil {
		return status.ErrStorageUnavailable.Withf("account %s: %v", accountID, err)
	}

	record.Set("payment_status", string(st))
	if err := s.app.Save(record); err != nil {
		return status.ErrStorageUnavailable.Withf("account %s: %v", accountID, err)
	}
	return nil
}

var (
	_ SeatStore    = (*PBStore)(nil)
	_ PaymentStore = (*PBStore)(nil)
	_ ProfileStore = (*PBStore)(nil)
)
