package models

// Account mirrors the identity-provider record plus the booking state the
// core attaches to it. Profile completeness is derived from field presence,
// never stored.
type Account struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Email         string        `json:"email"`
	Phone         string        `json:"phone"`
	SeatNumber    int           `json:"seat_number,omitempty"` // 0 = no seat
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
}

// ProfileComplete gates booking eligibility.
func (a *Account) ProfileComplete() bool {
	return a.Name != "" && a.Email != "" && a.Phone != ""
}
