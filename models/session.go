package models

import "time"

// Session is the single active login record of an account. At most one
// exists per account; a newer login replaces it (last-write-wins).
type Session struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	Device       string    `json:"device"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Expired reports whether the session has been idle past the timeout.
func (s *Session) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivity) > timeout
}
