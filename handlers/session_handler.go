package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"studyseat-system/services"
)

// SessionHeader carries the opaque session id on every authenticated call.
const SessionHeader = "X-Session-Id"

type SessionHandler struct {
	sessions *services.SessionService
}

func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type createSessionRequest struct {
	Device string `json:"device"`
}

// CreateSession opens the account's single active session, displacing any
// previous one. Called right after PocketBase authentication.
func (h *SessionHandler) CreateSession(e *core.RequestEvent) error {
	var req createSessionRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("invalid request body", err)
	}
	if req.Device == "" {
		req.Device = e.Request.UserAgent()
	}

	id, err := h.sessions.Create(e.Request.Context(), e.Auth.Id, req.Device)
	if err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]string{"session_id": id})
}

// ValidateSession is the client's liveness poll: it reports whether the
// presented session is still the active one, without refreshing it.
func (h *SessionHandler) ValidateSession(e *core.RequestEvent) error {
	sessionID := e.Request.Header.Get(SessionHeader)
	if sessionID == "" {
		return apis.NewBadRequestError("missing "+SessionHeader+" header", nil)
	}

	err := h.sessions.Check(e.Request.Context(), e.Auth.Id, sessionID)
	if err != nil {
		return fail(e, err)
	}

	return e.JSON(http.StatusOK, map[string]bool{"valid": true})
}

// Heartbeat refreshes the session's last-activity mark. Stale heartbeats
// from a displaced session are dropped silently.
func (h *SessionHandler) Heartbeat(e *core.RequestEvent) error {
	sessionID := e.Request.Header.Get(SessionHeader)
	if sessionID == "" {
		return apis.NewBadRequestError("missing "+SessionHeader+" header", nil)
	}

	h.sessions.Heartbeat(e.Request.Context(), e.Auth.Id, sessionID)

	return e.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Logout clears the account's session record.
func (h *SessionHandler) Logout(e *core.RequestEvent) error {
	if err := h.sessions.Clear(e.Request.Context(), e.Auth.Id); err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]string{"status": "logged out"})
}

// RealtimeChannels tells a client which channels to re-join after a
// reconnect. No subscription state is kept server side.
func (h *SessionHandler) RealtimeChannels(e *core.RequestEvent) error {
	return e.JSON(http.StatusOK, map[string]any{
		"channels": []string{
			services.ChannelSeats,
			services.AccountChannel(e.Auth.Id),
		},
	})
}

// RequireSession is the middleware guarding state-changing routes: the
// caller must present the currently active session id for its account.
func (h *SessionHandler) RequireSession() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		sessionID := e.Request.Header.Get(SessionHeader)
		if sessionID == "" {
			return apis.NewUnauthorizedError("missing "+SessionHeader+" header", nil)
		}

		if err := h.sessions.Check(e.Request.Context(), e.Auth.Id, sessionID); err != nil {
			return fail(e, err)
		}

		return e.Next()
	}
}
