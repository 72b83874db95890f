package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyseat-system/internal/status"
	"studyseat-system/models"
)

const sessionTimeout = 30 * time.Minute

func newSessionFixture(t *testing.T) (*SessionService, redismock.ClientMock, *recordingNotifier) {
	t.Helper()

	db, mock := redismock.NewClientMock()
	notifier := &recordingNotifier{}
	svc := NewSessionService(db, notifier, sessionTimeout)

	frozen := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }

	return svc, mock, notifier
}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("first session for an account", func(t *testing.T) {
		svc, mock, notifier := newSessionFixture(t)
		ts := svc.now().Format(time.RFC3339)

		mock.ExpectHGet("session:alice", "id").RedisNil()
		mock.Regexp().ExpectHSet("session:alice",
			"id", `[0-9a-f]{64}`,
			"device", "laptop",
			"created_at", ts,
			"last_activity", ts,
		).SetVal(4)
		mock.ExpectExpire("session:alice", 2*sessionTimeout).SetVal(true)

		id, err := svc.Create(ctx, "alice", "laptop")
		require.NoError(t, err)
		assert.Len(t, id, 64)

		// No prior session, nobody to notify.
		assert.Empty(t, notifier.eventsOfType(models.EventSessionInvalidated))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("new session displaces the previous one", func(t *testing.T) {
		svc, mock, notifier := newSessionFixture(t)
		ts := svc.now().Format(time.RFC3339)

		mock.ExpectHGet("session:alice", "id").SetVal("oldsession")
		mock.Regexp().ExpectHSet("session:alice",
			"id", `[0-9a-f]{64}`,
			"device", "phone",
			"created_at", ts,
			"last_activity", ts,
		).SetVal(4)
		mock.ExpectExpire("session:alice", 2*sessionTimeout).SetVal(true)

		_, err := svc.Create(ctx, "alice", "phone")
		require.NoError(t, err)

		events := notifier.eventsOfType(models.EventSessionInvalidated)
		require.Len(t, events, 1)
		assert.Equal(t, AccountChannel("alice"), events[0].Channel)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis failure surfaces as storage error", func(t *testing.T) {
		svc, mock, _ := newSessionFixture(t)

		mock.ExpectHGet("session:alice", "id").SetErr(assert.AnError)

		_, err := svc.Create(ctx, "alice", "laptop")
		assert.ErrorIs(t, err, status.ErrStorageUnavailable)
	})
}

func TestCheckSession(t *testing.T) {
	ctx := context.Background()

	sessionData := func(svc *SessionService, id string, lastActivity time.Time) map[string]string {
		return map[string]string{
			"id":            id,
			"device":        "laptop",
			"created_at":    svc.now().Add(-time.Hour).Format(time.RFC3339),
			"last_activity": lastActivity.Format(time.RFC3339),
		}
	}

	t.Run("valid session passes", func(t *testing.T) {
		svc, mock, _ := newSessionFixture(t)
		mock.ExpectHGetAll("session:alice").SetVal(sessionData(svc, "sess1", svc.now().Add(-time.Minute)))

		assert.NoError(t, svc.Check(ctx, "alice", "sess1"))
	})

	t.Run("mismatched id is invalid", func(t *testing.T) {
		svc, mock, _ := newSessionFixture(t)
		mock.ExpectHGetAll("session:alice").SetVal(sessionData(svc, "sess2", svc.now()))

		err := svc.Check(ctx, "alice", "sess1")
		assert.ErrorIs(t, err, status.ErrSessionInvalid)
	})

	t.Run("missing record is invalid", func(t *testing.T) {
		svc, mock, _ := newSessionFixture(t)
		mock.ExpectHGetAll("session:alice").SetVal(map[string]string{})

		err := svc.Check(ctx, "alice", "sess1")
		assert.ErrorIs(t, err, status.ErrSessionInvalid)
	})

	t.Run("idle past the timeout is expired", func(t *testing.T) {
		svc, mock, _ := newSessionFixture(t)
		mock.ExpectHGetAll("session:alice").SetVal(sessionData(svc, "sess1", svc.now().Add(-sessionTimeout-time.Minute)))

		err := svc.Check(ctx, "alice", "sess1")
		assert.ErrorIs(t, err, status.ErrSessionExpired)
	})
}

func TestValidateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("true for the active session", func(t *testing.T) {
		svc, mock, _ := newSessionFixture(t)
		mock.ExpectHGetAll("session:alice").SetVal(map[string]string{
			"id":            "sess1",
			"last_activity": svc.now().Format(time.RFC3339),
		})

		ok, err := svc.Validate(ctx, "alice", "sess1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("false without an error for a displaced session", func(t *testing.T) {
		svc, mock, _ := newSessionFixture(t)
		mock.ExpectHGetAll("session:alice").SetVal(map[string]string{
			"id":            "sess2",
			"last_activity": svc.now().Format(time.RFC3339),
		})

		ok, err := svc.Validate(ctx, "alice", "sess1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("storage errors propagate", func(t *testing.T) {
		svc, mock, _ := newSessionFixture(t)
		mock.ExpectHGetAll("session:alice").SetErr(assert.AnError)

		_, err := svc.Validate(ctx, "alice", "sess1")
		assert.ErrorIs(t, err, status.ErrStorageUnavailable)
	})
}

func TestHeartbeat(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshes the matching session", func(t *testing.T) {
		svc, mock, _ := newSessionFixture(t)

		mock.ExpectEval(heartbeatLua, []string{"session:alice"},
			"sess1",
			svc.now().Format(time.RFC3339),
			int(2*sessionTimeout/time.Second),
		).SetVal(int64(1))

		svc.Heartbeat(ctx, "alice", "sess1")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale heartbeat is a silent no-op", func(t *testing.T) {
		svc, mock, _ := newSessionFixture(t)

		mock.ExpectEval(heartbeatLua, []string{"session:alice"},
			"stale",
			svc.now().Format(time.RFC3339),
			int(2*sessionTimeout/time.Second),
		).SetVal(int64(0))

		svc.Heartbeat(ctx, "alice", "stale")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestClearSession(t *testing.T) {
	svc, mock, _ := newSessionFixture(t)

	mock.ExpectDel("session:alice").SetVal(1)

	require.NoError(t, svc.Clear(context.Background(), "alice"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
