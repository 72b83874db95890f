package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"studyseat-system/internal/status"
	"studyseat-system/models"
	"studyseat-system/utils"
)

// heartbeatLua refreshes last_activity only while the stored session id
// still matches, so a superseded session cannot resurrect itself.
const heartbeatLua = `
local id = redis.call('HGET', KEYS[1], 'id')
if id == ARGV[1] then
  redis.call('HSET', KEYS[1], 'last_activity', ARGV[2])
  redis.call('EXPIRE', KEYS[1], ARGV[3])
  return 1
end
return 0
`

var heartbeatScript = redis.NewScript(heartbeatLua)

// SessionService is the session registry: exactly one active session per
// account, keyed by account id in Redis. Creating a new session always
// wins (last-write-wins); the previous holder is told over its account
// channel and, as a fallback, discovers it on the next validation poll.
type SessionService struct {
	Redis    *redis.Client
	notifier Notifier
	timeout  time.Duration

	// now is swappable for tests.
	now func() time.Time
}

func NewSessionService(redisClient *redis.Client, notifier Notifier, timeout time.Duration) *SessionService {
	return &SessionService{
		Redis:    redisClient,
		notifier: notifier,
		timeout:  timeout,
		now:      time.Now,
	}
}

func sessionKey(accountID string) string {
	return fmt.Sprintf("session:%s", accountID)
}

// Create unconditionally replaces any existing session for the account and
// returns a fresh opaque id.
func (s *SessionService) Create(ctx context.Context, accountID, device string) (string, error) {
	key := sessionKey(accountID)

	oldID, err := s.Redis.HGet(ctx, key, "id").Result()
	if err != nil && err != redis.Nil {
		return "", status.ErrStorageUnavailable.Withf("session store: %v", err)
	}

	id, err := utils.NewSessionID()
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	if err := s.Redis.HSet(ctx, key,
		"id", id,
		"device", device,
		"created_at", now.Format(time.RFC3339),
		"last_activity", now.Format(time.RFC3339),
	).Err(); err != nil {
		return "", status.ErrStorageUnavailable.Withf("session store: %v", err)
	}

	// TTL is garbage collection only; validation goes by last_activity.
	s.Redis.Expire(ctx, key, 2*s.timeout)

	if oldID != "" && oldID != id {
		s.notifier.Publish(AccountChannel(accountID), models.NewRealtimeEvent(models.EventSessionInvalidated, map[string]any{
			"account_id": accountID,
			"reason":     "logged out because your account was accessed from another device",
		}))
	}

	return id, nil
}

// Check validates the supplied id against the stored session and reports
// why it is not valid. It never mutates state.
func (s *SessionService) Check(ctx context.Context, accountID, sessionID string) error {
	sess, err := s.Session(ctx, accountID)
	if err != nil {
		return err
	}

	if sess == nil || sess.ID != sessionID || sess.LastActivity.IsZero() {
		return status.ErrSessionInvalid
	}
	if sess.Expired(s.now().UTC(), s.timeout) {
		return status.ErrSessionExpired
	}

	return nil
}

// Validate is the boolean form of Check, matching the registry contract.
func (s *SessionService) Validate(ctx context.Context, accountID, sessionID string) (bool, error) {
	err := s.Check(ctx, accountID, sessionID)
	switch {
	case err == nil:
		return true, nil
	case err == status.ErrSessionInvalid || err == status.ErrSessionExpired:
		return false, nil
	default:
		return false, err
	}
}

// Heartbeat refreshes last_activity if the supplied id still matches.
// A stale call is a silent no-op: that session already lost its race.
func (s *SessionService) Heartbeat(ctx context.Context, accountID, sessionID string) {
	refreshed, err := heartbeatScript.Eval(ctx, s.Redis,
		[]string{sessionKey(accountID)},
		sessionID,
		s.now().UTC().Format(time.RFC3339),
		int(2*s.timeout/time.Second),
	).Int64()
	if err != nil {
		log.Printf("session heartbeat for %s failed: %v", accountID, err)
		return
	}
	if refreshed == 0 {
		log.Printf("stale heartbeat for %s ignored", accountID)
	}
}

// Session returns the stored session record, or nil when none exists.
func (s *SessionService) Session(ctx context.Context, accountID string) (*models.Session, error) {
	data, err := s.Redis.HGetAll(ctx, sessionKey(accountID)).Result()
	if err != nil {
		return nil, status.ErrStorageUnavailable.Withf("session store: %v", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	created, _ := time.Parse(time.RFC3339, data["created_at"])
	last, _ := time.Parse(time.RFC3339, data["last_activity"])

	return &models.Session{
		ID:           data["id"],
		AccountID:    accountID,
		Device:       data["device"],
		CreatedAt:    created,
		LastActivity: last,
	}, nil
}

// Clear deletes the session record (logout).
func (s *SessionService) Clear(ctx context.Context, accountID string) error {
	if err := s.Redis.Del(ctx, sessionKey(accountID)).Err(); err != nil {
		return status.ErrStorageUnavailable.Withf("session store: %v", err)
	}
	return nil
}
