package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	guestPrefix  = "guest_session:"
	sessionIDLen = 24
)

// GuestSession tracks an anonymous visitor's chat session. Authenticated
// users resume via users.last_session_id instead; guests get a cookie-bound
// session that expires with its Redis TTL.
type GuestSession struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// Manager stores guest sessions in Redis.
type Manager struct {
	redis  *redis.Client
	expiry time.Duration
}

func NewManager(redisClient *redis.Client, expiry time.Duration) *Manager {
	if expiry == 0 {
		expiry = 24 * time.Hour
	}
	return &Manager{redis: redisClient, expiry: expiry}
}

// Create makes a new guest session and returns its ID.
func (m *Manager) Create(ctx context.Context) (string, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return "", fmt.Errorf("generating session ID: %w", err)
	}

	now := time.Now()
	sess := GuestSession{
		SessionID: sessionID,
		CreatedAt: now,
		LastSeen:  now,
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("marshaling session: %w", err)
	}

	if err := m.redis.Set(ctx, guestPrefix+sessionID, data, m.expiry).Err(); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}
	return sessionID, nil
}

// Get returns the session for the given ID, or an error if unknown.
func (m *Manager) Get(ctx context.Context, sessionID string) (*GuestSession, error) {
	data, err := m.redis.Get(ctx, guestPrefix+sessionID).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}

	var sess GuestSession
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &sess, nil
}

// Touch updates last-seen and extends the TTL.
func (m *Manager) Touch(ctx context.Context, sessionID string) error {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.LastSeen = time.Now()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	return m.redis.Set(ctx, guestPrefix+sessionID, data, m.expiry).Err()
}

func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.redis.Del(ctx, guestPrefix+sessionID).Err()
}

func generateSessionID() (string, error) {
	b := make([]byte, sessionIDLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
