package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/pulsehq/pulse/internal/domain/user"
)

var ErrInvalidSession = errors.New("invalid session")

// Session is one durable login. Expiry is absolute from issuance; there
// is no sliding window. Only a hash of the token is persisted.
type Session struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Store interface {
	Create(ctx context.Context, s Session) error
	GetByTokenHash(ctx context.Context, hash string) (Session, error)
	DeleteByTokenHash(ctx context.Context, hash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	CountActive(ctx context.Context, now time.Time) (int64, error)
}

var ErrSessionNotFound = errors.New("session not found")

type UserSource interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	TouchLastActive(ctx context.Context, id string, at time.Time) error
}

type Manager struct {
	store Store
	users UserSource
	ttl   time.Duration
	log   *slog.Logger
	now   func() time.Time
}

func NewManager(store Store, users UserSource, ttl time.Duration, log *slog.Logger) *Manager {
	return &Manager{
		store: store,
		users: users,
		ttl:   ttl,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create issues a fresh opaque token for the user and persists its hash.
// Existing sessions for the same user are left alone; concurrent logins
// from several devices are allowed.
func (m *Manager) Create(ctx context.Context, userID string) (token string, expiresAt time.Time, err error) {
	token, err = newToken()

	if err != nil {
		return "", time.Time{}, err
	}

	now := m.now()
	expiresAt = now.Add(m.ttl)

	s := Session{
		TokenHash: HashToken(token),
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}

	if err = m.store.Create(ctx, s); err != nil {
		return "", time.Time{}, err
	}

	return token, expiresAt, nil
}

// Resolve maps a presented token to its user. An expired session is
// deleted on the spot so stale rows do not accumulate. A valid
// resolution touches lastActive best-effort; a failing touch never
// fails the resolution itself.
func (m *Manager) Resolve(ctx context.Context, token string) (user.User, error) {
	if token == "" {
		return user.User{}, ErrInvalidSession
	}

	hash := HashToken(token)

	s, err := m.store.GetByTokenHash(ctx, hash)

	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return user.User{}, ErrInvalidSession
		}
		return user.User{}, err
	}

	now := m.now()

	if now.After(s.ExpiresAt) {
		// self-cleaning: the access that discovers expiry removes the row
		if delErr := m.store.DeleteByTokenHash(ctx, hash); delErr != nil {
			m.log.Warn("failed to delete expired session", "err", delErr)
		}
		return user.User{}, ErrInvalidSession
	}

	u, err := m.users.GetByID(ctx, s.UserID)

	if err != nil {
		// only a vanished user invalidates the session; a store failure
		// must surface as such, not log the caller out
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, ErrInvalidSession
		}
		return user.User{}, err
	}

	if err := m.users.TouchLastActive(ctx, u.ID, now); err != nil {
		m.log.Warn("failed to touch last_active", "user_id", u.ID, "err", err)
	} else {
		u.LastActive = now
	}

	return u, nil
}

// Revoke deletes the session for the presented token. Revoking a token
// that does not exist is not an error.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	err := m.store.DeleteByTokenHash(ctx, HashToken(token))

	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}

	return err
}

// SweepExpired removes sessions that expired before now. Lazy deletion
// on access is the correctness mechanism; this only bounds accumulation
// of rows that are never presented again.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}

// CountActive reports live (unexpired) sessions; feeds the gauge.
func (m *Manager) CountActive(ctx context.Context) (int64, error) {
	return m.store.CountActive(ctx, m.now())
}

// newToken returns 32 bytes (256 bits) of CSPRNG output, URL-safe
// base64 encoded. Tokens are opaque; nothing is encoded in them.
func newToken() (string, error) {
	buf := make([]byte, 32)

	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken is the deterministic lookup key for a session row. The raw
// token is never stored.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
