package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pulsehq/pulse/internal/domain/user"
	"github.com/pulsehq/pulse/internal/repo/memory"
	"github.com/pulsehq/pulse/internal/session"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedUser(t *testing.T, users *memory.UsersRepo) user.User {
	t.Helper()

	hash := "$2a$12$notarealhash"
	role := user.RoleAnalyst

	u, err := users.Create(context.Background(), user.User{
		Email:        "sam@pulsehq.com",
		PasswordHash: &hash,
		Role:         &role,
		Preferences:  user.DefaultPreferences(),
		AgentConfig:  user.DefaultAgentConfig(),
	})

	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	return u
}

func TestCreateAndResolveSession(t *testing.T) {
	users := memory.NewUsersRepo()
	sessions := memory.NewSessionsRepo()

	u := seedUser(t, users)

	m := session.NewManager(sessions, users, 30*24*time.Hour, newTestLogger())

	token, expiresAt, err := m.Create(context.Background(), u.ID)

	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if token == "" {
		t.Fatalf("expected a non-empty token")
	}

	// 32 random bytes base64url-encoded without padding
	if len(token) != 43 {
		t.Fatalf("token length = %d, want 43", len(token))
	}

	if until := time.Until(expiresAt); until < 29*24*time.Hour {
		t.Fatalf("expiry too close: %v", until)
	}

	got, err := m.Resolve(context.Background(), token)

	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if got.ID != u.ID {
		t.Fatalf("resolved user %s, want %s", got.ID, u.ID)
	}

	if got.LastActive.IsZero() {
		t.Fatalf("expected lastActive to be touched on resolution")
	}
}

func TestResolveUnknownToken(t *testing.T) {
	users := memory.NewUsersRepo()
	sessions := memory.NewSessionsRepo()
	m := session.NewManager(sessions, users, time.Hour, newTestLogger())

	_, err := m.Resolve(context.Background(), "no-such-token")

	if !errors.Is(err, session.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestResolveExpiredSessionDeletesIt(t *testing.T) {
	users := memory.NewUsersRepo()
	sessions := memory.NewSessionsRepo()

	u := seedUser(t, users)

	m := session.NewManager(sessions, users, time.Hour, newTestLogger())

	token, _, err := m.Create(context.Background(), u.ID)

	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// rewrite the row with an expiry in the past
	err = sessions.Create(context.Background(), session.Session{
		TokenHash: session.HashToken(token),
		UserID:    u.ID,
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	})

	if err != nil {
		t.Fatalf("failed to overwrite session: %v", err)
	}

	_, err = m.Resolve(context.Background(), token)

	if !errors.Is(err, session.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	// the expired row must be gone after the resolution that found it
	if sessions.Len() != 0 {
		t.Fatalf("expired session still in store, count=%d", sessions.Len())
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	users := memory.NewUsersRepo()
	sessions := memory.NewSessionsRepo()

	u := seedUser(t, users)

	m := session.NewManager(sessions, users, time.Hour, newTestLogger())

	token, _, err := m.Create(context.Background(), u.ID)

	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := m.Revoke(context.Background(), token); err != nil {
		t.Fatalf("first Revoke failed: %v", err)
	}

	if err := m.Revoke(context.Background(), token); err != nil {
		t.Fatalf("second Revoke should be a no-op, got %v", err)
	}

	if err := m.Revoke(context.Background(), "never-existed"); err != nil {
		t.Fatalf("revoking an unknown token should be a no-op, got %v", err)
	}

	if _, err := m.Resolve(context.Background(), token); !errors.Is(err, session.ErrInvalidSession) {
		t.Fatalf("expected revoked token to be invalid, got %v", err)
	}
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	users := memory.NewUsersRepo()
	sessions := memory.NewSessionsRepo()

	u := seedUser(t, users)

	m := session.NewManager(sessions, users, time.Hour, newTestLogger())

	token1, _, err := m.Create(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	token2, _, err := m.Create(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if token1 == token2 {
		t.Fatalf("tokens must never repeat")
	}

	if err := m.Revoke(context.Background(), token1); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	// the other device stays logged in
	if _, err := m.Resolve(context.Background(), token2); err != nil {
		t.Fatalf("second session should survive, got %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	users := memory.NewUsersRepo()
	sessions := memory.NewSessionsRepo()

	u := seedUser(t, users)

	m := session.NewManager(sessions, users, time.Hour, newTestLogger())

	if _, _, err := m.Create(context.Background(), u.ID); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err := sessions.Create(context.Background(), session.Session{
		TokenHash: session.HashToken("stale"),
		UserID:    u.ID,
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	})

	if err != nil {
		t.Fatalf("failed to seed stale session: %v", err)
	}

	n, err := m.SweepExpired(context.Background())

	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}

	if n != 1 {
		t.Fatalf("swept %d sessions, want 1", n)
	}

	if sessions.Len() != 1 {
		t.Fatalf("expected the live session to remain, count=%d", sessions.Len())
	}
}

type fakeUserSource struct {
	getByID    func(ctx context.Context, id string) (user.User, error)
	touchedIDs []string
}

func (f *fakeUserSource) GetByID(ctx context.Context, id string) (user.User, error) {
	return f.getByID(ctx, id)
}

func (f *fakeUserSource) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	f.touchedIDs = append(f.touchedIDs, id)
	return nil
}

func TestResolveUserLookupErrors(t *testing.T) {
	storeDown := errors.New("connection refused")

	tests := []struct {
		name        string
		getByID     func(ctx context.Context, id string) (user.User, error)
		wantErr     error
		wantInvalid bool
	}{
		{
			name: "deleted user invalidates the session",
			getByID: func(ctx context.Context, id string) (user.User, error) {
				return user.User{}, user.ErrNotFound
			},
			wantInvalid: true,
		},
		{
			name: "store outage surfaces as-is",
			getByID: func(ctx context.Context, id string) (user.User, error) {
				return user.User{}, storeDown
			},
			wantErr: storeDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := memory.NewSessionsRepo()
			users := &fakeUserSource{getByID: tt.getByID}

			m := session.NewManager(sessions, users, time.Hour, newTestLogger())

			token, _, err := m.Create(context.Background(), "some-user")

			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			_, err = m.Resolve(context.Background(), token)

			if tt.wantInvalid {
				if !errors.Is(err, session.ErrInvalidSession) {
					t.Fatalf("expected ErrInvalidSession, got %v", err)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected the store error, got %v", err)
			}

			if errors.Is(err, session.ErrInvalidSession) {
				t.Fatal("a store outage must not read as an invalid session")
			}

			// the session must survive a transient failure
			if sessions.Len() != 1 {
				t.Fatalf("session deleted on transient failure, count=%d", sessions.Len())
			}
		})
	}
}

func TestCountActiveIgnoresExpired(t *testing.T) {
	users := memory.NewUsersRepo()
	sessions := memory.NewSessionsRepo()

	u := seedUser(t, users)

	m := session.NewManager(sessions, users, time.Hour, newTestLogger())

	if _, _, err := m.Create(context.Background(), u.ID); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err := sessions.Create(context.Background(), session.Session{
		TokenHash: session.HashToken("stale"),
		UserID:    u.ID,
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	})

	if err != nil {
		t.Fatalf("failed to seed stale session: %v", err)
	}

	n, err := m.CountActive(context.Background())

	if err != nil {
		t.Fatalf("CountActive failed: %v", err)
	}

	if n != 1 {
		t.Fatalf("counted %d active sessions, want 1", n)
	}
}
