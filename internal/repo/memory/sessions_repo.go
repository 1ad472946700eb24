package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pulsehq/pulse/internal/session"
)

type SessionsRepo struct {
	mu     sync.RWMutex
	byHash map[string]session.Session
}

func NewSessionsRepo() *SessionsRepo {
	return &SessionsRepo{byHash: make(map[string]session.Session)}
}

func (r *SessionsRepo) Create(ctx context.Context, s session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byHash[s.TokenHash] = s

	return nil
}

func (r *SessionsRepo) GetByTokenHash(ctx context.Context, hash string) (session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byHash[hash]

	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}

	return s, nil
}

func (r *SessionsRepo) DeleteByTokenHash(ctx context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byHash[hash]; !ok {
		return session.ErrSessionNotFound
	}

	delete(r.byHash, hash)

	return nil
}

func (r *SessionsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64

	for hash, s := range r.byHash {
		if now.After(s.ExpiresAt) {
			delete(r.byHash, hash)
			n++
		}
	}

	return n, nil
}

func (r *SessionsRepo) CountActive(ctx context.Context, now time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64

	for _, s := range r.byHash {
		if !now.After(s.ExpiresAt) {
			n++
		}
	}

	return n, nil
}

// Len is a test helper.
func (r *SessionsRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byHash)
}
