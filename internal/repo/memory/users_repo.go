package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pulsehq/pulse/internal/domain/user"
)

var (
	ErrNotFound         = user.ErrNotFound
	ErrEmailAlreadyUsed = user.ErrEmailTaken
)

// In-memory users repo. Mirrors the postgres repo contract so handler
// and session tests can run without a database.
type UsersRepo struct {
	mu      sync.RWMutex
	byID    map[string]user.User
	byEmail map[string]string // lower(email) -> id
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		byID:    make(map[string]user.User),
		byEmail: make(map[string]string),
	}
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(u.Email)

	if _, exists := r.byEmail[key]; exists {
		return user.User{}, ErrEmailAlreadyUsed
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	if u.LastActive.IsZero() {
		u.LastActive = u.CreatedAt
	}

	r.byID[u.ID] = u
	r.byEmail[key] = u.ID

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]

	if !ok {
		return user.User{}, ErrNotFound
	}

	return r.byID[id], nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]

	if !ok {
		return user.User{}, ErrNotFound
	}

	return u, nil
}

func (r *UsersRepo) SetPassword(ctx context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]

	if !ok {
		return ErrNotFound
	}

	u.PasswordHash = &passwordHash
	r.byID[id] = u

	return nil
}

func (r *UsersRepo) SetProfile(ctx context.Context, id string, role user.Role, prefs user.Preferences, cfg user.AgentConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]

	if !ok {
		return ErrNotFound
	}

	u.Role = &role
	u.Preferences = prefs
	u.AgentConfig = cfg
	r.byID[id] = u

	return nil
}

func (r *UsersRepo) UpdatePreferences(ctx context.Context, id string, prefs user.Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]

	if !ok {
		return ErrNotFound
	}

	u.Preferences = prefs
	r.byID[id] = u

	return nil
}

func (r *UsersRepo) UpdateAgentConfig(ctx context.Context, id string, cfg user.AgentConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]

	if !ok {
		return ErrNotFound
	}

	u.AgentConfig = cfg
	r.byID[id] = u

	return nil
}

func (r *UsersRepo) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]

	if !ok {
		return ErrNotFound
	}

	u.LastActive = at
	r.byID[id] = u

	return nil
}
