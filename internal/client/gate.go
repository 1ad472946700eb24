package client

import (
	"context"
	"errors"
	"sync"

	"github.com/pulsehq/pulse/internal/domain/user"
)

// Gate states. Exactly one is active; every transition re-derives the
// next state from the server response rather than trusting local
// assumptions, so the UI can never drift from actual credential state.
type State string

const (
	StateLoading            State = "loading"
	StateLoggedOut          State = "logged_out"
	StateNeedsPasswordSetup State = "needs_password_setup"
	StateNeedsProfileSetup  State = "needs_profile_setup"
	StateAuthenticated      State = "authenticated"
)

// ErrOperationInFlight is returned when a second mutating operation is
// attempted while one is still running. The gate is single-writer.
var ErrOperationInFlight = errors.New("auth operation already in flight")

// Snapshot is an immutable view of the gate for rendering.
type Snapshot struct {
	State State
	User  *Profile
	// Email carries the pending identity through the setup states.
	Email string
}

// Gate is the single control point the rest of the application depends
// on for authentication state. Downstream components receive resolved
// snapshots and never query credential state themselves.
type Gate struct {
	api *API

	op sync.Mutex // serializes mutating operations

	mu    sync.RWMutex // guards the snapshot fields
	state State
	user  *Profile
	email string
}

func NewGate(api *API) *Gate {
	return &Gate{api: api, state: StateLoading}
}

func (g *Gate) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return Snapshot{State: g.state, User: g.user, Email: g.email}
}

// Bootstrap resolves the stored token into an initial state. A server
// verdict (invalid session, no session) lands in LoggedOut; a transport
// failure keeps the current state so the caller can retry.
func (g *Gate) Bootstrap(ctx context.Context) (Snapshot, error) {
	if !g.op.TryLock() {
		return g.Snapshot(), ErrOperationInFlight
	}

	defer g.op.Unlock()

	p, err := g.api.Validate(ctx)

	if err != nil {
		if _, ok := IsAPIError(err); ok {
			g.set(StateLoggedOut, nil, "")
			return g.Snapshot(), nil
		}

		// network failure: state unchanged, caller decides
		return g.Snapshot(), err
	}

	g.applyProfile(p)

	return g.Snapshot(), nil
}

// Login authenticates with a password. A NoPasswordSet verdict is not a
// failure: it routes the user into the password-setup flow.
func (g *Gate) Login(ctx context.Context, email, password string) (Snapshot, error) {
	if !g.op.TryLock() {
		return g.Snapshot(), ErrOperationInFlight
	}

	defer g.op.Unlock()

	res, err := g.api.Login(ctx, email, password)

	if err != nil {
		if apiErr, ok := IsAPIError(err); ok {
			if apiErr.Code == "no_password_set" {
				g.set(StateNeedsPasswordSetup, nil, email)
				return g.Snapshot(), nil
			}

			g.set(StateLoggedOut, nil, "")
		}

		return g.Snapshot(), err
	}

	g.applyProfile(res.User)

	return g.Snapshot(), nil
}

// Register is the self-service entry: establish a password for a new or
// invited account. On success the server has already issued a session.
func (g *Gate) Register(ctx context.Context, email, password string) (Snapshot, error) {
	if !g.op.TryLock() {
		return g.Snapshot(), ErrOperationInFlight
	}

	defer g.op.Unlock()

	res, err := g.api.SetPassword(ctx, email, password)

	if err != nil {
		// rejected input (weak password, bad domain) retains state
		return g.Snapshot(), err
	}

	g.applyProfile(res.User)

	return g.Snapshot(), nil
}

// CompleteSetup finishes the profile step and re-resolves.
func (g *Gate) CompleteSetup(ctx context.Context, role string, prefs *user.PreferencesUpdate, agentCfg *user.AgentConfigUpdate) (Snapshot, error) {
	if !g.op.TryLock() {
		return g.Snapshot(), ErrOperationInFlight
	}

	defer g.op.Unlock()

	res, err := g.api.CompleteProfile(ctx, role, prefs, agentCfg)

	if err != nil {
		// the backing session can die mid-setup (revoked elsewhere,
		// expired); only LoggedOut is truthful then
		if apiErr, ok := IsAPIError(err); ok && apiErr.Code == "invalid_session" {
			g.sessionLost()
		}

		return g.Snapshot(), err
	}

	g.applyProfile(res.User)

	return g.Snapshot(), nil
}

// Logout revokes the session server-side best effort and always lands
// in LoggedOut locally.
func (g *Gate) Logout(ctx context.Context) Snapshot {
	if !g.op.TryLock() {
		return g.Snapshot()
	}

	defer g.op.Unlock()

	_ = g.api.Logout(ctx)
	_ = g.api.tokens.Clear()

	g.set(StateLoggedOut, nil, "")

	return g.Snapshot()
}

// applyProfile maps the server-derived lifecycle state onto a gate state.
func (g *Gate) applyProfile(p Profile) {
	switch p.State {
	case string(user.StateNeedsPasswordSetup):
		g.set(StateNeedsPasswordSetup, nil, p.Email)
	case string(user.StateNeedsProfileSetup):
		g.set(StateNeedsProfileSetup, nil, p.Email)
	case string(user.StateReady):
		profile := p
		g.set(StateAuthenticated, &profile, p.Email)
	default:
		g.set(StateLoggedOut, nil, "")
	}
}

// sessionLost drops the dead credential and lands in LoggedOut.
func (g *Gate) sessionLost() {
	_ = g.api.tokens.Clear()
	g.set(StateLoggedOut, nil, "")
}

func (g *Gate) set(state State, u *Profile, email string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = state
	g.user = u
	g.email = email
}
