package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pulsehq/pulse/internal/auth"
	"github.com/pulsehq/pulse/internal/cache"
	"github.com/pulsehq/pulse/internal/domain/user"
	"github.com/pulsehq/pulse/internal/http/middlewares"
	"github.com/pulsehq/pulse/internal/notifications"
	"github.com/pulsehq/pulse/internal/observability"
	"github.com/pulsehq/pulse/internal/security"
	"github.com/pulsehq/pulse/internal/session"
)

// SessionCookie carries the opaque session token. httpOnly and Lax so
// the browser sends it on top-level navigation but scripts never see it.
const SessionCookie = "pulse_session"

// UserStore is the slice of the users repo the handlers need. Both the
// postgres and the in-memory repo satisfy it.
type UserStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	SetPassword(ctx context.Context, id, passwordHash string) error
	SetProfile(ctx context.Context, id string, role user.Role, prefs user.Preferences, cfg user.AgentConfig) error
	UpdatePreferences(ctx context.Context, id string, prefs user.Preferences) error
	UpdateAgentConfig(ctx context.Context, id string, cfg user.AgentConfig) error
}

type AuthHandler struct {
	users    UserStore
	sessions *session.Manager
	jwt      *auth.Manager

	emailDomain  string
	sessionTTL   time.Duration
	accessTTL    time.Duration
	secureCookie bool

	notifier notifications.Notifier
	profiles *cache.Cache
	prom     *observability.Prom
	log      *slog.Logger
}

type AuthHandlerOpts struct {
	Users       UserStore
	Sessions    *session.Manager
	JWT         *auth.Manager
	EmailDomain string
	SessionTTL  time.Duration
	AccessTTL   time.Duration
	// set Secure on the session cookie (prod only; localhost is http)
	SecureCookie bool
	Notifier     notifications.Notifier
	Profiles     *cache.Cache
	Prom         *observability.Prom
	Log          *slog.Logger
}

func NewAuthHandler(opts AuthHandlerOpts) *AuthHandler {
	log := opts.Log

	if log == nil {
		log = slog.Default()
	}

	return &AuthHandler{
		users:        opts.Users,
		sessions:     opts.Sessions,
		jwt:          opts.JWT,
		emailDomain:  opts.EmailDomain,
		sessionTTL:   opts.SessionTTL,
		accessTTL:    opts.AccessTTL,
		secureCookie: opts.SecureCookie,
		notifier:     opts.Notifier,
		profiles:     opts.Profiles,
		prom:         opts.Prom,
		log:          log,
	}
}

// ---- request / response shapes ----

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type setPasswordRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type completeProfileRequest struct {
	Role        string                  `json:"role" binding:"required,oneof=analyst general_employee"`
	Preferences *user.PreferencesUpdate `json:"preferences"`
	AgentConfig *user.AgentConfigUpdate `json:"agentConfig"`
}

type resetPasswordRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	user.User
	State user.LifecycleState `json:"state"`
}

type sessionResponse struct {
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"tokenType"`
	ExpiresIn   int          `json:"expiresIn"` // seconds
	User        userResponse `json:"user"`
}

func toUserResponse(u user.User) userResponse {
	return userResponse{User: u, State: user.ResolveLifecycle(u)}
}

// ---- handlers ----

// Login authenticates with email + password. Wrong password and unknown
// user collapse into one machine code so the endpoint can't be used to
// enumerate accounts; a missing password stays distinct because it
// routes the caller to the setup flow instead of an error toast.
func (h *AuthHandler) Login(ctx *gin.Context) {
	var req loginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	email := normalizeEmail(req.Email)

	if !security.ValidEmailDomain(email, h.emailDomain) {
		h.record("login", "rejected")
		RespondForbidden(ctx, "invalid_email", "Email domain is not allowed")
		return
	}

	u, err := h.users.GetByEmail(ctx.Request.Context(), email)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			h.record("login", "rejected")
			RespondUnAuthorized(ctx, "invalid_credentials", "Invalid email or password")
			return
		}

		h.log.Error("login: user lookup failed", "err", err)
		h.record("login", "error")
		RespondInternal(ctx, "Something went wrong")
		return
	}

	if !u.HasPassword() {
		h.record("login", "rejected")
		RespondError(ctx, http.StatusBadRequest, "no_password_set", "No password set for this account. Complete password setup first.", nil)
		return
	}

	if err := security.CheckPassword(*u.PasswordHash, req.Password); err != nil {
		h.record("login", "rejected")
		RespondUnAuthorized(ctx, "invalid_credentials", "Invalid email or password")
		return
	}

	h.record("login", "ok")
	h.issueSession(ctx, u)
}

// SetPassword establishes (or replaces) the caller's password. Users
// provisioned out of band exist with a null hash; users that don't
// exist at all are created here, which is the self-service entry path.
func (h *AuthHandler) SetPassword(ctx *gin.Context) {
	var req setPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	email := normalizeEmail(req.Email)

	if !security.ValidEmailDomain(email, h.emailDomain) {
		h.record("set_password", "rejected")
		RespondForbidden(ctx, "invalid_email", "Email domain is not allowed")
		return
	}

	if !security.ValidPassword(req.Password) {
		h.record("set_password", "rejected")
		RespondError(ctx, http.StatusBadRequest, "weak_password", "Password must be at least 8 characters and contain a letter and a digit", nil)
		return
	}

	rctx := ctx.Request.Context()

	u, err := h.users.GetByEmail(rctx, email)

	if errors.Is(err, user.ErrNotFound) {
		u, err = h.users.Create(rctx, user.User{
			Email:       email,
			Preferences: user.DefaultPreferences(),
			AgentConfig: user.DefaultAgentConfig(),
		})

		// lost a race with a concurrent signup for the same email
		if errors.Is(err, user.ErrEmailTaken) {
			u, err = h.users.GetByEmail(rctx, email)
		}
	}

	if err != nil {
		h.log.Error("set-password: user load failed", "err", err)
		h.record("set_password", "error")
		RespondInternal(ctx, "Something went wrong")
		return
	}

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		h.log.Error("set-password: hashing failed", "err", err)
		h.record("set_password", "error")
		RespondInternal(ctx, "Something went wrong")
		return
	}

	if err := h.users.SetPassword(rctx, u.ID, hash); err != nil {
		h.log.Error("set-password: store failed", "user_id", u.ID, "err", err)
		h.record("set_password", "error")
		RespondInternal(ctx, "Something went wrong")
		return
	}

	u.PasswordHash = &hash

	h.invalidateProfile(u.ID)
	h.notify(rctx, notifications.EventPasswordSet, u)
	h.record("set_password", "ok")
	h.issueSession(ctx, u)
}

// CompleteProfile attaches role, preferences and agent config to the
// session's user. The password must already be in place; profile
// completion is the last setup step, not the first.
func (h *AuthHandler) CompleteProfile(ctx *gin.Context) {
	u, ok := h.resolveCookie(ctx)

	if !ok {
		return
	}

	var req completeProfileRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if !u.HasPassword() {
		h.record("complete_profile", "rejected")
		RespondError(ctx, http.StatusBadRequest, "no_password_set", "Set a password before completing the profile", nil)
		return
	}

	role := user.Role(req.Role)

	prefs := u.Preferences
	if req.Preferences != nil {
		prefs.Apply(*req.Preferences)
	}

	agentCfg := u.AgentConfig
	if req.AgentConfig != nil {
		agentCfg.Apply(*req.AgentConfig)
	}

	rctx := ctx.Request.Context()

	if err := h.users.SetProfile(rctx, u.ID, role, prefs, agentCfg); err != nil {
		h.log.Error("complete-profile: store failed", "user_id", u.ID, "err", err)
		h.record("complete_profile", "error")
		RespondInternal(ctx, "Something went wrong")
		return
	}

	u.Role = &role
	u.Preferences = prefs
	u.AgentConfig = agentCfg

	h.invalidateProfile(u.ID)
	h.notify(rctx, notifications.EventProfileCompleted, u)
	h.record("complete_profile", "ok")

	// the old access token carries no role; hand out a fresh one
	h.respondWithAccessToken(ctx, u)
}

// Validate resolves the session cookie to its user and derived
// lifecycle state. The client boots from this.
func (h *AuthHandler) Validate(ctx *gin.Context) {
	u, ok := h.resolveCookie(ctx)

	if !ok {
		h.record("validate", "rejected")
		return
	}

	h.record("validate", "ok")
	ctx.JSON(http.StatusOK, gin.H{"user": toUserResponse(u)})
}

// Refresh mints a new short-lived access token off the session cookie.
func (h *AuthHandler) Refresh(ctx *gin.Context) {
	u, ok := h.resolveCookie(ctx)

	if !ok {
		h.record("refresh", "rejected")
		return
	}

	h.record("refresh", "ok")
	h.respondWithAccessToken(ctx, u)
}

// Logout revokes the session and clears the cookie. Always 204: a
// missing or already-dead session is not an error worth surfacing.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	token, err := ctx.Cookie(SessionCookie)

	if err == nil && token != "" {
		if err := h.sessions.Revoke(ctx.Request.Context(), token); err != nil {
			h.log.Warn("logout: revoke failed", "err", err)
		}
	}

	h.clearSessionCookie(ctx)
	ctx.Status(http.StatusNoContent)
}

// Me returns the authenticated user's profile. Reads go through a short
// TTL cache; every mutation path invalidates it.
func (h *AuthHandler) Me(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok || id == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	if h.profiles != nil {
		if v, hit := h.profiles.Get(profileKey(id)); hit {
			if u, ok := v.(user.User); ok {
				ctx.JSON(http.StatusOK, gin.H{"user": toUserResponse(u)})
				return
			}
		}
	}

	u, err := h.users.GetByID(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User no longer exists")
			return
		}

		h.log.Error("me: user load failed", "user_id", id, "err", err)
		RespondInternal(ctx, "Something went wrong")
		return
	}

	if h.profiles != nil {
		h.profiles.Set(profileKey(id), u)
	}

	ctx.JSON(http.StatusOK, gin.H{"user": toUserResponse(u)})
}

// ResetPassword overwrites another user's password. Restricted to the
// analyst role by the route's middleware; strength rules still apply.
func (h *AuthHandler) ResetPassword(ctx *gin.Context) {
	var req resetPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if !security.ValidPassword(req.Password) {
		RespondError(ctx, http.StatusBadRequest, "weak_password", "Password must be at least 8 characters and contain a letter and a digit", nil)
		return
	}

	rctx := ctx.Request.Context()

	u, err := h.users.GetByEmail(rctx, normalizeEmail(req.Email))

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondError(ctx, http.StatusNotFound, "no_such_user", "No user with that email", nil)
			return
		}

		h.log.Error("reset-password: user lookup failed", "err", err)
		RespondInternal(ctx, "Something went wrong")
		return
	}

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		h.log.Error("reset-password: hashing failed", "err", err)
		RespondInternal(ctx, "Something went wrong")
		return
	}

	if err := h.users.SetPassword(rctx, u.ID, hash); err != nil {
		h.log.Error("reset-password: store failed", "user_id", u.ID, "err", err)
		RespondInternal(ctx, "Something went wrong")
		return
	}

	h.invalidateProfile(u.ID)
	h.notify(rctx, notifications.EventPasswordReset, u)

	ctx.JSON(http.StatusOK, gin.H{"status": "password_reset"})
}

// ---- internals ----

// issueSession creates a fresh session, sets the cookie and responds
// with an access token plus the resolved user.
func (h *AuthHandler) issueSession(ctx *gin.Context, u user.User) {
	token, _, err := h.sessions.Create(ctx.Request.Context(), u.ID)

	if err != nil {
		h.log.Error("session create failed", "user_id", u.ID, "err", err)
		RespondInternal(ctx, "Something went wrong")
		return
	}

	h.setSessionCookie(ctx, token)
	h.respondWithAccessToken(ctx, u)
}

func (h *AuthHandler) respondWithAccessToken(ctx *gin.Context, u user.User) {
	role := ""

	if u.Role != nil {
		role = string(*u.Role)
	}

	access, err := h.jwt.GenerateAccessToken(u.ID, u.Email, role)

	if err != nil {
		h.log.Error("access token mint failed", "user_id", u.ID, "err", err)
		RespondInternal(ctx, "Something went wrong")
		return
	}

	ctx.JSON(http.StatusOK, sessionResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.accessTTL.Seconds()),
		User:        toUserResponse(u),
	})
}

// resolveCookie maps the session cookie to its user or writes the 401
// itself. ok=false means the response is already committed.
func (h *AuthHandler) resolveCookie(ctx *gin.Context) (user.User, bool) {
	token, err := ctx.Cookie(SessionCookie)

	if err != nil || token == "" {
		RespondUnAuthorized(ctx, "invalid_session", "No active session")
		return user.User{}, false
	}

	u, err := h.sessions.Resolve(ctx.Request.Context(), token)

	if err != nil {
		if errors.Is(err, session.ErrInvalidSession) {
			h.clearSessionCookie(ctx)
			RespondUnAuthorized(ctx, "invalid_session", "Session is invalid or expired")
			return user.User{}, false
		}

		h.log.Error("session resolve failed", "err", err)
		RespondInternal(ctx, "Something went wrong")
		return user.User{}, false
	}

	return u, true
}

func (h *AuthHandler) setSessionCookie(ctx *gin.Context, token string) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(SessionCookie, token, int(h.sessionTTL.Seconds()), "/", "", h.secureCookie, true)
}

func (h *AuthHandler) clearSessionCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(SessionCookie, "", -1, "/", "", h.secureCookie, true)
}

func (h *AuthHandler) record(op, result string) {
	if h.prom != nil {
		h.prom.AuthResults.WithLabelValues(op, result).Inc()
	}
}

// notify fans out an account event; delivery failure is logged, never
// returned to the caller.
func (h *AuthHandler) notify(ctx context.Context, kind notifications.AccountEventKind, u user.User) {
	if h.notifier == nil {
		return
	}

	event := notifications.AccountEvent{Kind: kind, UserID: u.ID, Email: u.Email}

	if err := h.notifier.SendAccountEvent(ctx, event); err != nil {
		h.log.Warn("account event delivery failed", "kind", string(kind), "user_id", u.ID, "err", err)
	}
}

func (h *AuthHandler) invalidateProfile(id string) {
	if h.profiles != nil {
		h.profiles.Delete(profileKey(id))
	}
}

func profileKey(id string) string {
	return "me:" + id
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
