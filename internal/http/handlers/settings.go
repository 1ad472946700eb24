package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulsehq/pulse/internal/cache"
	"github.com/pulsehq/pulse/internal/domain/user"
	"github.com/pulsehq/pulse/internal/http/middlewares"
)

// Settings mutations are merge-updates: only fields present in the
// request change, everything else keeps its stored value.
type SettingsHandler struct {
	users    UserStore
	profiles *cache.Cache
	log      *slog.Logger
}

func NewSettingsHandler(users UserStore, profiles *cache.Cache, log *slog.Logger) *SettingsHandler {
	if log == nil {
		log = slog.Default()
	}

	return &SettingsHandler{users: users, profiles: profiles, log: log}
}

func (h *SettingsHandler) UpdatePreferences(ctx *gin.Context) {
	var req user.PreferencesUpdate

	if !BindJSON(ctx, &req) {
		return
	}

	u, ok := h.loadCurrent(ctx)

	if !ok {
		return
	}

	prefs := u.Preferences
	prefs.Apply(req)

	if err := h.users.UpdatePreferences(ctx.Request.Context(), u.ID, prefs); err != nil {
		h.log.Error("preferences update failed", "user_id", u.ID, "err", err)
		RespondInternal(ctx, "Something went wrong")
		return
	}

	h.invalidate(u.ID)

	ctx.JSON(http.StatusOK, gin.H{"preferences": prefs})
}

func (h *SettingsHandler) UpdateAgentConfig(ctx *gin.Context) {
	var req user.AgentConfigUpdate

	if !BindJSON(ctx, &req) {
		return
	}

	u, ok := h.loadCurrent(ctx)

	if !ok {
		return
	}

	cfg := u.AgentConfig
	cfg.Apply(req)

	if err := h.users.UpdateAgentConfig(ctx.Request.Context(), u.ID, cfg); err != nil {
		h.log.Error("agent config update failed", "user_id", u.ID, "err", err)
		RespondInternal(ctx, "Something went wrong")
		return
	}

	h.invalidate(u.ID)

	ctx.JSON(http.StatusOK, gin.H{"agentConfig": cfg})
}

func (h *SettingsHandler) loadCurrent(ctx *gin.Context) (user.User, bool) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok || id == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return user.User{}, false
	}

	u, err := h.users.GetByID(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User no longer exists")
			return user.User{}, false
		}

		h.log.Error("settings: user load failed", "user_id", id, "err", err)
		RespondInternal(ctx, "Something went wrong")
		return user.User{}, false
	}

	return u, true
}

func (h *SettingsHandler) invalidate(id string) {
	if h.profiles != nil {
		h.profiles.Delete(profileKey(id))
	}
}
