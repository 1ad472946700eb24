package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Ping is a dependency liveness probe.
type Ping func(ctx context.Context) error

type HealthHandler struct {
	pingDB    Ping
	pingRedis Ping
}

func NewHealthHandler(pingDB, pingRedis Ping) *HealthHandler {
	return &HealthHandler{pingDB: pingDB, pingRedis: pingRedis}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if h.pingDB != nil {
		if err := h.pingDB(cctx); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unavailable"})
			return
		}
	}

	// redis is optional; readiness only degrades, it doesn't fail
	if h.pingRedis != nil {
		if err := h.pingRedis(cctx); err != nil {
			ctx.JSON(http.StatusOK, gin.H{"status": "ready", "redis": "unavailable"})
			return
		}
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}
