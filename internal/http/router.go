package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/pulsehq/pulse/internal/auth"
	"github.com/pulsehq/pulse/internal/cache"
	"github.com/pulsehq/pulse/internal/config"
	"github.com/pulsehq/pulse/internal/http/handlers"
	"github.com/pulsehq/pulse/internal/http/middlewares"
	"github.com/pulsehq/pulse/internal/notifications"
	"github.com/pulsehq/pulse/internal/observability"
	"github.com/pulsehq/pulse/internal/queue/redisclient"
	"github.com/pulsehq/pulse/internal/session"
)

// Deps carries everything the router wires. Interfaces where tests need
// to substitute (users store), concrete types where they don't.
type Deps struct {
	Cfg config.Config
	Log *slog.Logger

	Users    handlers.UserStore
	Sessions *session.Manager
	JWT      *auth.Manager

	Notifier notifications.Notifier
	Profiles *cache.Cache

	// optional; nil skips the concern rather than failing
	Prom         *observability.Prom
	PromRegistry *prometheus.Registry
	Redis        *redisclient.Client

	PingDB    handlers.Ping
	PingRedis handlers.Ping
}

func NewRouter(d Deps) *gin.Engine {
	if d.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(otelgin.Middleware("pulse-api"))

	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}

	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.Cfg.AllowedOrigins))
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(1 << 20))

	// health + metrics

	health := handlers.NewHealthHandler(d.PingDB, d.PingRedis)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	if d.PromRegistry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.PromRegistry, promhttp.HandlerOpts{})))
	}

	// credential endpoints are brute-forceable, so the login-shaped ones
	// sit behind a fixed-window limiter; redis-backed when a redis is
	// configured so the window holds across replicas
	throttle := loginThrottle(d)

	authHandler := handlers.NewAuthHandler(handlers.AuthHandlerOpts{
		Users:        d.Users,
		Sessions:     d.Sessions,
		JWT:          d.JWT,
		EmailDomain:  d.Cfg.EmailDomain,
		SessionTTL:   d.Cfg.SessionTTL(),
		AccessTTL:    d.Cfg.JWTAccessTTL(),
		SecureCookie: d.Cfg.Env == "prod",
		Notifier:     d.Notifier,
		Profiles:     d.Profiles,
		Prom:         d.Prom,
		Log:          d.Log,
	})

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", throttle, authHandler.Login)
		authGroup.POST("/set-password", throttle, authHandler.SetPassword)
		authGroup.POST("/complete-profile", authHandler.CompleteProfile)
		authGroup.POST("/validate", authHandler.Validate)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// bearer-token surface

	authMw := middlewares.NewAuthMiddleware(d.JWT)

	r.GET("/auth/me", authMw.RequireAuth(), authHandler.Me)
	r.POST("/auth/reset-password", authMw.RequireAuth(), authMw.RequireRole("analyst"), authHandler.ResetPassword)

	settingsHandler := handlers.NewSettingsHandler(d.Users, d.Profiles, d.Log)

	settings := r.Group("/settings", authMw.RequireAuth())
	{
		settings.PATCH("/preferences", settingsHandler.UpdatePreferences)
		settings.PATCH("/agent-config", settingsHandler.UpdateAgentConfig)
	}

	return r
}

func loginThrottle(d Deps) gin.HandlerFunc {
	onThrottled := func() {
		if d.Prom != nil {
			d.Prom.LoginsThrottled.Inc()
		}
	}

	if d.Redis != nil {
		rl := middlewares.NewRedisRateLimiter(d.Redis.Raw(), d.Cfg.LoginRateLimit, d.Cfg.LoginRateWindow, "login")
		rl.OnThrottled = onThrottled
		return rl.RateLimiterMiddleware(middlewares.KeyByIP)
	}

	rl := middlewares.NewRateLimiter(d.Cfg.LoginRateLimit, d.Cfg.LoginRateWindow)

	limiter := rl.RateLimiterMiddleware(middlewares.KeyByIP)

	return func(c *gin.Context) {
		limiter(c)

		if c.Writer.Status() == http.StatusTooManyRequests {
			onThrottled()
		}
	}
}
