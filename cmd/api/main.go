package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pulsehq/pulse/internal/auth"
	"github.com/pulsehq/pulse/internal/cache"
	"github.com/pulsehq/pulse/internal/config"
	"github.com/pulsehq/pulse/internal/db"
	httpx "github.com/pulsehq/pulse/internal/http"
	"github.com/pulsehq/pulse/internal/notifications"
	"github.com/pulsehq/pulse/internal/observability"
	"github.com/pulsehq/pulse/internal/queue/redisclient"
	"github.com/pulsehq/pulse/internal/repo/postgres"
	"github.com/pulsehq/pulse/internal/session"
)

func main() {
	// .env is a dev convenience; absence is fine
	_ = godotenv.Load()

	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// tracing
	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracer(ctx, "pulse-api", cfg.OTLPEndpoint)

		if err != nil {
			log.Error("tracer init failed", "err", err)
		} else {
			defer func() {
				ctxShut, cancel := config.WithTimeout(5 * time.Second)
				defer cancel()
				_ = shutdown(ctxShut)
			}()
		}
	}

	// database
	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	if err := db.RunMigrations(ctx, cfg.DBURL); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	if err := db.EnsureInvitedUsers(ctx, pool, cfg); err != nil {
		log.Error("invite seeding failed", "err", err)
		os.Exit(1)
	}

	// redis is optional; without it the login throttle falls back to the
	// in-process limiter
	var rdb *redisclient.Client

	if cfg.RedisAddr != "" {
		rdb = redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		defer rdb.Close()

		if err := rdb.Ping(ctx); err != nil {
			log.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "err", err)
		}
	}

	registry := prometheus.NewRegistry()
	prom := observability.NewProm(registry)

	usersRepo := postgres.NewUsersRepo(pool, prom)
	sessionsRepo := postgres.NewSessionsRepo(pool, prom)
	sessions := session.NewManager(sessionsRepo, usersRepo, cfg.SessionTTL(), log)
	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.JWTAccessTTL())

	// in-process sweep + gauge sample; the dedicated sweeper binary does
	// the heavy lifting on its own schedule
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sctx, cancel := context.WithTimeout(ctx, 30*time.Second)

				if n, err := sessions.SweepExpired(sctx); err == nil {
					prom.SessionsSwept.Add(float64(n))
				}

				if n, err := sessions.CountActive(sctx); err == nil {
					prom.SessionsActive.Set(float64(n))
				}

				cancel()
			}
		}
	}()

	notifier := notifications.NewProtectedNotifier(
		notifications.NewLogNotifier(log),
		notifications.ProtectedNotifierConfig{},
	)

	deps := httpx.Deps{
		Cfg:          cfg,
		Log:          log,
		Users:        usersRepo,
		Sessions:     sessions,
		JWT:          jwtManager,
		Notifier:     notifier,
		Profiles:     cache.New(5 * time.Second),
		Prom:         prom,
		PromRegistry: registry,
		Redis:        rdb,
		PingDB:       pool.Ping,
	}

	if rdb != nil {
		deps.PingRedis = rdb.Ping
	}

	router := httpx.NewRouter(deps)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)

		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return
	}

	log.Info("shutdown complete")
}
