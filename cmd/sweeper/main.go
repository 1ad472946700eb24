package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pulsehq/pulse/internal/config"
	"github.com/pulsehq/pulse/internal/db"
	"github.com/pulsehq/pulse/internal/observability"
	"github.com/pulsehq/pulse/internal/repo/postgres"
	"github.com/pulsehq/pulse/internal/session"
)

// Janitor for session rows whose tokens are never presented again.
// Expiry correctness does not depend on it; resolution deletes expired
// rows on contact. This only keeps the table from growing unbounded.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	usersRepo := postgres.NewUsersRepo(pool, nil)
	sessionsRepo := postgres.NewSessionsRepo(pool, nil)
	sessions := session.NewManager(sessionsRepo, usersRepo, cfg.SessionTTL(), log)

	interval := time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 60)) * time.Minute

	log.Info("sweeper started", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep(ctx, sessions, log)

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper shutting down")
			return
		case <-ticker.C:
			sweep(ctx, sessions, log)
		}
	}
}

func sweep(ctx context.Context, sessions *session.Manager, log *slog.Logger) {
	sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := sessions.SweepExpired(sctx)

	if err != nil {
		log.Error("sweep failed", "err", err)
		return
	}

	log.Info("sweep complete", "removed", n)
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)

	if v == "" {
		return fallback
	}

	n, err := strconv.Atoi(v)

	if err != nil {
		return fallback
	}

	return n
}
