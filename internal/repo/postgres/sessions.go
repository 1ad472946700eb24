package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsehq/pulse/internal/observability"
	"github.com/pulsehq/pulse/internal/session"
)

// Sessions are plain rows keyed by token hash. No rotation, no sliding
// expiry: the row lives until it is revoked or discovered expired.
type SessionsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewSessionsRepo(pool *pgxpool.Pool, prom *observability.Prom) *SessionsRepo {
	return &SessionsRepo{pool: pool, prom: prom}
}

func (r *SessionsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}

	return fn()
}

func (r *SessionsRepo) Create(ctx context.Context, s session.Session) error {
	return r.observe("sessions.insert", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO sessions (token_hash, user_id, expires_at, created_at)
             VALUES ($1, $2, $3, $4)`,
			s.TokenHash, s.UserID, s.ExpiresAt, s.CreatedAt,
		)
		return err
	})
}

func (r *SessionsRepo) GetByTokenHash(ctx context.Context, hash string) (session.Session, error) {
	var s session.Session

	err := r.observe("sessions.get_by_hash", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT token_hash, user_id, expires_at, created_at
             FROM sessions
             WHERE token_hash = $1`,
			hash,
		).Scan(
			&s.TokenHash,
			&s.UserID,
			&s.ExpiresAt,
			&s.CreatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Session{}, session.ErrSessionNotFound
		}

		return session.Session{}, err
	}

	return s, nil
}

func (r *SessionsRepo) DeleteByTokenHash(ctx context.Context, hash string) error {
	var tag pgconn.CommandTag

	err := r.observe("sessions.delete_by_hash", func() error {
		var execErr error
		tag, execErr = r.pool.Exec(ctx,
			`DELETE FROM sessions WHERE token_hash = $1`,
			hash,
		)
		return execErr
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return session.ErrSessionNotFound
	}

	return nil
}

func (r *SessionsRepo) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var n int64

	err := r.observe("sessions.count_active", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM sessions WHERE expires_at >= $1`,
			now,
		).Scan(&n)
	})

	return n, err
}

func (r *SessionsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var tag pgconn.CommandTag

	err := r.observe("sessions.delete_expired", func() error {
		var execErr error
		tag, execErr = r.pool.Exec(ctx,
			`DELETE FROM sessions WHERE expires_at < $1`,
			now,
		)
		return execErr
	})

	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}
