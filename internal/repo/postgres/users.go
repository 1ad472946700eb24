package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsehq/pulse/internal/domain/user"
	"github.com/pulsehq/pulse/internal/observability"
)

var (
	ErrUserNotFound     = user.ErrNotFound
	ErrEmailAlreadyUsed = user.ErrEmailTaken
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}

	return fn()
}

const userColumns = `id, email, password_hash, role, created_at, last_active, preferences, agent_config`

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	// same contract as the memory repo: callers may leave identity and
	// timestamps to the store
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	if u.LastActive.IsZero() {
		u.LastActive = u.CreatedAt
	}

	prefs, err := json.Marshal(u.Preferences)
	if err != nil {
		return user.User{}, err
	}

	cfg, err := json.Marshal(u.AgentConfig)
	if err != nil {
		return user.User{}, err
	}

	var roleStr *string
	if u.Role != nil {
		s := string(*u.Role)
		roleStr = &s
	}

	err = r.observe("users.insert", func() error {
		_, execErr := r.pool.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, role, created_at, last_active, preferences, agent_config)
             VALUES ($1, LOWER($2), $3, $4, $5, $6, $7, $8)`,
			u.ID, u.Email, u.PasswordHash, roleStr, u.CreatedAt, u.LastActive, prefs, cfg,
		)
		return execErr
	})

	if err != nil {
		var pgErr *pgconn.PgError

		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return user.User{}, ErrEmailAlreadyUsed
		}

		return user.User{}, err
	}

	return r.GetByID(ctx, u.ID)
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_email", func() error {
		row := r.pool.QueryRow(ctx,
			`SELECT `+userColumns+`
             FROM users
             WHERE email = LOWER($1)`,
			email,
		)

		var scanErr error
		u, scanErr = scanUser(row)
		return scanErr
	})

	return u, err
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_id", func() error {
		row := r.pool.QueryRow(ctx,
			`SELECT `+userColumns+`
             FROM users
             WHERE id = $1`,
			id,
		)

		var scanErr error
		u, scanErr = scanUser(row)
		return scanErr
	})

	return u, err
}

// SetPassword overwrites any prior hash; the strength check happens
// before hashing, in the handler.
func (r *UsersRepo) SetPassword(ctx context.Context, id, passwordHash string) error {
	var tag pgconn.CommandTag

	err := r.observe("users.set_password", func() error {
		var execErr error
		tag, execErr = r.pool.Exec(ctx,
			`UPDATE users SET password_hash = $2 WHERE id = $1`,
			id, passwordHash,
		)
		return execErr
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *UsersRepo) SetProfile(ctx context.Context, id string, role user.Role, prefs user.Preferences, cfg user.AgentConfig) error {
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return err
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	var tag pgconn.CommandTag

	err = r.observe("users.set_profile", func() error {
		var execErr error
		tag, execErr = r.pool.Exec(ctx,
			`UPDATE users SET role = $2, preferences = $3, agent_config = $4 WHERE id = $1`,
			id, string(role), prefsJSON, cfgJSON,
		)
		return execErr
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *UsersRepo) UpdatePreferences(ctx context.Context, id string, prefs user.Preferences) error {
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return err
	}

	var tag pgconn.CommandTag

	err = r.observe("users.update_preferences", func() error {
		var execErr error
		tag, execErr = r.pool.Exec(ctx,
			`UPDATE users SET preferences = $2 WHERE id = $1`,
			id, prefsJSON,
		)
		return execErr
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *UsersRepo) UpdateAgentConfig(ctx context.Context, id string, cfg user.AgentConfig) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	var tag pgconn.CommandTag

	err = r.observe("users.update_agent_config", func() error {
		var execErr error
		tag, execErr = r.pool.Exec(ctx,
			`UPDATE users SET agent_config = $2 WHERE id = $1`,
			id, cfgJSON,
		)
		return execErr
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *UsersRepo) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	return r.observe("users.touch_last_active", func() error {
		_, err := r.pool.Exec(ctx,
			`UPDATE users SET last_active = $2 WHERE id = $1`,
			id, at,
		)
		return err
	})
}

func scanUser(row pgx.Row) (user.User, error) {
	var (
		u         user.User
		roleStr   *string
		prefsJSON []byte
		cfgJSON   []byte
	)

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&roleStr,
		&u.CreatedAt,
		&u.LastActive,
		&prefsJSON,
		&cfgJSON,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, ErrUserNotFound
		}

		return user.User{}, err
	}

	if roleStr != nil {
		role := user.Role(*roleStr)
		u.Role = &role
	}

	if len(prefsJSON) > 0 {
		if err := json.Unmarshal(prefsJSON, &u.Preferences); err != nil {
			return user.User{}, err
		}
	}

	if len(cfgJSON) > 0 {
		if err := json.Unmarshal(cfgJSON, &u.AgentConfig); err != nil {
			return user.User{}, err
		}
	}

	return u, nil
}
