package db

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsehq/pulse/internal/config"
	"github.com/pulsehq/pulse/internal/domain/user"
	"github.com/pulsehq/pulse/internal/security"
)

// EnsureInvitedUsers pre-provisions invited accounts: a row with no
// password hash and no role. The owner sets both through the setup
// flow on first login.
func EnsureInvitedUsers(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	for _, email := range cfg.InviteEmails {
		email = strings.ToLower(strings.TrimSpace(email))

		if email == "" {
			continue
		}

		if !security.ValidEmailDomain(email, cfg.EmailDomain) {
			continue
		}

		// skip existing rows

		var dummy string

		err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&dummy)

		if err == nil {
			continue
		}

		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		now := time.Now().UTC()

		prefs, err := json.Marshal(user.DefaultPreferences())
		if err != nil {
			return err
		}

		agentCfg, err := json.Marshal(user.DefaultAgentConfig())
		if err != nil {
			return err
		}

		_, err = pool.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, role, created_at, last_active, preferences, agent_config)
			VALUES ($1, $2, NULL, NULL, $3, $4, $5, $6)
			`,
			uuid.NewString(), email, now, now, prefs, agentCfg,
		)

		if err != nil {
			return err
		}
	}

	return nil
}
