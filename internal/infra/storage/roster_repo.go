package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pq "github.com/lib/pq"

	"github.com/jose-valero/roster-bot/internal/domain"
)

// pgUniqueViolation es el SQLSTATE de unique_violation.
const pgUniqueViolation = "23505"

type RosterRepo struct{ db *sql.DB }

func NewRosterRepo(db *sql.DB) *RosterRepo { return &RosterRepo{db: db} }

const entryCols = `id, guild_id, user_id, display_name, clock_in_time, clock_out_time, created_at`

func (r *RosterRepo) FindActive(ctx context.Context, guildID, userID string, now time.Time) ([]domain.RosterEntry, error) {
	return r.query(ctx, `
SELECT `+entryCols+`
  FROM roster_entries
 WHERE guild_id = $1 AND user_id = $2 AND clock_out_time > $3
 ORDER BY clock_in_time ASC, created_at ASC
`, guildID, userID, now)
}

// Insert toma un advisory lock por (guild, user) dentro de la tx y vuelve a
// chequear; si ya hay una activa devuelve domain.ErrConflict.
func (r *RosterRepo) Insert(ctx context.Context, e domain.RosterEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`, e.GuildID, e.UserID); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	var n int
	if err := tx.QueryRowContext(ctx, `
SELECT count(*)
  FROM roster_entries
 WHERE guild_id = $1 AND user_id = $2 AND clock_out_time > $3
`, e.GuildID, e.UserID, e.ClockInTime).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO roster_entries (`+entryCols+`)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, e.ID, e.GuildID, e.UserID, e.DisplayName, e.ClockInTime, e.ClockOutTime, e.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrConflict
		}
		return err
	}
	return tx.Commit()
}

func (r *RosterRepo) DeleteActive(ctx context.Context, guildID, userID string, now time.Time) (int64, error) {
	return r.exec(ctx, `
DELETE FROM roster_entries
 WHERE guild_id = $1 AND user_id = $2 AND clock_out_time > $3
`, guildID, userID, now)
}

// ListActive en orden de inserción (clock_in_time, created_at).
func (r *RosterRepo) ListActive(ctx context.Context, guildID string, now time.Time) ([]domain.RosterEntry, error) {
	return r.query(ctx, `
SELECT `+entryCols+`
  FROM roster_entries
 WHERE guild_id = $1 AND clock_out_time > $2
 ORDER BY clock_in_time ASC, created_at ASC
`, guildID, now)
}

func (r *RosterRepo) ListAll(ctx context.Context, guildID string) ([]domain.RosterEntry, error) {
	return r.query(ctx, `
SELECT `+entryCols+`
  FROM roster_entries
 WHERE guild_id = $1
 ORDER BY clock_in_time ASC, created_at ASC
`, guildID)
}

func (r *RosterRepo) DeleteByIDs(ctx context.Context, guildID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.exec(ctx, `
DELETE FROM roster_entries
 WHERE guild_id = $1 AND id::text = ANY($2)
`, guildID, pq.Array(ids))
}

func (r *RosterRepo) FindExpired(ctx context.Context, guildID string, now time.Time) ([]domain.RosterEntry, error) {
	return r.query(ctx, `
SELECT `+entryCols+`
  FROM roster_entries
 WHERE guild_id = $1 AND clock_out_time <= $2
 ORDER BY clock_out_time ASC
`, guildID, now)
}

func (r *RosterRepo) DeleteExpired(ctx context.Context, guildID string, now time.Time) (int64, error) {
	return r.exec(ctx, `
DELETE FROM roster_entries
 WHERE guild_id = $1 AND clock_out_time <= $2
`, guildID, now)
}

// Guilds: los que tienen entradas o recursos provisionados.
func (r *RosterRepo) Guilds(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT guild_id FROM roster_entries
UNION
SELECT guild_id FROM guild_resources
ORDER BY 1
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *RosterRepo) query(ctx context.Context, q string, args ...any) ([]domain.RosterEntry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RosterEntry
	for rows.Next() {
		var e domain.RosterEntry
		if err := rows.Scan(&e.ID, &e.GuildID, &e.UserID, &e.DisplayName, &e.ClockInTime, &e.ClockOutTime, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *RosterRepo) exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
