package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jose-valero/roster-bot/internal/domain"
)

// ResourcesRepo persiste los ids resueltos por el provisioning (uno por guild).
type ResourcesRepo struct{ db *sql.DB }

func NewResourcesRepo(db *sql.DB) *ResourcesRepo { return &ResourcesRepo{db: db} }

const resourceCols = `guild_id, active_role_id, control_channel_id, roster_channel_id,
       control_message_id, roster_message_id, preference_role_ids, updated_at`

func (r *ResourcesRepo) GetResources(ctx context.Context, guildID string) (domain.GuildResources, error) {
	g, err := scanResources(r.db.QueryRowContext(ctx, `
SELECT `+resourceCols+`
  FROM guild_resources
 WHERE guild_id = $1
`, guildID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GuildResources{}, domain.ErrNotFound
	}
	return g, err
}

func (r *ResourcesRepo) UpsertResources(ctx context.Context, g domain.GuildResources) error {
	prefs, err := json.Marshal(nonNil(g.PreferenceRoleIDs))
	if err != nil {
		return fmt.Errorf("encode preference roles: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO guild_resources
  (guild_id, active_role_id, control_channel_id, roster_channel_id, control_message_id, roster_message_id, preference_role_ids)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (guild_id) DO UPDATE SET
  active_role_id      = EXCLUDED.active_role_id,
  control_channel_id  = EXCLUDED.control_channel_id,
  roster_channel_id   = EXCLUDED.roster_channel_id,
  control_message_id  = EXCLUDED.control_message_id,
  roster_message_id   = EXCLUDED.roster_message_id,
  preference_role_ids = EXCLUDED.preference_role_ids,
  updated_at          = now()
`, g.GuildID, g.ActiveRoleID, g.ControlChannelID, g.RosterChannelID, g.ControlMessageID, g.RosterMessageID, string(prefs))
	return err
}

func (r *ResourcesRepo) ListResources(ctx context.Context) ([]domain.GuildResources, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+resourceCols+` FROM guild_resources ORDER BY guild_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GuildResources
	for rows.Next() {
		g, err := scanResources(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanResources(s scanner) (domain.GuildResources, error) {
	var (
		g     domain.GuildResources
		prefs []byte
	)
	if err := s.Scan(&g.GuildID, &g.ActiveRoleID, &g.ControlChannelID, &g.RosterChannelID,
		&g.ControlMessageID, &g.RosterMessageID, &prefs, &g.UpdatedAt); err != nil {
		return domain.GuildResources{}, err
	}
	g.PreferenceRoleIDs = map[string]string{}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &g.PreferenceRoleIDs); err != nil {
			return domain.GuildResources{}, fmt.Errorf("decode preference roles: %w", err)
		}
	}
	return g, nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
