package service

import (
	"context"
	"time"

	"github.com/jose-valero/roster-bot/internal/domain"
)

// Lo implementan internal/infra/storage.RosterRepo y internal/infra/mongostore.Store
type RosterStore interface {
	FindActive(ctx context.Context, guildID, userID string, now time.Time) ([]domain.RosterEntry, error)
	// Insert devuelve domain.ErrConflict si el backend detecta otra entrada activa.
	Insert(ctx context.Context, e domain.RosterEntry) error
	DeleteActive(ctx context.Context, guildID, userID string, now time.Time) (int64, error)
	ListActive(ctx context.Context, guildID string, now time.Time) ([]domain.RosterEntry, error)
	ListAll(ctx context.Context, guildID string) ([]domain.RosterEntry, error)
	DeleteByIDs(ctx context.Context, guildID string, ids []string) (int64, error)
	FindExpired(ctx context.Context, guildID string, now time.Time) ([]domain.RosterEntry, error)
	DeleteExpired(ctx context.Context, guildID string, now time.Time) (int64, error)
	Guilds(ctx context.Context) ([]string, error)
}

// Persistencia de los ids resueltos por el provisioning.
type ResourceStore interface {
	GetResources(ctx context.Context, guildID string) (domain.GuildResources, error)
	UpsertResources(ctx context.Context, r domain.GuildResources) error
	ListResources(ctx context.Context) ([]domain.GuildResources, error)
}

// Lo implementa internal/adapters/discord.Platform
type Platform interface {
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	DirectMessage(ctx context.Context, userID, content string) error
}

// Re-render del mensaje fijado del roster. Best-effort.
type SummaryPublisher interface {
	RefreshSummary(ctx context.Context, guildID string) error
}

type Resources interface {
	Get(ctx context.Context, guildID string) (domain.GuildResources, error)
}
