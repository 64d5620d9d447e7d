// Package backend elige el store según STORE_DRIVER y arma el engine del roster.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	discordrouter "github.com/jose-valero/roster-bot/internal/adapters/discord"
	"github.com/jose-valero/roster-bot/internal/app/service"
	"github.com/jose-valero/roster-bot/internal/infra/config"
	"github.com/jose-valero/roster-bot/internal/infra/mongostore"
	"github.com/jose-valero/roster-bot/internal/infra/storage"
)

type Stores struct {
	Roster    service.RosterStore
	Resources service.ResourceStore
	close     func(ctx context.Context) error
	version   func(ctx context.Context) (int64, error) // solo Postgres
}

// SchemaVersion devuelve la versión de goose; ok=false si el backend no versiona esquema.
func (s *Stores) SchemaVersion(ctx context.Context) (v int64, ok bool, err error) {
	if s == nil || s.version == nil {
		return 0, false, nil
	}
	v, err = s.version(ctx)
	return v, err == nil, err
}

func (s *Stores) Close(ctx context.Context) error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// Open conecta el backend configurado. migrate aplica el esquema (goose en
// Postgres, índices en Mongo).
func Open(ctx context.Context, cfg config.Config, migrate bool, log *slog.Logger) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := storage.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := storage.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
			log.Info("postgres ready and migrated")
		}
		return &Stores{
			Roster:    storage.NewRosterRepo(db),
			Resources: storage.NewResourcesRepo(db),
			close:     func(context.Context) error { return db.Close() },
			version:   func(ctx context.Context) (int64, error) { return storage.Version(ctx, db) },
		}, nil

	case config.DriverMongo:
		st, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB, cfg.Roster.Collection)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := st.EnsureIndexes(ctx); err != nil {
				_ = st.Close(context.Background())
				return nil, err
			}
			log.Info("mongo ready, indexes ensured", "collection", cfg.Roster.Collection)
		}
		return &Stores{Roster: st, Resources: st, close: st.Close}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// Engine agrupa lo que comparten el bot, el janitor y rosterctl.
type Engine struct {
	Session *discordgo.Session
	Cache   *service.ResourceCache
	View    *discordrouter.View
	Service *service.RosterService
}

// NewEngine arma cache, vista y servicio sobre una sesión ya creada. Con
// deferRefresh el re-render del roster va con debounce (bot); sin él es en
// línea (procesos cortos que terminan después del sweep).
func NewEngine(ctx context.Context, cfg config.Config, stores *Stores, s *discordgo.Session, deferRefresh bool, log *slog.Logger) (*Engine, error) {
	cache := service.NewResourceCache(stores.Resources)
	n, err := cache.Warm(ctx)
	if err != nil {
		return nil, fmt.Errorf("warm resources: %w", err)
	}
	log.Debug("resource cache warmed", "count", n)

	view := discordrouter.NewView(s, stores.Roster, cache, cfg.Roster.Classifier(), log)
	var pub service.SummaryPublisher = view
	if deferRefresh {
		pub = view.Deferred()
	}
	svc := service.NewRosterService(
		stores.Roster,
		discordrouter.NewPlatform(s),
		cache,
		pub,
		service.RosterSettings{Duration: cfg.Roster.AutoClockOut(), Preferences: cfg.Roster.Preferences},
		service.WithLogger(log),
	)
	return &Engine{Session: s, Cache: cache, View: view, Service: svc}, nil
}

// StoreGuilds lista los guilds del store filtrados por DISCORD_GUILD_IDS.
func StoreGuilds(cfg config.Config, stores *Stores) service.GuildLister {
	return func(ctx context.Context) ([]string, error) {
		all, err := stores.Roster.Guilds(ctx)
		if err != nil {
			return nil, err
		}
		out := all[:0]
		for _, g := range all {
			if cfg.Manages(g) {
				out = append(out, g)
			}
		}
		return out, nil
	}
}
