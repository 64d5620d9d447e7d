package discord

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/roster-bot/internal/app/service"
	"github.com/jose-valero/roster-bot/internal/domain"
)

const (
	clickWindow      = 1500 * time.Millisecond
	interactionLimit = 12 * time.Second
	bootstrapLimit   = 45 * time.Second
)

// Options son los knobs del router que vienen de la config.
type Options struct {
	AdminRoleIDs []string
	Preferences  []domain.PreferenceTag
	ControlName  string
	RosterName   string
	AutoClockOut time.Duration
	// Manages filtra guilds (DISCORD_GUILD_IDS); nil = todos.
	Manages func(guildID string) bool
}

type Router struct {
	s     *discordgo.Session
	log   *slog.Logger
	opts  Options
	svc   *service.RosterService
	cache *service.ResourceCache
	view  *View
	prov  *Provisioner

	clickLimiter *userLimiter
	booted       sync.Map // guildID -> struct{}
}

func NewRouter(
	s *discordgo.Session,
	svc *service.RosterService,
	cache *service.ResourceCache,
	view *View,
	prov *Provisioner,
	opts Options,
	log *slog.Logger,
) *Router {
	return &Router{
		s:            s,
		log:          log,
		opts:         opts,
		svc:          svc,
		cache:        cache,
		view:         view,
		prov:         prov,
		clickLimiter: newUserLimiter(clickWindow),
	}
}

func (r *Router) manages(guildID string) bool {
	return guildID != "" && (r.opts.Manages == nil || r.opts.Manages(guildID))
}

// Register sobrescribe los slash commands del guild (idempotente).
func (r *Router) Register(guildID string) error {
	appID := r.s.State.User.ID
	_, err := r.s.ApplicationCommandBulkOverwrite(appID, guildID, Commands(r.opts.Preferences))
	return err
}

// Handlers engancha todo en la sesión. Llamar antes de s.Open().
func (r *Router) Handlers() {
	r.s.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if !r.manages(ic.GuildID) {
			return
		}
		switch ic.Type {
		case discordgo.InteractionApplicationCommand:
			r.handleSlashCommand(s, ic)
		case discordgo.InteractionMessageComponent:
			r.handleMessageComponent(s, ic)
		}
	})

	r.s.AddHandler(func(s *discordgo.Session, ev *discordgo.Ready) {
		r.log.Info("connected", "user", ev.User.Username, "guilds", len(ev.Guilds))
		for _, g := range ev.Guilds {
			go r.bootstrap(g.ID, false)
		}
	})

	// GuildCreate llega al arrancar (después de Ready) y al sumar el bot a un guild nuevo
	r.s.AddHandler(func(s *discordgo.Session, ev *discordgo.GuildCreate) {
		if ev.Unavailable {
			return
		}
		go r.bootstrap(ev.ID, false)
	})

	// cambios de apodo o de roles de alguien fichado -> re-render
	r.s.AddHandler(func(s *discordgo.Session, ev *discordgo.GuildMemberUpdate) {
		if !r.manages(ev.GuildID) || ev.Member == nil {
			return
		}
		res, err := r.cache.Get(context.Background(), ev.GuildID)
		if err != nil || res.ActiveRoleID == "" {
			return
		}
		before := ev.BeforeUpdate
		wasActive := before != nil && slices.Contains(before.Roles, res.ActiveRoleID)
		if slices.Contains(ev.Roles, res.ActiveRoleID) || wasActive {
			r.view.Schedule(ev.GuildID)
		}
	})
}

// bootstrap registra comandos y provisiona el guild una vez por proceso
// (force lo repite, para /roster setup).
func (r *Router) bootstrap(guildID string, force bool) {
	if !r.manages(guildID) {
		return
	}
	if _, loaded := r.booted.LoadOrStore(guildID, struct{}{}); loaded && !force {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in bootstrap", "guild", guildID, "panic", rec)
			r.booted.Delete(guildID)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), bootstrapLimit)
	defer cancel()

	if err := r.Register(guildID); err != nil {
		r.log.Error("register commands", "guild", guildID, "err", err)
	}
	if _, err := r.prov.Ensure(ctx, guildID); err != nil {
		r.log.Error("provision guild", "guild", guildID, "err", err)
		r.booted.Delete(guildID) // reintenta en el próximo GuildCreate
	}
}

// Guilds es el GuildLister del sweeper para el bot: guilds del gateway que gestionamos.
func (r *Router) Guilds(context.Context) ([]string, error) {
	r.s.State.RLock()
	defer r.s.State.RUnlock()
	var out []string
	for _, g := range r.s.State.Guilds {
		if r.manages(g.ID) {
			out = append(out, g.ID)
		}
	}
	return out, nil
}
