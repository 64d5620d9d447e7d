package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/roster-bot/internal/app/render"
	"github.com/jose-valero/roster-bot/internal/app/service"
	"github.com/jose-valero/roster-bot/internal/domain"
)

// atajos de tuning
const (
	uiDebounce   = 250 * time.Millisecond
	ctxRenderMax = 10 * time.Second
)

// ActiveLister es lo único que la vista necesita del store.
type ActiveLister interface {
	ListActive(ctx context.Context, guildID string, now time.Time) ([]domain.RosterEntry, error)
}

// View mantiene el mensaje fijado del roster. Implementa service.SummaryPublisher.
type View struct {
	s          *discordgo.Session
	entries    ActiveLister
	cache      *service.ResourceCache
	classifier *render.Classifier
	now        func() time.Time
	log        *slog.Logger

	refreshMu sync.Mutex
	timers    map[string]*time.Timer
}

func NewView(s *discordgo.Session, entries ActiveLister, cache *service.ResourceCache, classifier *render.Classifier, log *slog.Logger) *View {
	return &View{
		s:          s,
		entries:    entries,
		cache:      cache,
		classifier: classifier,
		now:        time.Now,
		log:        log,
		timers:     map[string]*time.Timer{},
	}
}

// Content arma el texto del roster para el guild con nombres y roles actuales.
func (v *View) Content(ctx context.Context, guildID string) (string, error) {
	now := v.now()
	entries, err := v.entries.ListActive(ctx, guildID, now)
	if err != nil {
		return "", fmt.Errorf("list active: %w", err)
	}
	if len(entries) == 0 {
		return render.EmptyText, nil
	}

	roleNames := v.roleNames(ctx, guildID)
	// el rol de fichado y los de preferencia son del bot; se clasifica por los otros
	if res, err := v.cache.Get(ctx, guildID); err == nil {
		delete(roleNames, res.ActiveRoleID)
		for _, rid := range res.PreferenceRoleIDs {
			delete(roleNames, rid)
		}
	}
	members := make([]render.Member, 0, len(entries))
	for _, e := range entries {
		m := render.Member{Entry: e}
		if dm := v.member(ctx, guildID, e.UserID); dm != nil {
			m.Name = memberDisplayName(dm)
			for _, rid := range dm.Roles {
				if n, ok := roleNames[rid]; ok {
					m.RoleNames = append(m.RoleNames, n)
				}
			}
		}
		members = append(members, m)
	}
	return v.classifier.Summary(members, now), nil
}

// RefreshSummary re-renderiza y edita el mensaje fijado; si lo borraron lo
// vuelve a crear, lo fija y guarda el id nuevo.
func (v *View) RefreshSummary(ctx context.Context, guildID string) error {
	defer step(v.log, "view.refresh")()

	res, err := v.cache.Get(ctx, guildID)
	if err != nil {
		return fmt.Errorf("resources: %w", err)
	}
	if res.RosterChannelID == "" {
		return fmt.Errorf("roster channel not provisioned for guild %s", guildID)
	}
	content, err := v.Content(ctx, guildID)
	if err != nil {
		return err
	}

	comps := rosterComponents()
	if res.RosterMessageID != "" {
		_, err := v.s.ChannelMessageEditComplex(&discordgo.MessageEdit{
			Channel:    res.RosterChannelID,
			ID:         res.RosterMessageID,
			Content:    &content,
			Components: &comps,
		}, discordgo.WithContext(ctx))
		if err == nil {
			return nil
		}
		if restCode(err) != codeUnknownMessage {
			return fmt.Errorf("edit roster message: %w", err)
		}
		v.log.Info("roster message gone, recreating", "guild", guildID)
	}

	id, err := sendPinned(ctx, v.s, res.RosterChannelID, content, comps)
	if id == "" {
		return err
	}
	res.RosterMessageID = id
	return errors.Join(err, v.cache.Put(ctx, res))
}

// Schedule agrupa ráfagas de refresh por guild (debounce).
func (v *View) Schedule(guildID string) {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()
	if t, ok := v.timers[guildID]; ok {
		t.Stop()
	}
	v.timers[guildID] = time.AfterFunc(uiDebounce, func() {
		v.refreshMu.Lock()
		delete(v.timers, guildID)
		v.refreshMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), ctxRenderMax)
		defer cancel()
		if err := v.RefreshSummary(ctx, guildID); err != nil {
			v.log.Warn("scheduled refresh", "guild", guildID, "err", err)
		}
	})
}

// Stop cancela los refresh pendientes.
func (v *View) Stop() {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()
	for g, t := range v.timers {
		t.Stop()
		delete(v.timers, g)
	}
}

func (v *View) roleNames(ctx context.Context, guildID string) map[string]string {
	out := map[string]string{}
	var roles []*discordgo.Role
	if g, err := v.s.State.Guild(guildID); err == nil && len(g.Roles) > 0 {
		roles = g.Roles
	} else if rs, err := v.s.GuildRoles(guildID, discordgo.WithContext(ctx)); err == nil {
		roles = rs
	} else {
		v.log.Debug("guild roles", "guild", guildID, "err", err)
	}
	for _, r := range roles {
		if r.ID == guildID { // @everyone
			continue
		}
		out[r.ID] = r.Name
	}
	return out
}

// member busca primero en el state del gateway y después por REST.
func (v *View) member(ctx context.Context, guildID, userID string) *discordgo.Member {
	if m, err := v.s.State.Member(guildID, userID); err == nil && m != nil {
		return m
	}
	m, err := v.s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		v.log.Debug("member lookup", "guild", guildID, "user", userID, "err", err)
		return nil
	}
	return m
}

// sendPinned manda un mensaje nuevo y lo fija.
func sendPinned(ctx context.Context, s *discordgo.Session, channelID, content string, comps []discordgo.MessageComponent) (string, error) {
	msg, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    content,
		Components: comps,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	if err := s.ChannelMessagePin(channelID, msg.ID, discordgo.WithContext(ctx)); err != nil {
		return msg.ID, fmt.Errorf("pin message: %w", err)
	}
	return msg.ID, nil
}
