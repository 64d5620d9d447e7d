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

const activeRoleColor = 0x00ff00

const (
	permsControlEveryone = discordgo.PermissionViewChannel | discordgo.PermissionReadMessageHistory | discordgo.PermissionUseExternalEmojis
	permsRosterMember    = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory | discordgo.PermissionUseExternalEmojis
	permsBot             = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory | discordgo.PermissionManageMessages
)

// ProvisionSettings son los nombres que se buscan (o crean) en cada guild.
type ProvisionSettings struct {
	ControlChannel string
	RosterChannel  string
	ActiveRole     string
	Preferences    []domain.PreferenceTag
	AutoClockOut   time.Duration
}

// Provisioner deja cada guild con rol, canales y mensajes fijados, y guarda
// los ids resueltos en la cache. Se puede correr las veces que haga falta.
type Provisioner struct {
	s     *discordgo.Session
	cache *service.ResourceCache
	view  *View
	set   ProvisionSettings
	log   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewProvisioner(s *discordgo.Session, cache *service.ResourceCache, view *View, set ProvisionSettings, log *slog.Logger) *Provisioner {
	return &Provisioner{s: s, cache: cache, view: view, set: set, log: log, locks: map[string]*sync.Mutex{}}
}

// lock por guild: Ready y GuildCreate llegan juntos y no queremos canales duplicados.
func (p *Provisioner) lock(guildID string) func() {
	p.mu.Lock()
	l, ok := p.locks[guildID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[guildID] = l
	}
	p.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (p *Provisioner) Ensure(ctx context.Context, guildID string) (domain.GuildResources, error) {
	defer p.lock(guildID)()
	defer step(p.log, "provision.ensure")()

	prev, _ := p.cache.Get(ctx, guildID)
	res := domain.GuildResources{GuildID: guildID, PreferenceRoleIDs: map[string]string{}}

	roles, err := p.s.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return res, fmt.Errorf("guild roles: %w", err)
	}
	active, err := p.ensureRole(ctx, guildID, roles, p.set.ActiveRole, activeRoleColor)
	if err != nil {
		return res, err
	}
	res.ActiveRoleID = active.ID
	for _, pref := range p.set.Preferences {
		r, err := p.ensureRole(ctx, guildID, roles, pref.Label, 0)
		if err != nil {
			// una preferencia rota no frena el resto del provisioning
			p.log.Warn("preference role", "guild", guildID, "tag", pref.Tag, "err", err)
			continue
		}
		res.PreferenceRoleIDs[pref.Tag] = r.ID
	}

	channels, err := p.s.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return res, fmt.Errorf("guild channels: %w", err)
	}
	botID := p.botID()
	control, err := p.ensureChannel(ctx, guildID, channels, p.set.ControlChannel,
		"Clock in/out station - Use the buttons below to manage your status",
		controlOverwrites(guildID, botID))
	if err != nil {
		return res, err
	}
	res.ControlChannelID = control.ID
	roster, err := p.ensureChannel(ctx, guildID, channels, p.set.RosterChannel,
		"Find a party among the members who are clocked in",
		rosterOverwrites(guildID, active.ID, botID))
	if err != nil {
		return res, err
	}
	res.RosterChannelID = roster.ID

	content := controlText(p.set.RosterChannel, p.set.AutoClockOut, p.set.Preferences)
	res.ControlMessageID, err = p.ensurePinned(ctx, control.ID, prev.ControlMessageID, content, controlComponents(p.set.Preferences))
	if err != nil {
		return res, fmt.Errorf("control message: %w", err)
	}
	res.RosterMessageID, err = p.ensurePinned(ctx, roster.ID, prev.RosterMessageID, render.EmptyText, rosterComponents())
	if err != nil {
		return res, fmt.Errorf("roster message: %w", err)
	}
	res.UpdatedAt = time.Now().UTC()

	if err := p.cache.Put(ctx, res); err != nil {
		p.log.Error("persist resources", "guild", guildID, "err", err)
	}
	// el mensaje se creó vacío: ahora va el contenido real
	if p.view != nil {
		if err := p.view.RefreshSummary(ctx, guildID); err != nil {
			p.log.Warn("initial roster render", "guild", guildID, "err", err)
		}
	}
	p.log.Info("guild provisioned", "guild", guildID, "role", res.ActiveRoleID,
		"control", res.ControlChannelID, "roster", res.RosterChannelID)
	return res, nil
}

func (p *Provisioner) botID() string {
	if p.s.State != nil && p.s.State.User != nil {
		return p.s.State.User.ID
	}
	return ""
}

func (p *Provisioner) ensureRole(ctx context.Context, guildID string, roles []*discordgo.Role, name string, color int) (*discordgo.Role, error) {
	if r := findRole(roles, name); r != nil {
		return r, nil
	}
	mentionable := false
	params := &discordgo.RoleParams{Name: name, Mentionable: &mentionable}
	if color != 0 {
		params.Color = &color
	}
	r, err := p.s.GuildRoleCreate(guildID, params, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create role %q: %w", name, err)
	}
	p.log.Info("role created", "guild", guildID, "role", name)
	return r, nil
}

// ensureChannel crea el canal si no existe; si existe re-aplica los overwrites.
func (p *Provisioner) ensureChannel(ctx context.Context, guildID string, channels []*discordgo.Channel, name, topic string, ow []*discordgo.PermissionOverwrite) (*discordgo.Channel, error) {
	if ch := findTextChannel(channels, name); ch != nil {
		var errs []error
		for _, o := range ow {
			if err := p.s.ChannelPermissionSet(ch.ID, o.ID, o.Type, o.Allow, o.Deny, discordgo.WithContext(ctx)); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			p.log.Warn("channel overwrites", "guild", guildID, "channel", name, "err", err)
		}
		return ch, nil
	}
	ch, err := p.s.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                topic,
		PermissionOverwrites: ow,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create channel %q: %w", name, err)
	}
	p.log.Info("channel created", "guild", guildID, "channel", name)
	return ch, nil
}

// ensurePinned edita el mensaje conocido, o el fijado por el bot, o manda uno nuevo.
func (p *Provisioner) ensurePinned(ctx context.Context, channelID, knownID, content string, comps []discordgo.MessageComponent) (string, error) {
	edit := func(id string) error {
		_, err := p.s.ChannelMessageEditComplex(&discordgo.MessageEdit{
			Channel:    channelID,
			ID:         id,
			Content:    &content,
			Components: &comps,
		}, discordgo.WithContext(ctx))
		return err
	}
	if knownID != "" && edit(knownID) == nil {
		return knownID, nil
	}
	if pins, err := p.s.ChannelMessagesPinned(channelID, discordgo.WithContext(ctx)); err == nil {
		if m := botPinned(pins, p.botID()); m != nil && edit(m.ID) == nil {
			return m.ID, nil
		}
	}
	return sendPinned(ctx, p.s, channelID, content, comps)
}

func findRole(roles []*discordgo.Role, name string) *discordgo.Role {
	for _, r := range roles {
		if r != nil && r.Name == name {
			return r
		}
	}
	return nil
}

func findTextChannel(channels []*discordgo.Channel, name string) *discordgo.Channel {
	for _, ch := range channels {
		if ch != nil && ch.Name == name && ch.Type == discordgo.ChannelTypeGuildText {
			return ch
		}
	}
	return nil
}

func botPinned(pins []*discordgo.Message, botID string) *discordgo.Message {
	if botID == "" {
		return nil
	}
	for _, m := range pins {
		if m != nil && m.Author != nil && m.Author.ID == botID {
			return m
		}
	}
	return nil
}

// @everyone tiene el mismo id que el guild.
func controlOverwrites(guildID, botID string) []*discordgo.PermissionOverwrite {
	ow := []*discordgo.PermissionOverwrite{{
		ID:    guildID,
		Type:  discordgo.PermissionOverwriteTypeRole,
		Deny:  discordgo.PermissionSendMessages,
		Allow: permsControlEveryone,
	}}
	return withBot(ow, botID)
}

func rosterOverwrites(guildID, activeRoleID, botID string) []*discordgo.PermissionOverwrite {
	ow := []*discordgo.PermissionOverwrite{
		{
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
		},
		{
			ID:    activeRoleID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: permsRosterMember,
		},
	}
	return withBot(ow, botID)
}

func withBot(ow []*discordgo.PermissionOverwrite, botID string) []*discordgo.PermissionOverwrite {
	if botID == "" {
		return ow
	}
	return append(ow, &discordgo.PermissionOverwrite{
		ID:    botID,
		Type:  discordgo.PermissionOverwriteTypeMember,
		Allow: permsBot,
	})
}
