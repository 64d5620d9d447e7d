package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/roster-bot/internal/domain"
)

func (r *Router) handleMessageComponent(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	data := ic.MessageComponentData()
	uid := interactionUser(ic)

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in component", "custom_id", data.CustomID, "panic", rec)
			r.replyEphemeral(s, ic, msgGeneric)
		}
	}()
	defer step(r.log, "component." + data.CustomID)()

	action, arg := parseCustomID(data.CustomID)
	if action != customClockIn && action != customClockOut && action != "pref" {
		return // no es nuestro
	}

	_ = r.deferEphemeral(s, ic)
	ctx, cancel := context.WithTimeout(context.Background(), interactionLimit)
	defer cancel()

	if !r.clickLimiter.Allow(uid) {
		r.replyEphemeral(s, ic, msgSlowDown)
		return
	}

	// los botones solo valen en los dos canales del roster
	res, err := r.cache.Get(ctx, ic.GuildID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.log.Error("resources lookup", "guild", ic.GuildID, "err", err)
			r.replyEphemeral(s, ic, msgGeneric)
			return
		}
		r.replyEphemeral(s, ic, msgRoleMissing)
		return
	}
	if !res.ManagedChannel(ic.ChannelID) {
		r.replyEphemeral(s, ic, fmt.Sprintf(msgWrongChannel, r.opts.ControlName, r.opts.RosterName))
		return
	}

	switch action {
	case customClockIn:
		_, err := r.svc.ClockIn(ctx, ic.GuildID, uid, memberDisplayName(ic.Member))
		if err != nil {
			r.logUnexpected("clock in", ic.GuildID, uid, err)
			r.replyEphemeral(s, ic, errorText(err))
			return
		}
		r.replyEphemeral(s, ic, clockedInText(r.opts.AutoClockOut, r.opts.RosterName))

	case customClockOut:
		if err := r.svc.ClockOut(ctx, ic.GuildID, uid); err != nil {
			r.logUnexpected("clock out", ic.GuildID, uid, err)
			r.replyEphemeral(s, ic, errorText(err))
			return
		}
		r.replyEphemeral(s, ic, msgClockedOut)

	case "pref":
		r.togglePreference(ctx, s, ic, arg)
	}
}

// togglePreference es compartido por el botón pref:<tag> y /prefer.
func (r *Router) togglePreference(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate, tag string) {
	uid := interactionUser(ic)
	out, err := r.svc.TogglePreference(ctx, ic.GuildID, uid, tag)
	switch {
	case errors.Is(err, domain.ErrNotActive):
		r.replyEphemeral(s, ic, msgPrefNeedsIn)
	case err != nil:
		r.logUnexpected("toggle preference", ic.GuildID, uid, err)
		r.replyEphemeral(s, ic, errorText(err))
	default:
		r.replyEphemeral(s, ic, preferenceText(out))
	}
}

// logUnexpected loguea solo lo que no es un error de negocio esperable.
func (r *Router) logUnexpected(op, guildID, userID string, err error) {
	if errors.Is(err, domain.ErrAlreadyActive) || errors.Is(err, domain.ErrNotActive) || errors.Is(err, domain.ErrUnknownTag) {
		return
	}
	r.log.Error(op, "guild", guildID, "user", userID, "err", err)
}
