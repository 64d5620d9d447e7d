// lógica de InteractionApplicationCommand: parsear la interacción y despachar al servicio
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

func (r *Router) handleSlashCommand(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	cmd := ic.ApplicationCommandData()
	uid := interactionUser(ic)
	r.log.Debug("slash", "cmd", cmd.Name, "user", uid, "guild", ic.GuildID)

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in slash command", "cmd", cmd.Name, "panic", rec)
			r.replyEphemeral(s, ic, msgGeneric)
		}
	}()
	defer step(r.log, "slash." + cmd.Name)()

	_ = r.deferEphemeral(s, ic)
	ctx, cancel := context.WithTimeout(context.Background(), interactionLimit)
	defer cancel()

	switch cmd.Name {

	//--> vacía el roster completo (ManageMessages o admin)
	case "clear-roster":
		if !r.requireAdminOrRoles(s, ic, discordgo.PermissionManageMessages) {
			return
		}
		removed, revoked, err := r.svc.ClearAll(ctx, ic.GuildID)
		if err != nil {
			r.log.Error("clear roster", "guild", ic.GuildID, "err", err)
			r.replyEphemeral(s, ic, errorText(err))
			return
		}
		if removed == 0 {
			r.replyEphemeral(s, ic, "The roster is already empty.")
			return
		}
		r.replyEphemeral(s, ic, fmt.Sprintf("🧹 Roster cleared: %d entr%s removed, %d role%s revoked.",
			removed, plural(removed, "y", "ies"), revoked, plural(revoked, "", "s")))

	case "roster":
		sub, _ := subcmdName(ic)
		switch sub {
		case "status":
			content, err := r.view.Content(ctx, ic.GuildID)
			if err != nil {
				r.log.Error("roster status", "guild", ic.GuildID, "err", err)
				r.replyEphemeral(s, ic, msgGeneric)
				return
			}
			r.replyEphemeral(s, ic, content)

		//--> re-provisiona (por si borraron el canal o el rol)
		case "setup":
			if !r.requireAdminOrRoles(s, ic, 0) {
				return
			}
			r.booted.Delete(ic.GuildID)
			res, err := r.prov.Ensure(ctx, ic.GuildID)
			if err != nil {
				r.log.Error("roster setup", "guild", ic.GuildID, "err", err)
				r.replyEphemeral(s, ic, "⚠️ Setup failed: "+err.Error())
				return
			}
			r.booted.Store(ic.GuildID, struct{}{})
			r.replyEphemeral(s, ic, fmt.Sprintf("✅ Roster ready: <#%s> and <#%s>, role <@&%s>.",
				res.ControlChannelID, res.RosterChannelID, res.ActiveRoleID))

		default:
			r.replyEphemeral(s, ic, "Use `/roster status` or `/roster setup`.")
		}

	case "prefer":
		tag, _ := optStr(ic, "tag")
		r.togglePreference(ctx, s, ic, tag)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
