package discord

import "github.com/bwmarrin/discordgo"

// requireAdminOrRoles: owner, bit Administrator o uno de ADMIN_ROLE_IDS.
// Si extra != 0 también alcanza con ese permiso (ej. ManageMessages para /clear-roster).
func (r *Router) requireAdminOrRoles(s *discordgo.Session, ic *discordgo.InteractionCreate, extra int64) bool {
	if ic.Member == nil || ic.Member.User == nil {
		r.replyEphemeral(s, ic, msgNoPermission)
		return false
	}

	// Owner
	if g, _ := s.State.Guild(ic.GuildID); g != nil && ic.Member.User.ID == g.OwnerID {
		return true
	}

	// Permisos calculados que manda Discord en la interacción
	perms := ic.Member.Permissions
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	if extra != 0 && perms&extra == extra {
		return true
	}

	// Roles explícitos del bot
	if hasAnyRole(ic.Member.Roles, r.opts.AdminRoleIDs) {
		return true
	}

	r.replyEphemeral(s, ic, msgNoPermission)
	return false
}

func hasAnyRole(held, want []string) bool {
	if len(want) == 0 {
		return false
	}
	has := make(map[string]struct{}, len(held))
	for _, rid := range held {
		has[rid] = struct{}{}
	}
	for _, w := range want {
		if _, ok := has[w]; ok {
			return true
		}
	}
	return false
}
