package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/roster-bot/internal/domain"
)

var manageMessages int64 = discordgo.PermissionManageMessages

// Commands arma los slash commands; las opciones de /prefer salen de la config.
func Commands(prefs []domain.PreferenceTag) []*discordgo.ApplicationCommand {
	dm := false
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(prefs)+1)
	for _, p := range prefs {
		if len(choices) == 24 { // máximo 25 con "clear"
			break
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: p.Label, Value: p.Tag})
	}
	choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: "Clear all", Value: domain.TagClear})

	cmds := []*discordgo.ApplicationCommand{
		{
			Name:                     "clear-roster",
			Description:              "Clear all users from the roster (Admin only)",
			DefaultMemberPermissions: &manageMessages,
			DMPermission:             &dm,
		},
		{
			Name:         "roster",
			Description:  "Roster tools",
			DMPermission: &dm,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "status", Description: "Who is clocked in right now"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "setup", Description: "Re-create roles, channels and pinned messages (admins)"},
			},
		},
	}
	if len(prefs) > 0 {
		cmds = append(cmds, &discordgo.ApplicationCommand{
			Name:         "prefer",
			Description:  "Toggle a content preference (clocked-in members only)",
			DMPermission: &dm,
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "tag",
				Description: "What you want to play",
				Required:    true,
				Choices:     choices,
			}},
		})
	}
	return cmds
}
