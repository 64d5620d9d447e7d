package discord

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/roster-bot/internal/app/render"
	"github.com/jose-valero/roster-bot/internal/domain"
)

// custom_id de los componentes
const (
	customClockIn  = "clock_in"
	customClockOut = "clock_out"
	prefPrefix     = "pref:"
)

// textos para el usuario
const (
	msgGeneric        = "An error occurred while processing your request."
	msgWrongChannel   = "This button can only be used in the %s or %s channels."
	msgRoleMissing    = "Error: Clocked In role not found. Please contact an administrator."
	msgNotActive      = "You're not currently clocked in."
	msgClockedOut     = "👋 You have been clocked out successfully!"
	msgSlowDown       = "⏳ Slow down a second…"
	msgNoPermission   = "🔒 You don't have permission to do that."
	msgPrefNeedsIn    = "You need to clock in before picking preferences."
	msgUnknownPref    = "Unknown preference tag."
	msgNothingToClear = "You had no preferences set."
)

func prefCustomID(tag string) string { return prefPrefix + tag }

// parseCustomID separa la acción del argumento ("pref:pvp" -> "pref", "pvp").
func parseCustomID(id string) (action, arg string) {
	if tag, ok := strings.CutPrefix(id, prefPrefix); ok {
		return "pref", tag
	}
	return id, ""
}

// memberDisplayName: nick del guild, nombre global, username.
func memberDisplayName(m *discordgo.Member) string {
	if m == nil {
		return ""
	}
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

func clockedInText(d time.Duration, rosterChannel string) string {
	return fmt.Sprintf("✅ You've been clocked in! You'll be automatically clocked out after %s.\n\nYou now have access to the %s channel!",
		render.Hours(d), rosterChannel)
}

// errorText traduce los errores del engine a texto; lo demás es el genérico.
func errorText(err error) string {
	var ae *domain.AlreadyActiveError
	switch {
	case errors.As(err, &ae):
		if ae.Until.IsZero() {
			return "You're already clocked in!"
		}
		return fmt.Sprintf("You're already clocked in! You'll be automatically clocked out <t:%d:R> (<t:%d:t>).",
			ae.Until.Unix(), ae.Until.Unix())
	case errors.Is(err, domain.ErrAlreadyActive):
		return "You're already clocked in!"
	case errors.Is(err, domain.ErrNotActive):
		return msgNotActive
	case errors.Is(err, domain.ErrRoleMissing):
		return msgRoleMissing
	case errors.Is(err, domain.ErrUnknownTag):
		return msgUnknownPref
	}
	return msgGeneric
}

func preferenceText(res domain.PreferenceResult) string {
	switch {
	case res.Tag == domain.TagClear && res.Cleared == 0:
		return msgNothingToClear
	case res.Tag == domain.TagClear:
		return fmt.Sprintf("🧹 Cleared %d preference(s).", res.Cleared)
	case res.Added:
		return fmt.Sprintf("🎯 Looking for **%s**.", res.Label)
	default:
		return fmt.Sprintf("Removed **%s** from your preferences.", res.Label)
	}
}

func optStr(ic *discordgo.InteractionCreate, name string) (string, bool) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return "", false
	}
	for _, o := range ic.ApplicationCommandData().Options {
		if o.Name == name {
			return o.StringValue(), true
		}
		// subcommand
		if o.Type == discordgo.ApplicationCommandOptionSubCommand {
			for _, so := range o.Options {
				if so.Name == name {
					return so.StringValue(), true
				}
			}
		}
	}
	return "", false
}

func subcmdName(ic *discordgo.InteractionCreate) (string, bool) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return "", false
	}
	for _, o := range ic.ApplicationCommandData().Options {
		if o.Type == discordgo.ApplicationCommandOptionSubCommand {
			return o.Name, true
		}
	}
	return "", false
}

func interactionUser(ic *discordgo.InteractionCreate) string {
	if ic.Member != nil && ic.Member.User != nil {
		return ic.Member.User.ID
	}
	if ic.User != nil {
		return ic.User.ID
	}
	return ""
}
