package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/roster-bot/internal/app/render"
	"github.com/jose-valero/roster-bot/internal/domain"
)

// Discord permite 5 filas de 5 botones por mensaje.
const (
	maxRows       = 5
	buttonsPerRow = 5
)

func clockRow() discordgo.ActionsRow {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				Style:    discordgo.SuccessButton,
				Label:    "Clock In",
				CustomID: customClockIn,
				Emoji:    &discordgo.ComponentEmoji{Name: "🕐"},
			},
			discordgo.Button{
				Style:    discordgo.DangerButton,
				Label:    "Clock Out",
				CustomID: customClockOut,
				Emoji:    &discordgo.ComponentEmoji{Name: "🕒"},
			},
		},
	}
}

// controlComponents: fila de clock in/out y debajo los botones de preferencia
// (más "clear"), cortando en lo que entra en el mensaje.
func controlComponents(prefs []domain.PreferenceTag) []discordgo.MessageComponent {
	out := []discordgo.MessageComponent{clockRow()}
	if len(prefs) == 0 {
		return out
	}

	buttons := make([]discordgo.MessageComponent, 0, len(prefs)+1)
	for _, p := range prefs {
		buttons = append(buttons, discordgo.Button{
			Style:    discordgo.SecondaryButton,
			Label:    p.Label,
			CustomID: prefCustomID(p.Tag),
		})
	}
	buttons = append(buttons, discordgo.Button{
		Style:    discordgo.SecondaryButton,
		Label:    "Clear",
		CustomID: prefCustomID(domain.TagClear),
		Emoji:    &discordgo.ComponentEmoji{Name: "🧹"},
	})

	limit := (maxRows - 1) * buttonsPerRow
	if len(buttons) > limit {
		// dejamos "clear" siempre como último
		buttons = append(buttons[:limit-1], buttons[len(buttons)-1])
	}
	for i := 0; i < len(buttons); i += buttonsPerRow {
		end := min(i+buttonsPerRow, len(buttons))
		out = append(out, discordgo.ActionsRow{Components: buttons[i:end]})
	}
	return out
}

func rosterComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{clockRow()}
}

func controlText(rosterChannel string, d time.Duration, prefs []domain.PreferenceTag) string {
	var b strings.Builder
	b.WriteString("**⏰ Clock Station**\n\n")
	fmt.Fprintf(&b, "Use the buttons below to clock in or out. Clocking in will give you access to the %s channel!\n\n", rosterChannel)
	fmt.Fprintf(&b, "• **Clock In**: Get the Clocked In role and access to %s\n", rosterChannel)
	fmt.Fprintf(&b, "• **Clock Out**: Remove the role and lose access to %s\n", rosterChannel)
	if len(prefs) > 0 {
		b.WriteString("• **Preferences**: While clocked in, toggle what you want to play\n")
	}
	fmt.Fprintf(&b, "\n*You'll be automatically clocked out after %s.*", render.Hours(d))
	return b.String()
}
