package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/roster-bot/internal/app/service"
)

// NewSession crea la sesión agregando el prefijo "Bot " si hace falta.
// Sin Open() sirve como cliente REST (janitor, rosterctl).
func NewSession(token string) (*discordgo.Session, error) {
	auth := strings.TrimSpace(token)
	if !strings.HasPrefix(strings.ToLower(auth), "bot ") {
		auth = "Bot " + auth
	}
	s, err := discordgo.New(auth)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	return s, nil
}

type deferred struct{ v *View }

func (d deferred) RefreshSummary(_ context.Context, guildID string) error {
	d.v.Schedule(guildID)
	return nil
}

// Deferred devuelve un publisher que agenda el refresh con debounce en vez
// de hacerlo en línea (para el bot, donde las interacciones no esperan el edit).
func (v *View) Deferred() service.SummaryPublisher { return deferred{v: v} }
