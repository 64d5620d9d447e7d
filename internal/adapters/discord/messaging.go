package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"
)

// Códigos de error de la API de Discord que tratamos aparte.
const (
	codeUnknownMessage      = 10008
	codeUnknownWebhook      = 10015
	codeUnknownInteraction  = 10062
	codeAlreadyAcknowledged = 40060
)

func restCode(err error) int {
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Message != nil {
		return re.Message.Code
	}
	return 0
}

// alreadyAcked: la interacción ya fue respondida (o expiró). No es un error nuestro.
func alreadyAcked(err error) bool {
	c := restCode(err)
	return c == codeAlreadyAcknowledged || c == codeUnknownInteraction
}

// Defer efímero (para trabajos >3s)
func (r *Router) deferEphemeral(s *discordgo.Session, ic *discordgo.InteractionCreate) error {
	err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		if alreadyAcked(err) {
			r.log.Debug("defer: interaction already acknowledged", "interaction", ic.ID)
			return nil
		}
		r.log.Warn("defer ephemeral", "err", err)
	}
	return err
}

func (r *Router) replyEphemeral(s *discordgo.Session, ic *discordgo.InteractionCreate, content string) {
	_, err := s.FollowupMessageCreate(ic.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err == nil {
		return
	}
	// Fallback sólo si todavía no hay respuesta (webhook desconocido)
	if restCode(err) == codeUnknownWebhook {
		err = s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: content,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
		if err == nil {
			return
		}
	}
	if alreadyAcked(err) {
		r.log.Debug("reply: interaction already acknowledged", "interaction", ic.ID)
		return
	}
	r.log.Warn("reply ephemeral", "err", err)
}
