package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Platform implementa service.Platform sobre la API REST de discordgo.
type Platform struct {
	s *discordgo.Session
}

func NewPlatform(s *discordgo.Session) *Platform { return &Platform{s: s} }

func (p *Platform) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	m, err := p.s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("guild member %s: %w", userID, err)
	}
	return m.Roles, nil
}

func (p *Platform) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := p.s.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("add role %s to %s: %w", roleID, userID, err)
	}
	return nil
}

func (p *Platform) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := p.s.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("remove role %s from %s: %w", roleID, userID, err)
	}
	return nil
}

func (p *Platform) DirectMessage(ctx context.Context, userID, content string) error {
	ch, err := p.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("dm channel %s: %w", userID, err)
	}
	if _, err := p.s.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("dm %s: %w", userID, err)
	}
	return nil
}
