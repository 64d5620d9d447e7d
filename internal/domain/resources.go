package domain

import "time"

// GuildResources son los ids concretos que el provisioning resolvió para un guild.
// Se cachean en memoria y se persisten; nunca se buscan por nombre en cada request.
type GuildResources struct {
	GuildID           string            `json:"guild_id"`
	ActiveRoleID      string            `json:"active_role_id"`
	ControlChannelID  string            `json:"control_channel_id"`
	RosterChannelID   string            `json:"roster_channel_id"`
	ControlMessageID  string            `json:"control_message_id"`
	RosterMessageID   string            `json:"roster_message_id"`
	PreferenceRoleIDs map[string]string `json:"preference_role_ids"` // tag -> role id
	UpdatedAt         time.Time         `json:"updated_at"`
}

// ManagedChannel indica si channelID es uno de los dos canales del roster.
func (g GuildResources) ManagedChannel(channelID string) bool {
	if channelID == "" {
		return false
	}
	return channelID == g.ControlChannelID || channelID == g.RosterChannelID
}
