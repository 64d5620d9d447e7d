package domain

import "time"

// RosterEntry es un clock-in. Nunca se actualiza: se crea y luego se borra
// (clock-out, clear o sweep).
type RosterEntry struct {
	ID           string    `json:"id"`
	GuildID      string    `json:"guild_id"`
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	ClockInTime  time.Time `json:"clock_in_time"`
	ClockOutTime time.Time `json:"clock_out_time"`
	CreatedAt    time.Time `json:"created_at"`
}

// Active: clockOutTime estrictamente posterior a now.
func (e RosterEntry) Active(now time.Time) bool {
	return e.ClockOutTime.After(now)
}

// Remaining nunca es negativo.
func (e RosterEntry) Remaining(now time.Time) time.Duration {
	d := e.ClockOutTime.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// PreferenceTag es un tag de preferencia de contenido configurado (tag -> label).
type PreferenceTag struct {
	Tag   string `toml:"tag"`
	Label string `toml:"label"`
}

// TagClear es el tag reservado que quita todas las preferencias.
const TagClear = "clear"

// PreferenceResult describe lo que hizo un toggle de preferencia.
type PreferenceResult struct {
	Tag     string
	Label   string
	Added   bool
	Cleared int // solo para TagClear
}
