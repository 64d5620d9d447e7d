package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jose-valero/roster-bot/internal/app/render"
	"github.com/jose-valero/roster-bot/internal/domain"
)

// Roster es la parte estática de la config: nombres, timers y tablas.
type Roster struct {
	Collection  string                 `toml:"collection"`
	Channels    Channels               `toml:"channels"`
	Roles       Roles                  `toml:"roles"`
	Timers      Timers                 `toml:"timers"`
	Preferences []domain.PreferenceTag `toml:"preferences"`
	Categories  []Category             `toml:"categories"`
}

type Channels struct {
	Control string `toml:"control"`
	Roster  string `toml:"roster"`
}

type Roles struct {
	Active string `toml:"active"`
}

type Timers struct {
	AutoClockOutHours      int `toml:"auto_clock_out_hours"`
	CleanupIntervalMinutes int `toml:"cleanup_interval_minutes"`
}

// Category es una fila de la tabla de clasificación: el primer patrón que
// matchea algún rol del usuario gana.
type Category struct {
	Pattern string `toml:"pattern"`
	Label   string `toml:"label"`

	re *regexp.Regexp
}

func DefaultRoster() Roster {
	return Roster{
		Collection: "roster",
		Channels:   Channels{Control: "clock-station", Roster: "party-finder"},
		Roles:      Roles{Active: "Clocked In"},
		Timers:     Timers{AutoClockOutHours: 4, CleanupIntervalMinutes: 5},
	}
}

// LoadRoster lee el TOML; si no existe usa los defaults.
func LoadRoster(path string) (Roster, error) {
	r := DefaultRoster()
	if _, err := toml.DecodeFile(path, &r); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Roster{}, fmt.Errorf("roster config %s: %w", path, err)
		}
	}
	if err := r.compile(); err != nil {
		return Roster{}, fmt.Errorf("roster config %s: %w", path, err)
	}
	return r, nil
}

// ParseRoster es LoadRoster desde un string (tests, lambdas con config inline).
func ParseRoster(doc string) (Roster, error) {
	r := DefaultRoster()
	if _, err := toml.Decode(doc, &r); err != nil {
		return Roster{}, err
	}
	if err := r.compile(); err != nil {
		return Roster{}, err
	}
	return r, nil
}

func (r *Roster) compile() error {
	if r.Timers.AutoClockOutHours <= 0 {
		return errors.New("timers.auto_clock_out_hours debe ser > 0")
	}
	if r.Timers.CleanupIntervalMinutes <= 0 {
		return errors.New("timers.cleanup_interval_minutes debe ser > 0")
	}
	if r.Channels.Control == "" || r.Channels.Roster == "" || r.Roles.Active == "" {
		return errors.New("channels.control, channels.roster y roles.active son obligatorios")
	}
	seen := map[string]bool{}
	for i, p := range r.Preferences {
		tag := strings.ToLower(strings.TrimSpace(p.Tag))
		if tag == "" || tag == domain.TagClear {
			return fmt.Errorf("preferences[%d]: tag inválido %q", i, p.Tag)
		}
		if seen[tag] {
			return fmt.Errorf("preferences[%d]: tag duplicado %q", i, tag)
		}
		seen[tag] = true
		r.Preferences[i].Tag = tag
		if r.Preferences[i].Label == "" {
			r.Preferences[i].Label = p.Tag
		}
	}
	for i := range r.Categories {
		re, err := regexp.Compile(r.Categories[i].Pattern)
		if err != nil {
			return fmt.Errorf("categories[%d]: %w", i, err)
		}
		r.Categories[i].re = re
	}
	return nil
}

func (r Roster) AutoClockOut() time.Duration {
	return time.Duration(r.Timers.AutoClockOutHours) * time.Hour
}

func (r Roster) CleanupInterval() time.Duration {
	return time.Duration(r.Timers.CleanupIntervalMinutes) * time.Minute
}

// Classifier arma la tabla de clasificación en el orden del TOML.
func (r Roster) Classifier() *render.Classifier {
	rules := make([]render.Rule, 0, len(r.Categories))
	for _, c := range r.Categories {
		rules = append(rules, render.Rule{Pattern: c.re, Label: c.Label})
	}
	return render.NewClassifier(rules...)
}
