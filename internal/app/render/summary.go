// Package render arma el texto del roster. Todo acá es puro: sin I/O, sin reloj.
package render

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jose-valero/roster-bot/internal/domain"
)

const (
	header     = "**✅ Now Playing"
	EmptyText  = header + ":**\nNobody is clocked in."
	lineBullet = "- "
)

// Rule es una fila de la tabla de clasificación (pattern, label).
type Rule struct {
	Pattern *regexp.Regexp
	Label   string
}

// Classifier aplica las reglas en orden; gana el primer match.
type Classifier struct {
	rules []Rule
}

func NewClassifier(rules ...Rule) *Classifier {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Pattern != nil && r.Label != "" {
			out = append(out, r)
		}
	}
	return &Classifier{rules: out}
}

// Classify recorre reglas por fuera y roles por dentro, así el orden de la
// tabla manda sobre el orden de los roles del usuario.
func (c *Classifier) Classify(roleNames []string) string {
	if c == nil {
		return ""
	}
	for _, r := range c.rules {
		for _, name := range roleNames {
			if r.Pattern.MatchString(name) {
				return r.Label
			}
		}
	}
	return ""
}

// Member es una entrada activa más los nombres de los otros roles del usuario.
type Member struct {
	Entry     domain.RosterEntry
	Name      string // override del display name cacheado, si se conoce
	RoleNames []string
}

func (m Member) displayName() string {
	if strings.TrimSpace(m.Name) != "" {
		return m.Name
	}
	if strings.TrimSpace(m.Entry.DisplayName) != "" {
		return m.Entry.DisplayName
	}
	return "User " + m.Entry.UserID
}

// Summary renderiza en el orden recibido (orden de la query, sin sort).
// Las entradas vencidas se omiten aunque el sweep todavía no haya corrido.
func (c *Classifier) Summary(members []Member, now time.Time) string {
	active := members[:0:0]
	for _, m := range members {
		if m.Entry.Active(now) {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		return EmptyText
	}

	var (
		b      strings.Builder
		counts = map[string]int{}
		order  []string
	)
	fmt.Fprintf(&b, "%s (%d):**\n", header, len(active))
	for _, m := range active {
		b.WriteString(lineBullet)
		b.WriteString(m.displayName())
		if cat := c.Classify(m.RoleNames); cat != "" {
			fmt.Fprintf(&b, " [%s]", cat)
			if counts[cat] == 0 {
				order = append(order, cat)
			}
			counts[cat]++
		}
		fmt.Fprintf(&b, " (%s)\n", Remaining(m.Entry.Remaining(now)))
	}

	if len(order) > 0 {
		parts := make([]string, 0, len(order))
		for _, cat := range order {
			parts = append(parts, fmt.Sprintf("%s: %d", cat, counts[cat]))
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(parts, " · "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Summary sin clasificación.
func Summary(members []Member, now time.Time) string {
	var c *Classifier
	return c.Summary(members, now)
}

// Hours es el texto de la duración del turno ("1 hour", "4 hours", "90m0s").
func Hours(d time.Duration) string {
	if d%time.Hour != 0 || d <= 0 {
		return d.String()
	}
	if h := int(d / time.Hour); h != 1 {
		return fmt.Sprintf("%d hours", h)
	}
	return "1 hour"
}

// Remaining agrupa en horas / minutos / <1m.
func Remaining(d time.Duration) string {
	switch {
	case d >= time.Hour:
		h := int(d / time.Hour)
		m := int((d % time.Hour) / time.Minute)
		if m == 0 {
			return fmt.Sprintf("%dh left", h)
		}
		return fmt.Sprintf("%dh %dm left", h, m)
	case d >= time.Minute:
		return fmt.Sprintf("%dm left", int(d/time.Minute))
	default:
		return "<1m left"
	}
}
