package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	DiscordToken string
	StoreDriver  string // postgres | mongo
	DatabaseURL  string
	MongoURI     string
	MongoDB      string
	HTTPAddr     string // opcional, default :8080
	LogLevel     slog.Level

	// opcionales
	GuildIDs     []string // si está vacío, gestionamos todos los guilds del bot
	AdminRoleIDs []string

	Roster Roster
}

// Load lee el entorno (ya cargado con godotenv desde main) y el TOML del roster.
// Devuelve todos los faltantes de una vez.
func Load() (Config, error) {
	var missing []string
	get := func(k string, req bool) string {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" && req {
			missing = append(missing, k)
		}
		return v
	}

	cfg := Config{
		DiscordToken: get("DISCORD_BOT_TOKEN", true),
		StoreDriver:  strings.ToLower(get("STORE_DRIVER", false)),
		HTTPAddr:     get("HTTP_ADDR", false),
		GuildIDs:     splitList(get("DISCORD_GUILD_IDS", false)),
		AdminRoleIDs: splitList(get("ADMIN_ROLE_IDS", false)),
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = DriverPostgres
	}
	switch cfg.StoreDriver {
	case DriverPostgres:
		cfg.DatabaseURL = get("DATABASE_URL", true)
	case DriverMongo:
		cfg.MongoURI = get("MONGO_URI", true)
		cfg.MongoDB = get("MONGO_DATABASE", true)
	default:
		return Config{}, fmt.Errorf("STORE_DRIVER inválido %q (postgres|mongo)", cfg.StoreDriver)
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("faltan env: %s", strings.Join(missing, ", "))
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	lvl, err := parseLevel(get("LOG_LEVEL", false))
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = lvl

	path := get("ROSTER_CONFIG", false)
	if path == "" {
		path = "roster.toml"
	}
	r, err := LoadRoster(path)
	if err != nil {
		return Config{}, err
	}
	cfg.Roster = r
	return cfg, nil
}

// Manages indica si el guild está dentro de DISCORD_GUILD_IDS (o si no hay filtro).
func (c Config) Manages(guildID string) bool {
	if len(c.GuildIDs) == 0 {
		return true
	}
	for _, id := range c.GuildIDs {
		if id == guildID {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, errors.New("LOG_LEVEL inválido: " + s)
}
