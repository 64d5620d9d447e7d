package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	discordrouter "github.com/jose-valero/roster-bot/internal/adapters/discord"
	"github.com/jose-valero/roster-bot/internal/adapters/httpstatus"
	"github.com/jose-valero/roster-bot/internal/app/service"
	"github.com/jose-valero/roster-bot/internal/infra/backend"
	"github.com/jose-valero/roster-bot/internal/infra/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("bot stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store
	stores, err := backend.Open(ctx, cfg, true, log)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer stores.Close(context.Background())

	// Discord session + engine
	s, err := discordrouter.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	eng, err := backend.NewEngine(ctx, cfg, stores, s, true, log)
	if err != nil {
		return err
	}

	prov := discordrouter.NewProvisioner(s, eng.Cache, eng.View, discordrouter.ProvisionSettings{
		ControlChannel: cfg.Roster.Channels.Control,
		RosterChannel:  cfg.Roster.Channels.Roster,
		ActiveRole:     cfg.Roster.Roles.Active,
		Preferences:    cfg.Roster.Preferences,
		AutoClockOut:   cfg.Roster.AutoClockOut(),
	}, log)

	r := discordrouter.NewRouter(s, eng.Service, eng.Cache, eng.View, prov, discordrouter.Options{
		AdminRoleIDs: cfg.AdminRoleIDs,
		Preferences:  cfg.Roster.Preferences,
		ControlName:  cfg.Roster.Channels.Control,
		RosterName:   cfg.Roster.Channels.Roster,
		AutoClockOut: cfg.Roster.AutoClockOut(),
		Manages:      cfg.Manages,
	}, log)
	r.Handlers()

	if err := s.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	defer s.Close()
	defer eng.View.Stop()

	// Sweeper de expirados
	sweeper := service.NewSweeper(eng.Service, r.Guilds, cfg.Roster.CleanupInterval(), log)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	// HTTP status
	web := httpstatus.New(eng.Service, cfg.Manages, log)
	go func() {
		if err := web.Start(cfg.HTTPAddr); err != nil {
			log.Error("http server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return web.Shutdown(sctx)
}
