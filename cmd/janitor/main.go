package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	discordrouter "github.com/jose-valero/roster-bot/internal/adapters/discord"
	"github.com/jose-valero/roster-bot/internal/app/service"
	"github.com/jose-valero/roster-bot/internal/infra/backend"
	"github.com/jose-valero/roster-bot/internal/infra/config"
)

// handler corre un sweep sobre todos los guilds del store. La sesión de
// Discord es solo REST (sin gateway).
func handler(ctx context.Context) (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	stores, err := backend.Open(ctx, cfg, false, log)
	if err != nil {
		return "", err
	}
	defer stores.Close(context.Background())

	s, err := discordrouter.NewSession(cfg.DiscordToken)
	if err != nil {
		return "", err
	}
	eng, err := backend.NewEngine(ctx, cfg, stores, s, false, log)
	if err != nil {
		return "", err
	}

	sw := service.NewSweeper(eng.Service, backend.StoreGuilds(cfg, stores), cfg.Roster.CleanupInterval(), log)
	n, err := sw.RunOnce(ctx)
	if err != nil {
		// un guild roto no invalida el resto; se informa igual
		log.Error("sweep finished with errors", "count", n, "err", err)
		return fmt.Sprintf("swept %d (with errors)", n), err
	}
	return fmt.Sprintf("swept %d", n), nil
}

func main() { lambda.Start(handler) }
