package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// GuildLister devuelve los guilds a barrer (estado del gateway en el bot,
// el store en el janitor).
type GuildLister func(ctx context.Context) ([]string, error)

const sweepGuildTimeout = 30 * time.Second

type Sweeper struct {
	svc      *RosterService
	guilds   GuildLister
	interval time.Duration
	log      *slog.Logger
	cron     *cron.Cron
}

func NewSweeper(svc *RosterService, guilds GuildLister, interval time.Duration, log *slog.Logger) *Sweeper {
	cl := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelWarn))
	return &Sweeper{
		svc:      svc,
		guilds:   guilds,
		interval: interval,
		log:      log,
		cron:     cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
	}
}

// Start agenda el barrido cada interval; no corre uno inmediato.
func (w *Sweeper) Start() error {
	if w.interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", w.interval)
	}
	if _, err := w.cron.AddFunc("@every "+w.interval.String(), func() {
		_, _ = w.RunOnce(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	w.cron.Start()
	w.log.Info("sweeper started", "every", w.interval)
	return nil
}

// Stop espera a que termine un barrido en curso.
func (w *Sweeper) Stop() {
	<-w.cron.Stop().Done()
}

// RunOnce barre todos los guilds; un guild que falla no frena al resto.
func (w *Sweeper) RunOnce(ctx context.Context) (int, error) {
	guilds, err := w.guilds(ctx)
	if err != nil {
		return 0, fmt.Errorf("list guilds: %w", err)
	}
	start := time.Now()
	total := 0
	var errs []error
	for _, g := range guilds {
		n, err := w.SweepGuild(ctx, g)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("guild %s: %w", g, err))
		}
	}
	w.log.Debug("sweep done", "guilds", len(guilds), "count", total, "dur", time.Since(start))
	return total, errors.Join(errs...)
}

func (w *Sweeper) SweepGuild(ctx context.Context, guildID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, sweepGuildTimeout)
	defer cancel()
	expired, err := w.svc.ReconcileExpired(ctx, guildID)
	if err != nil {
		w.log.Error("sweep guild", "guild", guildID, "err", err)
		return 0, err
	}
	return len(expired), nil
}
