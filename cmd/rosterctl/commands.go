package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	discordrouter "github.com/jose-valero/roster-bot/internal/adapters/discord"
	"github.com/jose-valero/roster-bot/internal/app/render"
	"github.com/jose-valero/roster-bot/internal/app/service"
	"github.com/jose-valero/roster-bot/internal/infra/backend"
	"github.com/jose-valero/roster-bot/internal/infra/config"
)

var (
	guildFlag string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "rosterctl",
	Short: "Operate the clock-in roster outside Discord",
	Long: `rosterctl runs maintenance tasks against the roster store.

It reads the same environment (.env) and roster.toml as the bot.

Examples:
  rosterctl migrate                 # apply schema / indexes
  rosterctl list --guild 1234       # who is clocked in
  rosterctl sweep                   # expire entries in every guild
  rosterctl clear --guild 1234      # clock everybody out`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations (Postgres) or ensure indexes (Mongo)",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active roster entries for a guild",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired entries, revoke roles and notify users",
	Long: `Run one expiry sweep, the same pass the bot runs on its timer.

Without --guild every guild known to the store is swept.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clock out everybody in a guild",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	listCmd.Flags().StringVar(&guildFlag, "guild", "", "guild id")
	_ = listCmd.MarkFlagRequired("guild")
	sweepCmd.Flags().StringVar(&guildFlag, "guild", "", "only sweep this guild")
	clearCmd.Flags().StringVar(&guildFlag, "guild", "", "guild id")
	_ = clearCmd.MarkFlagRequired("guild")

	rootCmd.AddCommand(migrateCmd, listCmd, sweepCmd, clearCmd)
}

// setup carga config, logger y store.
func setup(ctx context.Context, migrate bool) (config.Config, *slog.Logger, *backend.Stores, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, err
	}
	lvl := cfg.LogLevel
	if verbose {
		lvl = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)

	stores, err := backend.Open(ctx, cfg, migrate, log)
	if err != nil {
		return cfg, log, nil, err
	}
	return cfg, log, stores, nil
}

func engine(ctx context.Context, cfg config.Config, stores *backend.Stores, log *slog.Logger) (*backend.Engine, error) {
	s, err := discordrouter.NewSession(cfg.DiscordToken)
	if err != nil {
		return nil, err
	}
	return backend.NewEngine(ctx, cfg, stores, s, false, log)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	_, _, stores, err := setup(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())

	v, ok, err := stores.SchemaVersion(cmd.Context())
	if err != nil {
		return fmt.Errorf("schema version: %w", err)
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ indexes ensured")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ schema at version %d\n", v)
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, _, stores, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())

	now := time.Now()
	entries, err := stores.Roster.ListActive(ctx, guildFlag, now)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "Nobody is clocked in.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tNAME\tCLOCKED IN\tREMAINING")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.UserID, e.DisplayName,
			e.ClockInTime.Local().Format(time.DateTime), render.Remaining(e.Remaining(now)))
	}
	fmt.Fprintf(tw, "\n%d active (auto clock-out after %s)\n", len(entries), cfg.Roster.AutoClockOut())
	return tw.Flush()
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, stores, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())

	eng, err := engine(ctx, cfg, stores, log)
	if err != nil {
		return err
	}
	guilds := backend.StoreGuilds(cfg, stores)
	if guildFlag != "" {
		guilds = func(context.Context) ([]string, error) { return []string{guildFlag}, nil }
	}
	n, err := service.NewSweeper(eng.Service, guilds, cfg.Roster.CleanupInterval(), log).RunOnce(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %d expired entries removed\n", n)
	return err
}

func runClear(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, stores, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())

	eng, err := engine(ctx, cfg, stores, log)
	if err != nil {
		return err
	}
	removed, revoked, err := eng.Service.ClearAll(ctx, guildFlag)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %d entries removed, %d roles revoked\n", removed, revoked)
	return nil
}
