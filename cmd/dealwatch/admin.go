package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/term"

	"github.com/Strob0t/DealWatch/internal/adapter/amadeus"
	"github.com/Strob0t/DealWatch/internal/adapter/postgres"
	"github.com/Strob0t/DealWatch/internal/adapter/ristretto"
	"github.com/Strob0t/DealWatch/internal/config"
	"github.com/Strob0t/DealWatch/internal/domain/joblog"
	"github.com/Strob0t/DealWatch/internal/logger"
	"github.com/Strob0t/DealWatch/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "run-job":
		return runAdminRunJob(args[1:])
	case "job-logs":
		return runAdminJobLogs(args[1:])
	case "migrate-version":
		return runAdminMigrateVersion(args[1:])
	case "rollback":
		return runAdminRollback(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: dealwatch admin <command> [options]

Commands:
  run-job          Run the daily deals job once and print the result
  job-logs         List recent job executions
  migrate-version  Print the current schema version
  rollback         Roll back database migrations
  help             Show this help message

Examples:
  dealwatch admin run-job
  dealwatch admin job-logs --limit 5
  dealwatch admin job-logs --json
  dealwatch admin rollback --steps 1
`)
}

type adminDeps struct {
	cfg   *config.Config
	pool  *pgxpool.Pool
	store *postgres.Store
}

func loadAdminDeps(ctx context.Context) (*adminDeps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	return &adminDeps{cfg: cfg, pool: pool, store: postgres.NewStore(pool)}, pool.Close, nil
}

func runAdminRunJob(args []string) error {
	fs := flag.NewFlagSet("run-job", flag.ContinueOnError)
	timeout := fs.Duration("timeout", 30*time.Minute, "abort the run after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	log, closeLog := logger.New(deps.cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	vault, err := loadVault()
	if err != nil {
		return err
	}
	tokens, err := ristretto.NewMB(deps.cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer tokens.Close()

	source := amadeus.NewClient(amadeus.Config{
		BaseURL:           deps.cfg.Amadeus.BaseURL,
		Timeout:           deps.cfg.Amadeus.Timeout,
		RequestsPerSecond: deps.cfg.Amadeus.RequestsPerSecond,
		Burst:             deps.cfg.Amadeus.Burst,
	}, vault, tokens)

	emailCh, webhookCh, err := buildNotifiers(deps.cfg, vault)
	if err != nil {
		return err
	}

	discovery := service.NewDiscoveryService(deps.store, source, deps.cfg.Amadeus.SearchMax)
	// No live sessions from the CLI, so push alerts match without delivery.
	alerts := service.NewPushAlertService(deps.store, nil)
	jobs := service.NewJobService(deps.store, discovery, alerts, service.NewNotificationService(emailCh, webhookCh))

	log.InfoContext(ctx, "running deals job from admin CLI")
	res, err := jobs.RunDailyDealsJob(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("job failed: %s", res.Error)
	}
	return nil
}

func runAdminJobLogs(args []string) error {
	fs := flag.NewFlagSet("job-logs", flag.ContinueOnError)
	limit := fs.Int("limit", joblog.DefaultListLimit, "number of entries to show")
	asJSON := fs.Bool("json", false, "print JSON even on a terminal")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	jobs := service.NewJobService(deps.store, nil, nil, nil)
	logs, err := jobs.RecentLogs(ctx, *limit)
	if err != nil {
		return fmt.Errorf("list job logs: %w", err)
	}

	// Tables for people, JSON for pipes.
	if *asJSON || !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec // fd fits in int
		return json.NewEncoder(os.Stdout).Encode(logs)
	}

	if len(logs) == 0 {
		fmt.Println("No job runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tRULES\tDEALS\tNOTIFIED\tERROR")
	for i := range logs {
		l := &logs[i]
		dur := "-"
		if l.ExecutionTimeMS != nil {
			dur = (time.Duration(*l.ExecutionTimeMS) * time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			l.ID, l.Status, l.StartedAt.Local().Format(time.DateTime), dur,
			l.RulesProcessed, l.DealsFound, l.NotificationsSent, l.ErrorMessage)
	}
	return w.Flush()
}

func runAdminMigrateVersion(args []string) error {
	fs := flag.NewFlagSet("migrate-version", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	v, err := postgres.MigrationVersion(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	fmt.Println(v)
	return nil
}

func runAdminRollback(args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}

	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Rolled back %d migration(s); schema is now at version %d\n", *steps, v)
	return nil
}
