package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/DealWatch/internal/adapter/amadeus"
	dwhttp "github.com/Strob0t/DealWatch/internal/adapter/http"
	dwnats "github.com/Strob0t/DealWatch/internal/adapter/nats"
	dwotel "github.com/Strob0t/DealWatch/internal/adapter/otel"
	"github.com/Strob0t/DealWatch/internal/adapter/postgres"
	"github.com/Strob0t/DealWatch/internal/adapter/ristretto"
	"github.com/Strob0t/DealWatch/internal/adapter/ws"
	"github.com/Strob0t/DealWatch/internal/config"
	"github.com/Strob0t/DealWatch/internal/domain/schedule"
	"github.com/Strob0t/DealWatch/internal/logger"
	"github.com/Strob0t/DealWatch/internal/middleware"
	"github.com/Strob0t/DealWatch/internal/port/messagequeue"
	"github.com/Strob0t/DealWatch/internal/port/notifier"
	"github.com/Strob0t/DealWatch/internal/resilience"
	"github.com/Strob0t/DealWatch/internal/secrets"
	"github.com/Strob0t/DealWatch/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"scheduler", cfg.Scheduler.Enabled,
		"schedule", cfg.Scheduler.Schedule,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	shutdownOTEL, err := dwotel.Init(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := dwotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Secrets ---
	vault, err := loadVault()
	if err != nil {
		return err
	}
	go reloadOnHangup(ctx, vault)

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS is optional; without it events are not published and manual
	// runs start in-process.
	var queue messagequeue.Queue
	var natsQueue *dwnats.Queue
	if cfg.NATS.URL != "" {
		natsQueue, err = dwnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := natsQueue.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		}()
		queue = natsQueue
	} else {
		slog.Info("nats disabled")
	}

	// Token cache for the offer source
	tokens, err := ristretto.NewMB(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer tokens.Close()

	// --- Offer source ---
	source := amadeus.NewClient(amadeus.Config{
		BaseURL:           cfg.Amadeus.BaseURL,
		Timeout:           cfg.Amadeus.Timeout,
		RequestsPerSecond: cfg.Amadeus.RequestsPerSecond,
		Burst:             cfg.Amadeus.Burst,
	}, vault, tokens)
	source.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
		resilience.WithName("amadeus"),
		resilience.WithIgnoreError(func(err error) bool { return !amadeus.IsUpstreamFailure(err) }),
		resilience.WithOnStateChange(func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		}),
	))
	if !source.ValidateCredentials(ctx) {
		slog.Warn("amadeus credentials missing or rejected; flight searches will find nothing")
	}

	// --- Notification channels ---
	emailCh, webhookCh, err := buildNotifiers(cfg, vault)
	if err != nil {
		return err
	}

	// --- Services ---
	hub := ws.NewHub(originPatterns(cfg.Server.CORSOrigin)...)
	defer hub.Close()

	store := postgres.NewStore(pool)

	discovery := service.NewDiscoveryService(store, source, cfg.Amadeus.SearchMax)
	discovery.SetMetrics(metrics)

	alerts := service.NewPushAlertService(store, hub)
	alerts.SetQueue(queue)

	jobs := service.NewJobService(store, discovery, alerts, service.NewNotificationService(emailCh, webhookCh))
	jobs.SetQueue(queue)
	jobs.SetBroadcaster(hub)
	jobs.SetMetrics(metrics)

	cancelTrigger, err := jobs.StartTriggerSubscriber(ctx)
	if err != nil {
		return fmt.Errorf("job trigger subscriber: %w", err)
	}
	defer cancelTrigger()

	if cfg.Scheduler.Enabled {
		sched, err := schedule.Parse(cfg.Scheduler.Schedule)
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		jobs.StartScheduler(ctx, sched, cfg.Scheduler.CheckInterval)
		defer jobs.StopScheduler()
		slog.Info("scheduler started", "schedule", cfg.Scheduler.Schedule, "next_run", sched.NextAfter(time.Now()))
	}

	// --- HTTP ---
	handlers := &dwhttp.Handlers{
		Rules:  service.NewRuleService(store),
		Deals:  service.NewDealService(store, store),
		Alerts: alerts,
		Jobs:   jobs,
		Checks: map[string]dwhttp.HealthCheck{
			"postgres": pool.Ping,
		},
	}
	if natsQueue != nil {
		handlers.Checks["nats"] = func(context.Context) error {
			if !natsQueue.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}
	}

	if hookSecret(cfg, vault) == "" {
		slog.Info("run-job hook disabled: no hook secret distinct from the webhook signing secret")
	}
	routeOpts := dwhttp.RouteOptions{
		HookSecret: func() string { return hookSecret(cfg, vault) },
		WebSocket:  hub.HandleWS,
	}
	if cfg.Server.RateLimitRPS > 0 {
		rl := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
		stopCleanup := rl.StartCleanup(time.Minute, 10*time.Minute)
		defer stopCleanup()
		routeOpts.RateLimiter = rl
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(dwotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(dwhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(dwhttp.SecurityHeaders)
	r.Use(dwhttp.CORS(cfg.Server.CORSOrigin))

	dwhttp.MountRoutes(r, handlers, routeOpts)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// loadVault reads secrets from the environment, overlaid by files in
// DEALWATCH_SECRETS_DIR when set.
func loadVault() (*secrets.Vault, error) {
	vault, err := secrets.NewVault(secrets.Chain(
		secrets.EnvLoader(secrets.DefaultKeys...),
		secrets.DirLoader(os.Getenv("DEALWATCH_SECRETS_DIR"), secrets.DefaultKeys...),
	))
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	return vault, nil
}

// reloadOnHangup re-reads the vault on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, vault *secrets.Vault) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := vault.Reload(); err != nil {
				slog.Error("secret reload failed", "error", err)
				continue
			}
			slog.Info("secrets reloaded", "keys", vault.Keys())
		}
	}
}

// buildNotifiers creates the email and webhook channels from the registry.
func buildNotifiers(cfg *config.Config, vault *secrets.Vault) (email, webhook notifier.Notifier, err error) {
	smtpPassword := vault.Get(secrets.SMTPPassword)
	if smtpPassword == "" {
		smtpPassword = cfg.SMTP.Password
	}
	email, err = notifier.New("email", map[string]string{
		"host":     cfg.SMTP.Host,
		"port":     fmt.Sprint(cfg.SMTP.Port),
		"from":     cfg.SMTP.From,
		"username": cfg.SMTP.Username,
		"password": smtpPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("email notifier: %w", err)
	}

	webhook, err = notifier.New("webhook", map[string]string{
		"timeout":        cfg.Webhook.Timeout.String(),
		"user_agent":     cfg.Webhook.UserAgent,
		"signing_secret": signingSecret(cfg, vault),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("webhook notifier: %w", err)
	}

	slog.Info("notification channels ready", "available", notifier.Available(), "smtp", cfg.SMTP.Host != "")
	return email, webhook, nil
}

// signingSecret returns the secret that signs outgoing rule webhooks,
// preferring the vault.
func signingSecret(cfg *config.Config, vault *secrets.Vault) string {
	if s := vault.Get(secrets.WebhookSecret); s != "" {
		return s
	}
	return cfg.Webhook.SigningSecret
}

// hookSecret returns the secret for the inbound run-job hook. It never falls
// back to the signing secret; a value equal to it disables the hook.
func hookSecret(cfg *config.Config, vault *secrets.Vault) string {
	s := vault.Get(secrets.HookSecret)
	if s == "" {
		s = cfg.Webhook.HookSecret
	}
	if s != "" && s == signingSecret(cfg, vault) {
		return ""
	}
	return s
}

// originPatterns turns the CORS origin into a WebSocket origin pattern.
func originPatterns(origin string) []string {
	if origin == "" || origin == "*" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
