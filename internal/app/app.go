package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ratewatcher/internal/alerting"
	"ratewatcher/internal/auth"
	"ratewatcher/internal/config"
	"ratewatcher/internal/fetcher"
	"ratewatcher/internal/httpapi"
	"ratewatcher/internal/ingest"
	"ratewatcher/internal/scheduler"
	"ratewatcher/internal/service"
	"ratewatcher/internal/storage"
	"ratewatcher/internal/storage/memory"
	"ratewatcher/internal/users"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// openStore returns the configured store: PostgreSQL when a DSN is present,
// otherwise the in-process store.
func (a *App) openStore(ctx context.Context) (storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory storage")
		return memory.NewStore(), func() {}, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewPGStore(pool)
	return store, store.Close, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newDirectory() users.Directory {
	if a.Config.Users.BaseURL == "" {
		a.Logger.Warn().Msg("users.base_url not configured; every user id will resolve")
		return users.AllowAll{}
	}
	return users.NewHTTPDirectory(users.HTTPDirectoryOptions{
		BaseURL: a.Config.Users.BaseURL,
		Timeout: a.Config.Users.RequestTimeout,
	}, a.Logger)
}

// newService seeds the currency set and assembles the facade over the store.
func (a *App) newService(ctx context.Context, store storage.Store) (*service.Service, error) {
	if err := store.SeedCurrencies(ctx, a.Config.SeedCurrencies()); err != nil {
		return nil, err
	}

	evaluator := alerting.NewEvaluator(store, a.newNotifier(), a.Logger)
	return service.New(store, a.newDirectory(), evaluator, a.Logger), nil
}

// Run starts the HTTP server and the ingestion poller until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(ctx, store)
	if err != nil {
		return err
	}

	api := httpapi.NewServer(svc, auth.Verifier{Secret: []byte(a.Config.Auth.JWTSecret)}, a.Logger)
	server := &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      api.Router(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if a.Config.RateSource.BaseURL == "" {
		a.Logger.Warn().Msg("rate_source.base_url not configured; ingestion poller disabled")
	} else {
		source := fetcher.NewClient(fetcher.Options{
			BaseURL:      a.Config.RateSource.BaseURL,
			BaseCurrency: a.Config.RateSource.BaseCurrency,
			Timeout:      a.Config.RateSource.RequestTimeout,
			UserAgent:    a.Config.RateSource.UserAgent,
		}, a.Logger)

		codes := make([]string, 0, len(a.Config.Currencies))
		for _, c := range a.Config.SeedCurrencies() {
			codes = append(codes, c.Code)
		}

		ingestor := ingest.New(source, svc, codes, a.Logger)
		sched := scheduler.New(scheduler.Options{
			Interval:     a.Config.Scheduler.Interval,
			AlignToStart: a.Config.Scheduler.AlignToBucket,
			StartupDelay: a.Config.Scheduler.StartupDelay,
		}, a.Logger)

		go func() {
			if err := sched.Run(ctx, ingestor.ProcessBucket); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("http server shutdown failed")
	}

	a.Logger.Info().Msg("service stopped")
	return nil
}

// ExportOptions hold parameters for exporting a currency's history.
type ExportOptions struct {
	Code      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Code  string
	Limit int
}
