package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fed-monitor/internal/alerting"
	"fed-monitor/internal/config"
	"fed-monitor/internal/fetcher"
	"fed-monitor/internal/scheduler"
	"fed-monitor/internal/service"
	"fed-monitor/internal/storage"
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

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newNotifier() *alerting.TelegramNotifier {
	if !a.Config.Alerting.Enabled || !a.Config.Alerting.Telegram.Enabled {
		return nil
	}
	return alerting.NewTelegramNotifier(a.Config, 10*time.Second, a.Logger)
}

func (a *App) newService(store *storage.Store, withNotifier bool) *service.Service {
	evaluator := alerting.NewEvaluator(a.Config.Metrics.StatNames(), a.Logger)

	var notifier alerting.Notifier
	var sender alerting.MessageSender
	if withNotifier {
		if tg := a.newNotifier(); tg != nil {
			notifier = tg
			sender = tg
		}
	}

	tracker := alerting.NewTracker(store, notifier, a.Config.Alerting.Cooldown, a.Logger)

	fred := fetcher.NewFRED(fetcher.FREDOptions{
		BaseURL:           a.Config.FRED.BaseURL,
		APIKey:            a.Config.FRED.APIKey,
		RequestsPerMinute: a.Config.FRED.RequestsPerMinute,
		Timeout:           a.Config.FRED.RequestTimeout,
		UserAgent:         a.Config.FRED.UserAgent,
	}, a.Logger)
	ingestor := fetcher.NewIngestor(fred, store, a.Config.Series, a.Logger)

	return service.New(a.Config, service.Options{
		Observations: store,
		Derived:      store,
		Evaluator:    evaluator,
		Tracker:      tracker,
		Ingestor:     ingestor,
		Sender:       sender,
		Locker:       store,
	}, a.Logger)
}

// InitDB creates the database schema.
func (a *App) InitDB(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	return store.InitSchema(ctx)
}

// Run executes the long-running monitoring service: scheduled data refresh, alert
// passes, and daily summaries.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.InitSchema(ctx); err != nil {
		return err
	}

	svc := a.newService(store, true)

	sched := scheduler.New(scheduler.Options{
		AlignToStart: a.Config.Schedule.AlignToBucket,
		StartupDelay: a.Config.Schedule.StartupDelay,
	}, a.Logger)

	jobs := []scheduler.Job{
		{Name: "fetch", Interval: a.Config.Schedule.FetchInterval, Run: svc.FetchJob},
		{Name: "check_alerts", Interval: a.Config.Schedule.CheckInterval, Run: svc.CheckJob},
	}
	if a.Config.Schedule.SummaryInterval > 0 {
		jobs = append(jobs, scheduler.Job{Name: "daily_summary", Interval: a.Config.Schedule.SummaryInterval, Run: svc.SummaryJob})
	}

	a.Logger.Info().Msg("starting monitoring service")
	err = sched.Run(ctx, jobs...)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// FetchOptions configure a data ingestion run.
type FetchOptions struct {
	Start        *time.Time
	End          *time.Time
	BackfillDays int
	Years        int
}

// CheckOptions configure an alert check.
type CheckOptions struct {
	DryRun     bool
	Severities []string
	Summary    bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit       int
	Transitions bool
}

// ExportOptions configure the export command.
type ExportOptions struct {
	OutputDir string
	Days      int
	PNG       bool
}
