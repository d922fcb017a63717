// Package service orchestrates one evaluation pass: observations are loaded into a
// panel, derived metrics and statistics are computed, and every alert is evaluated
// against that same panel snapshot before transitions are persisted. Each pass runs
// to completion synchronously; scheduling is the caller's concern.
package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"fed-monitor/internal/alerting"
	"fed-monitor/internal/config"
	"fed-monitor/internal/fetcher"
	"fed-monitor/internal/metrics"
	"fed-monitor/internal/storage"
)

// Service wires the engine's collaborators together.
type Service struct {
	cfg       *config.Config
	obs       storage.ObservationStore
	derived   storage.DerivedStore
	evaluator *alerting.Evaluator
	tracker   *alerting.Tracker
	ingestor  *fetcher.Ingestor
	sender    alerting.MessageSender
	locker    storage.AdvisoryLocker
	lockKey   int64
	logger    zerolog.Logger
}

// Options collects the collaborators a Service needs. Tracker, Ingestor, Sender,
// and Locker may be nil; the corresponding operations become no-ops or errors.
type Options struct {
	Observations storage.ObservationStore
	Derived      storage.DerivedStore
	Evaluator    *alerting.Evaluator
	Tracker      *alerting.Tracker
	Ingestor     *fetcher.Ingestor
	Sender       alerting.MessageSender
	Locker       storage.AdvisoryLocker
}

// New constructs the monitoring service.
func New(cfg *config.Config, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		obs:       opts.Observations,
		derived:   opts.Derived,
		evaluator: opts.Evaluator,
		tracker:   opts.Tracker,
		ingestor:  opts.Ingestor,
		sender:    opts.Sender,
		locker:    opts.Locker,
		lockKey:   cfg.Schedule.AdvisoryLockKey,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// BuildPanel loads all configured series and computes the full panel: raw columns,
// derived metrics, then change and rolling statistics over every column.
func (s *Service) BuildPanel(ctx context.Context, from, to *time.Time, forwardFill bool) (*metrics.Panel, error) {
	if s.obs == nil {
		return nil, fmt.Errorf("observation store not configured")
	}

	keys := s.cfg.SeriesKeys()
	series := make(map[string][]storage.Observation, len(keys))
	for _, key := range keys {
		points, err := s.obs.ListObservations(ctx, key, from, to)
		if err != nil {
			return nil, fmt.Errorf("load observations for %s: %w", key, err)
		}
		series[key] = points
	}

	panel := metrics.BuildPanel(keys, series, forwardFill)
	metrics.ApplyDerived(panel, s.cfg.Derived, s.logger)
	metrics.ApplyStats(panel, s.cfg.Metrics.Changes, s.cfg.Metrics.Rolling)
	return panel, nil
}

// EvaluateAlerts evaluates every configured alert against a fresh panel without
// touching persisted state. Used by dry runs and breach summaries.
func (s *Service) EvaluateAlerts(ctx context.Context) ([]alerting.Result, error) {
	panel, err := s.BuildPanel(ctx, nil, nil, true)
	if err != nil {
		return nil, err
	}
	return s.evaluator.EvaluateAll(s.cfg.Alerts, panel), nil
}

// EvaluationPass evaluates all alerts against one panel snapshot and applies the
// state machine: write-through state, transition log, notification on OK to BREACH.
// Returns all results plus the subset that newly transitioned into breach.
func (s *Service) EvaluationPass(ctx context.Context, severities []string) ([]alerting.Result, []alerting.Result, error) {
	panel, err := s.BuildPanel(ctx, nil, nil, true)
	if err != nil {
		return nil, nil, err
	}

	results := s.evaluator.EvaluateAll(s.cfg.Alerts, panel)
	if s.tracker == nil {
		return results, nil, nil
	}

	breaches, err := s.tracker.Process(ctx, results, severities)
	if err != nil {
		return nil, nil, err
	}
	return results, breaches, nil
}

// Fetch ingests all configured series and refreshes stored derived values.
func (s *Service) Fetch(ctx context.Context, rng fetcher.FetchRange) (map[string]int64, error) {
	if s.ingestor == nil {
		return nil, fmt.Errorf("ingestor not configured")
	}
	results, err := s.ingestor.FetchAll(ctx, rng)
	if err != nil {
		return results, err
	}
	if err := s.StoreDerived(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to store derived metrics")
	}
	return results, nil
}

// StoreDerived computes derived metric series and persists them.
func (s *Service) StoreDerived(ctx context.Context) error {
	if s.derived == nil {
		return nil
	}

	keys := s.cfg.SeriesKeys()
	series := make(map[string][]storage.Observation, len(keys))
	for _, key := range keys {
		points, err := s.obs.ListObservations(ctx, key, nil, nil)
		if err != nil {
			return fmt.Errorf("load observations for %s: %w", key, err)
		}
		series[key] = points
	}

	panel := metrics.BuildPanel(keys, series, true)
	metrics.ApplyDerived(panel, s.cfg.Derived, s.logger)

	for _, key := range s.cfg.DerivedKeys() {
		col := panel.Column(key)
		if col == nil {
			continue
		}
		points := make([]storage.Observation, 0, len(col))
		for i, v := range col {
			if math.IsNaN(v) {
				continue
			}
			points = append(points, storage.Observation{Date: panel.Date(i), Value: v})
		}
		rows, err := s.derived.UpsertDerivedValues(ctx, key, points)
		if err != nil {
			return fmt.Errorf("store derived %s: %w", key, err)
		}
		s.logger.Info().Str("metric", key).Int64("rows", rows).Msg("derived values stored")
	}
	return nil
}

// Summary sends the daily summary of significant one-day changes.
func (s *Service) Summary(ctx context.Context) error {
	if s.sender == nil {
		return fmt.Errorf("no message channel configured")
	}

	panel, err := s.BuildPanel(ctx, nil, nil, true)
	if err != nil {
		return err
	}

	latest := metrics.LatestAll(panel, s.cfg.MetricKeys(), s.cfg.Metrics.StatNames())
	changes := alerting.SignificantChanges(s.cfg, latest)
	if len(changes) == 0 {
		s.logger.Info().Msg("no significant changes today")
		return nil
	}

	message := alerting.FormatDailySummary(s.cfg, changes, time.Now())
	if err := s.sender.SendMessage(ctx, message); err != nil {
		return fmt.Errorf("send daily summary: %w", err)
	}
	s.logger.Info().Int("changes", len(changes)).Msg("daily summary sent")
	return nil
}

// FetchJob is the scheduled data refresh.
func (s *Service) FetchJob(ctx context.Context, bucket time.Time) error {
	_, err := s.Fetch(ctx, fetcher.FetchRange{})
	return err
}

// CheckJob is the scheduled alert pass, serialised via the advisory lock so that
// at most one evaluation pass runs at a time.
func (s *Service) CheckJob(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip check because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, breaches, err := s.EvaluationPass(ctx, s.cfg.Alerting.NotifySeverities)
	if err != nil {
		return err
	}
	s.logger.Info().Int("new_breaches", len(breaches)).Msg("alert pass complete")
	return nil
}

// SummaryJob is the scheduled daily summary.
func (s *Service) SummaryJob(ctx context.Context, bucket time.Time) error {
	return s.Summary(ctx)
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
