package alerting

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"fed-monitor/internal/storage"
)

// StateStore is the persistence the tracker needs: atomic write-through of alert
// state with transition detection, plus the append-only transition log.
type StateStore interface {
	SetAlertState(ctx context.Context, alertID, state string, value *float64) (storage.AlertState, bool, error)
	AppendTransitionLog(ctx context.Context, entry storage.TransitionLogEntry) error
}

// Notifier delivers one alert result on an OK to BREACH transition.
type Notifier interface {
	Notify(ctx context.Context, result Result) error
}

// Tracker applies the OK/BREACH state machine to evaluation results.
type Tracker struct {
	states   StateStore
	notifier Notifier
	cooldown time.Duration
	logger   zerolog.Logger
}

// NewTracker constructs a tracker. notifier may be nil, in which case transitions
// are persisted and logged but nothing is delivered. A non-zero cooldown suppresses
// notifications for BREACH transitions that occur within the window of the previous
// transition; the transition itself is still recorded.
func NewTracker(states StateStore, notifier Notifier, cooldown time.Duration, logger zerolog.Logger) *Tracker {
	return &Tracker{
		states:   states,
		notifier: notifier,
		cooldown: cooldown,
		logger:   logger.With().Str("component", "alert_tracker").Logger(),
	}
}

// Process persists the new state for every result, detects transitions, appends
// transition log entries, and notifies on OK to BREACH. Transitions into OK are
// logged but never notified. Results outside severities are skipped entirely; a
// nil or empty filter processes everything. Store failures abort the pass.
//
// Returns the results that transitioned into BREACH, annotated with StateChanged
// and PreviousState.
func (t *Tracker) Process(ctx context.Context, results []Result, severities []string) ([]Result, error) {
	include := make(map[string]bool, len(severities))
	for _, s := range severities {
		include[s] = true
	}

	breaches := make([]Result, 0)
	for i := range results {
		result := &results[i]
		if len(include) > 0 && !include[result.Severity] {
			continue
		}

		newState := storage.StateOK
		if result.Triggered {
			newState = storage.StateBreach
		}

		var value *float64
		if !math.IsNaN(result.Value) {
			v := result.Value
			value = &v
		}

		prev, changed, err := t.states.SetAlertState(ctx, result.Identity, newState, value)
		if err != nil {
			return nil, fmt.Errorf("persist alert state %s: %w", result.Identity, err)
		}
		if !changed {
			continue
		}

		result.StateChanged = true
		result.PreviousState = prev.State

		entry := storage.TransitionLogEntry{
			AlertID:   result.Identity,
			Severity:  result.Severity,
			StateFrom: prev.State,
			StateTo:   newState,
			Value:     value,
			Note:      result.Note,
		}
		if err := t.states.AppendTransitionLog(ctx, entry); err != nil {
			return nil, fmt.Errorf("log alert transition %s: %w", result.Identity, err)
		}

		t.logger.Info().
			Str("alert_id", result.Identity).
			Str("from", prev.State).
			Str("to", newState).
			Msg("alert state transition")

		if newState != storage.StateBreach {
			continue
		}
		breaches = append(breaches, *result)

		if t.notifier == nil {
			continue
		}
		if t.cooldown > 0 && !prev.LastTransition.IsZero() && time.Since(prev.LastTransition) < t.cooldown {
			t.logger.Info().Str("alert_id", result.Identity).Msg("notification suppressed by cooldown")
			continue
		}
		if err := t.notifier.Notify(ctx, *result); err != nil {
			t.logger.Error().Err(err).Str("alert_id", result.Identity).Msg("failed to dispatch alert")
		}
	}

	return breaches, nil
}
