package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fed-monitor/internal/config"
	"fed-monitor/internal/storage"
)

// memStateStore mirrors the repository contract: the previous state defaults to OK
// for an unseen alert, and changed reports whether the stored state differs.
type memStateStore struct {
	states      map[string]storage.AlertState
	transitions []storage.TransitionLogEntry
	failSet     bool
}

func newMemStateStore() *memStateStore {
	return &memStateStore{states: make(map[string]storage.AlertState)}
}

func (m *memStateStore) SetAlertState(_ context.Context, alertID, state string, value *float64) (storage.AlertState, bool, error) {
	if m.failSet {
		return storage.AlertState{}, false, errors.New("connection reset")
	}
	prev, ok := m.states[alertID]
	if !ok {
		prev = storage.AlertState{AlertID: alertID, State: storage.StateOK}
	}
	changed := prev.State != state

	next := prev
	next.State = state
	next.LastValue = value
	next.UpdatedAt = time.Now().UTC()
	if changed {
		next.LastTransition = next.UpdatedAt
	}
	m.states[alertID] = next
	return prev, changed, nil
}

func (m *memStateStore) AppendTransitionLog(_ context.Context, entry storage.TransitionLogEntry) error {
	m.transitions = append(m.transitions, entry)
	return nil
}

type recordingNotifier struct {
	sent []Result
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, result Result) error {
	r.sent = append(r.sent, result)
	return r.err
}

func triggeredResult(triggered bool) Result {
	return Result{
		Identity:  "effr:warning:deadbeef",
		Key:       "effr",
		Severity:  config.SeverityWarning,
		Triggered: triggered,
		Value:     5.33,
	}
}

func TestTrackerNotifiesOncePerBreach(t *testing.T) {
	store := newMemStateStore()
	notifier := &recordingNotifier{}
	tracker := NewTracker(store, notifier, 0, zerolog.Nop())
	ctx := context.Background()

	// ok -> breach -> breach -> ok: one notification, two logged transitions.
	for _, triggered := range []bool{false, true, true, false} {
		_, err := tracker.Process(ctx, []Result{triggeredResult(triggered)}, nil)
		require.NoError(t, err)
	}

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "effr:warning:deadbeef", notifier.sent[0].Identity)
	assert.Equal(t, storage.StateOK, notifier.sent[0].PreviousState)

	require.Len(t, store.transitions, 2)
	assert.Equal(t, storage.StateBreach, store.transitions[0].StateTo)
	assert.Equal(t, storage.StateOK, store.transitions[1].StateTo)
}

func TestTrackerFirstPassBreachNotifies(t *testing.T) {
	store := newMemStateStore()
	notifier := &recordingNotifier{}
	tracker := NewTracker(store, notifier, 0, zerolog.Nop())

	// An alert that is already breaching on its very first evaluation counts as an
	// OK -> BREACH transition.
	breaches, err := tracker.Process(context.Background(), []Result{triggeredResult(true)}, nil)
	require.NoError(t, err)

	require.Len(t, breaches, 1)
	assert.True(t, breaches[0].StateChanged)
	assert.Len(t, notifier.sent, 1)
}

func TestTrackerRecoveryIsLoggedNotNotified(t *testing.T) {
	store := newMemStateStore()
	notifier := &recordingNotifier{}
	tracker := NewTracker(store, notifier, 0, zerolog.Nop())
	ctx := context.Background()

	_, err := tracker.Process(ctx, []Result{triggeredResult(true)}, nil)
	require.NoError(t, err)
	breaches, err := tracker.Process(ctx, []Result{triggeredResult(false)}, nil)
	require.NoError(t, err)

	assert.Empty(t, breaches)
	assert.Len(t, notifier.sent, 1)
	require.Len(t, store.transitions, 2)
	assert.Equal(t, storage.StateOK, store.transitions[1].StateTo)
}

func TestTrackerSeverityFilterSkipsEntirely(t *testing.T) {
	store := newMemStateStore()
	notifier := &recordingNotifier{}
	tracker := NewTracker(store, notifier, 0, zerolog.Nop())

	result := triggeredResult(true)
	result.Severity = config.SeverityInfo

	breaches, err := tracker.Process(context.Background(), []Result{result}, []string{config.SeverityCritical, config.SeverityWarning})
	require.NoError(t, err)

	// Filtered results never touch persisted state.
	assert.Empty(t, breaches)
	assert.Empty(t, store.states)
	assert.Empty(t, notifier.sent)
}

func TestTrackerCooldownSuppressesNotificationOnly(t *testing.T) {
	store := newMemStateStore()
	notifier := &recordingNotifier{}
	tracker := NewTracker(store, notifier, time.Hour, zerolog.Nop())
	ctx := context.Background()

	for _, triggered := range []bool{true, false, true} {
		_, err := tracker.Process(ctx, []Result{triggeredResult(triggered)}, nil)
		require.NoError(t, err)
	}

	// The second breach lands inside the cooldown window: logged but not sent.
	assert.Len(t, notifier.sent, 1)
	assert.Len(t, store.transitions, 3)
	assert.Equal(t, storage.StateBreach, store.states["effr:warning:deadbeef"].State)
}

func TestTrackerStoreFailureAbortsPass(t *testing.T) {
	store := newMemStateStore()
	store.failSet = true
	tracker := NewTracker(store, nil, 0, zerolog.Nop())

	_, err := tracker.Process(context.Background(), []Result{triggeredResult(true)}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist alert state")
}

func TestTrackerNotifierFailureDoesNotAbort(t *testing.T) {
	store := newMemStateStore()
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	tracker := NewTracker(store, notifier, 0, zerolog.Nop())

	breaches, err := tracker.Process(context.Background(), []Result{triggeredResult(true)}, nil)
	require.NoError(t, err)
	assert.Len(t, breaches, 1)
	assert.Equal(t, storage.StateBreach, store.states["effr:warning:deadbeef"].State)
}

func TestTrackerNilNotifier(t *testing.T) {
	store := newMemStateStore()
	tracker := NewTracker(store, nil, 0, zerolog.Nop())

	breaches, err := tracker.Process(context.Background(), []Result{triggeredResult(true)}, nil)
	require.NoError(t, err)
	assert.Len(t, breaches, 1)
}
