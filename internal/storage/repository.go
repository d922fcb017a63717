package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertObservationSQL = `INSERT INTO observations (series_key, date, value)
    VALUES ($1, $2, $3)
    ON CONFLICT (series_key, date) DO UPDATE
    SET value = EXCLUDED.value,
        created_at = now();`

	listObservationsSQL = `SELECT date, value FROM observations
    WHERE series_key = $1
      AND ($2::date IS NULL OR date >= $2)
      AND ($3::date IS NULL OR date <= $3)
    ORDER BY date;`

	latestObservationSQL = `SELECT date, value FROM observations
    WHERE series_key = $1
    ORDER BY date DESC
    LIMIT 1;`

	countObservationsSQL = `SELECT COUNT(*) FROM observations WHERE series_key = $1;`

	upsertDerivedSQL = `INSERT INTO derived_metrics (metric_key, date, value)
    VALUES ($1, $2, $3)
    ON CONFLICT (metric_key, date) DO UPDATE
    SET value = EXCLUDED.value,
        created_at = now();`

	selectAlertStateSQL = `SELECT alert_id, state, last_value, last_transition_time, updated_at
    FROM alert_state
    WHERE alert_id = $1;`

	lockAlertStateSQL = `SELECT state, last_value, last_transition_time
    FROM alert_state
    WHERE alert_id = $1
    FOR UPDATE;`

	updateAlertStateSQL = `UPDATE alert_state
    SET state = $2,
        last_value = $3,
        updated_at = now(),
        last_transition_time = CASE WHEN $4 THEN now() ELSE last_transition_time END
    WHERE alert_id = $1;`

	insertAlertStateSQL = `INSERT INTO alert_state (alert_id, state, last_value, last_transition_time, updated_at)
    VALUES ($1, $2, $3, now(), now());`

	insertTransitionSQL = `INSERT INTO alerts_log (alert_id, severity, state_from, state_to, value, note)
    VALUES ($1, $2, $3, $4, $5, $6);`

	listTransitionsSQL = `SELECT alert_id, severity, state_from, state_to, value, note, triggered_at
    FROM alerts_log
    ORDER BY triggered_at DESC
    LIMIT $1;`

	insertFetchLogSQL = `INSERT INTO fetch_log (series_key, status, rows_fetched, error_message)
    VALUES ($1, $2, $3, $4);`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ObservationStore defines persistence for raw series observations.
type ObservationStore interface {
	UpsertObservations(ctx context.Context, seriesKey string, points []Observation) (int64, error)
	ListObservations(ctx context.Context, seriesKey string, from, to *time.Time) ([]Observation, error)
	LatestObservation(ctx context.Context, seriesKey string) (Observation, bool, error)
}

// DerivedStore persists computed indicator values.
type DerivedStore interface {
	UpsertDerivedValues(ctx context.Context, metricKey string, points []Observation) (int64, error)
}

// AlertStateStore tracks per-alert OK/BREACH state and the transition log.
type AlertStateStore interface {
	GetAlertState(ctx context.Context, alertID string) (AlertState, bool, error)
	SetAlertState(ctx context.Context, alertID, state string, value *float64) (AlertState, bool, error)
	AppendTransitionLog(ctx context.Context, entry TransitionLogEntry) error
}

// FetchLogStore records upstream fetch attempts.
type FetchLogStore interface {
	LogFetch(ctx context.Context, seriesKey, status string, rows int, errMsg string) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to observations, derived metrics, and alert state.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertObservations writes a batch of observations for one series. Re-ingesting the
// same (series, date) overwrites the value, never duplicates the row.
func (s *Store) UpsertObservations(ctx context.Context, seriesKey string, points []Observation) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(upsertObservationSQL, seriesKey, p.Date, p.Value)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	var written int64
	for range points {
		if _, execErr := results.Exec(); execErr != nil {
			return written, fmt.Errorf("upsert observations for %s: %w", seriesKey, execErr)
		}
		written++
	}
	return written, nil
}

// ListObservations returns observations for a series ordered by date, optionally
// bounded by an inclusive date range.
func (s *Store) ListObservations(ctx context.Context, seriesKey string, from, to *time.Time) ([]Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsSQL, seriesKey, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations for %s: %w", seriesKey, queryErr)
	}
	defer rows.Close()

	points := make([]Observation, 0)
	for rows.Next() {
		var p Observation
		if scanErr := rows.Scan(&p.Date, &p.Value); scanErr != nil {
			return nil, scanErr
		}
		points = append(points, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}

// LatestObservation returns the most recent observation for a series.
func (s *Store) LatestObservation(ctx context.Context, seriesKey string) (Observation, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return Observation{}, false, err
	}

	var p Observation
	scanErr := pool.QueryRow(ctx, latestObservationSQL, seriesKey).Scan(&p.Date, &p.Value)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return Observation{}, false, nil
	}
	if scanErr != nil {
		return Observation{}, false, fmt.Errorf("latest observation for %s: %w", seriesKey, scanErr)
	}
	return p, true, nil
}

// CountObservations counts stored observations for a series.
func (s *Store) CountObservations(ctx context.Context, seriesKey string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countObservationsSQL, seriesKey).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count observations: %w", scanErr)
	}
	return count, nil
}

// UpsertDerivedValues writes computed indicator values for one metric key.
func (s *Store) UpsertDerivedValues(ctx context.Context, metricKey string, points []Observation) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(upsertDerivedSQL, metricKey, p.Date, p.Value)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	var written int64
	for range points {
		if _, execErr := results.Exec(); execErr != nil {
			return written, fmt.Errorf("upsert derived values for %s: %w", metricKey, execErr)
		}
		written++
	}
	return written, nil
}

// GetAlertState reads the persisted state for one alert identity.
func (s *Store) GetAlertState(ctx context.Context, alertID string) (AlertState, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertState{}, false, err
	}

	var st AlertState
	scanErr := pool.QueryRow(ctx, selectAlertStateSQL, alertID).Scan(
		&st.AlertID, &st.State, &st.LastValue, &st.LastTransition, &st.UpdatedAt,
	)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return AlertState{}, false, nil
	}
	if scanErr != nil {
		return AlertState{}, false, fmt.Errorf("get alert state %s: %w", alertID, scanErr)
	}
	return st, true, nil
}

// SetAlertState writes the new state unconditionally and reports the previous state.
// The read-modify-write runs in a transaction with the row locked so that concurrent
// passes cannot lose a transition. Returns the previous state (default ok for a
// never-seen identity) and whether the state changed.
func (s *Store) SetAlertState(ctx context.Context, alertID, state string, value *float64) (AlertState, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertState{}, false, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return AlertState{}, false, fmt.Errorf("begin alert state tx: %w", err)
	}
	defer tx.Rollback(ctx)

	prev := AlertState{AlertID: alertID, State: StateOK}
	exists := true
	scanErr := tx.QueryRow(ctx, lockAlertStateSQL, alertID).Scan(&prev.State, &prev.LastValue, &prev.LastTransition)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		exists = false
	} else if scanErr != nil {
		return AlertState{}, false, fmt.Errorf("lock alert state %s: %w", alertID, scanErr)
	}

	changed := prev.State != state

	if exists {
		if _, execErr := tx.Exec(ctx, updateAlertStateSQL, alertID, state, value, changed); execErr != nil {
			return AlertState{}, false, fmt.Errorf("update alert state %s: %w", alertID, execErr)
		}
	} else {
		if _, execErr := tx.Exec(ctx, insertAlertStateSQL, alertID, state, value); execErr != nil {
			return AlertState{}, false, fmt.Errorf("insert alert state %s: %w", alertID, execErr)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return AlertState{}, false, fmt.Errorf("commit alert state %s: %w", alertID, err)
	}
	return prev, changed, nil
}

// AppendTransitionLog appends one state-change record.
func (s *Store) AppendTransitionLog(ctx context.Context, entry TransitionLogEntry) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, insertTransitionSQL,
		entry.AlertID, entry.Severity, entry.StateFrom, entry.StateTo, entry.Value, entry.Note,
	)
	if execErr != nil {
		return fmt.Errorf("append transition log: %w", execErr)
	}
	return nil
}

// ListRecentTransitions lists the most recent state changes.
func (s *Store) ListRecentTransitions(ctx context.Context, limit int) ([]TransitionLogEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTransitionsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list transitions: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]TransitionLogEntry, 0, limit)
	for rows.Next() {
		var e TransitionLogEntry
		if scanErr := rows.Scan(&e.AlertID, &e.Severity, &e.StateFrom, &e.StateTo, &e.Value, &e.Note, &e.TriggeredAt); scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// LogFetch records one fetch attempt against the upstream source.
func (s *Store) LogFetch(ctx context.Context, seriesKey, status string, rowsFetched int, errMsg string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	var errVal interface{}
	if errMsg != "" {
		errVal = errMsg
	}
	if _, execErr := pool.Exec(ctx, insertFetchLogSQL, seriesKey, status, rowsFetched, errVal); execErr != nil {
		return fmt.Errorf("log fetch: %w", execErr)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort: the lock is released anyway when the session ends.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}
