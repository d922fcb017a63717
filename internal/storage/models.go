package storage

import "time"

// Alert states tracked per alert identity.
const (
	StateOK     = "ok"
	StateBreach = "breach"
)

// Observation is one raw value for a series on a date.
type Observation struct {
	Date  time.Time
	Value float64
}

// AlertState is the persisted breach status of one alert identity.
type AlertState struct {
	AlertID        string
	State          string
	LastValue      *float64
	LastTransition time.Time
	UpdatedAt      time.Time
}

// TransitionLogEntry records one alert state change. Append only.
type TransitionLogEntry struct {
	AlertID     string
	Severity    string
	StateFrom   string
	StateTo     string
	Value       *float64
	Note        string
	TriggeredAt time.Time
}

// FetchLogEntry records one upstream fetch attempt.
type FetchLogEntry struct {
	SeriesKey   string
	Status      string
	RowsFetched int
	Error       string
	FetchedAt   time.Time
}
