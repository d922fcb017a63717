// Package metrics builds the wide, date-indexed panel of raw series, derived
// indicators, and change/rolling statistics for one evaluation pass. Missing values
// are represented as NaN; every function here is pure, so recomputing on unchanged
// input yields bit-identical results.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"fed-monitor/internal/storage"
)

// Panel is an in-memory wide table: ordered dates down, named columns across.
type Panel struct {
	dates []time.Time
	order []string
	cols  map[string][]float64
}

// NewPanel creates an empty panel over the given date axis.
func NewPanel(dates []time.Time) *Panel {
	return &Panel{dates: dates, cols: make(map[string][]float64)}
}

// Empty reports whether the panel has no rows.
func (p *Panel) Empty() bool {
	return len(p.dates) == 0
}

// NumRows returns the number of dates.
func (p *Panel) NumRows() int {
	return len(p.dates)
}

// Dates returns the panel's date axis.
func (p *Panel) Dates() []time.Time {
	return p.dates
}

// Date returns the date at row i.
func (p *Panel) Date(i int) time.Time {
	return p.dates[i]
}

// Columns returns column names in insertion order.
func (p *Panel) Columns() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// HasColumn reports whether a column exists.
func (p *Panel) HasColumn(name string) bool {
	_, ok := p.cols[name]
	return ok
}

// Column returns the values of a column, or nil if absent.
func (p *Panel) Column(name string) []float64 {
	return p.cols[name]
}

// Value returns the value at (name, row i); NaN if the column is absent.
func (p *Panel) Value(name string, i int) float64 {
	col, ok := p.cols[name]
	if !ok {
		return math.NaN()
	}
	return col[i]
}

// AddColumn appends a named column. The column length must match the date axis.
func (p *Panel) AddColumn(name string, values []float64) error {
	if len(values) != len(p.dates) {
		return fmt.Errorf("column %s: %d values for %d rows", name, len(values), len(p.dates))
	}
	if _, exists := p.cols[name]; exists {
		return fmt.Errorf("column %s already present", name)
	}
	p.cols[name] = values
	p.order = append(p.order, name)
	return nil
}

// LastValidRow returns the index of the most recent row where the column has a
// value, or -1 when the column is absent or entirely empty.
func (p *Panel) LastValidRow(name string) int {
	col, ok := p.cols[name]
	if !ok {
		return -1
	}
	for i := len(col) - 1; i >= 0; i-- {
		if !math.IsNaN(col[i]) {
			return i
		}
	}
	return -1
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// BuildPanel assembles a panel from per-series observations, merging on the outer
// union of dates. Column order follows keys; a series with no observations
// contributes no column.
//
// With forwardFill enabled the date axis is resampled to a contiguous daily
// calendar between the first and last observed date and every column's gaps are
// filled with the most recent prior value, so that series with different native
// frequencies line up. With it disabled, only dates with at least one real
// observation are retained and columns keep their native gaps, which is the view
// used for plotting.
func BuildPanel(keys []string, series map[string][]storage.Observation, forwardFill bool) *Panel {
	dateSet := make(map[time.Time]bool)
	for _, key := range keys {
		for _, obs := range series[key] {
			dateSet[dateOnly(obs.Date)] = true
		}
	}
	if len(dateSet) == 0 {
		return NewPanel(nil)
	}

	observed := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		observed = append(observed, d)
	}
	sort.Slice(observed, func(i, j int) bool { return observed[i].Before(observed[j]) })

	var dates []time.Time
	if forwardFill {
		for d := observed[0]; !d.After(observed[len(observed)-1]); d = d.AddDate(0, 0, 1) {
			dates = append(dates, d)
		}
	} else {
		dates = observed
	}

	rowFor := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		rowFor[d] = i
	}

	panel := NewPanel(dates)
	for _, key := range keys {
		obs := series[key]
		if len(obs) == 0 {
			continue
		}

		col := make([]float64, len(dates))
		for i := range col {
			col[i] = math.NaN()
		}
		for _, o := range obs {
			if i, ok := rowFor[dateOnly(o.Date)]; ok {
				col[i] = o.Value
			}
		}

		if forwardFill {
			last := math.NaN()
			for i := range col {
				if math.IsNaN(col[i]) {
					col[i] = last
				} else {
					last = col[i]
				}
			}
		}

		// Column names are unique per config validation.
		_ = panel.AddColumn(key, col)
	}

	return panel
}
