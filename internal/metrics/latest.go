package metrics

import (
	"math"
	"time"
)

// Latest carries the most recent available values for one metric key.
type Latest struct {
	Key   string
	Date  time.Time
	Value float64
	Stats map[string]float64
}

// LatestFor locates the metric's last row with a value and collects its statistics.
// The value itself is always taken at that latest date; each statistic is read at
// the same date when available, otherwise it degrades to the most recent computable
// figure anywhere in that statistic's column. Returns false when the metric has no
// data at all.
func LatestFor(p *Panel, key string, statNames []string) (Latest, bool) {
	row := p.LastValidRow(key)
	if row < 0 {
		return Latest{}, false
	}

	latest := Latest{
		Key:   key,
		Date:  p.Date(row),
		Value: p.Value(key, row),
		Stats: make(map[string]float64, len(statNames)),
	}

	for _, name := range statNames {
		col := StatColumn(key, name)
		if !p.HasColumn(col) {
			continue
		}
		if v := p.Value(col, row); !math.IsNaN(v) {
			latest.Stats[name] = v
			continue
		}
		if fallback := p.LastValidRow(col); fallback >= 0 {
			latest.Stats[name] = p.Value(col, fallback)
		}
	}

	return latest, true
}

// LatestAll collects Latest entries for every requested key that has data.
func LatestAll(p *Panel, keys []string, statNames []string) map[string]Latest {
	out := make(map[string]Latest, len(keys))
	for _, key := range keys {
		if latest, ok := LatestFor(p, key, statNames); ok {
			out[key] = latest
		}
	}
	return out
}
