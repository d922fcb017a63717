package alerting

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"fed-monitor/internal/config"
	"fed-monitor/internal/metrics"
)

// SignificantChange is one metric whose one-day move cleared its unit threshold.
type SignificantChange struct {
	Key   string
	Value float64
	D1    float64
}

// SignificantChanges filters the latest values down to metrics whose d1 change is
// large for their unit. Thresholds: 2bp for rate series, $10B for balance-sheet
// series, 0.01 for ratios.
func SignificantChanges(cfg *config.Config, latest map[string]metrics.Latest) []SignificantChange {
	out := make([]SignificantChange, 0)
	for _, key := range cfg.MetricKeys() {
		entry, ok := latest[key]
		if !ok {
			continue
		}
		d1, ok := entry.Stats["d1"]
		if !ok || math.IsNaN(d1) {
			continue
		}

		var significant bool
		switch cfg.UnitFor(key) {
		case "percent", "bps":
			significant = math.Abs(d1) > 2
		case "usd_billions":
			significant = math.Abs(d1) > 10
		case "usd_millions":
			significant = math.Abs(d1) > 10000
		case "ratio":
			significant = math.Abs(d1) > 0.01
		}
		if significant {
			out = append(out, SignificantChange{Key: key, Value: entry.Value, D1: d1})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// FormatDailySummary renders the daily summary as a markdown message.
func FormatDailySummary(cfg *config.Config, changes []SignificantChange, now time.Time) string {
	lines := []string{
		"\U0001F4CA *Fed Monitor Daily Summary*",
		fmt.Sprintf("*Date:* %s", now.UTC().Format("2006-01-02")),
		"",
	}

	if len(changes) == 0 {
		lines = append(lines, "_No significant changes today._")
	} else {
		lines = append(lines, "*Significant Changes:*")
		for _, c := range changes {
			label := cfg.LabelFor(c.Key)
			unit := cfg.UnitFor(c.Key)
			lines = append(lines, fmt.Sprintf("- %s: %s (%s)", label, formatValue(c.Value, unit), formatChange(c.D1, unit)))
		}
	}

	return strings.Join(lines, "\n")
}
