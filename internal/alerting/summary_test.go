package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fed-monitor/internal/config"
	"fed-monitor/internal/metrics"
)

func summaryConfig() *config.Config {
	return &config.Config{
		Series: []config.SeriesDef{
			{Key: "effr", SeriesID: "EFFR", Label: "Effective Fed Funds Rate", Unit: "percent"},
			{Key: "walcl", SeriesID: "WALCL", Label: "Fed Balance Sheet", Unit: "usd_millions"},
			{Key: "rrp", SeriesID: "RRPONTSYD", Label: "Overnight Reverse Repo", Unit: "usd_billions"},
		},
	}
}

func TestSignificantChangesThresholdsByUnit(t *testing.T) {
	latest := map[string]metrics.Latest{
		"effr":  {Key: "effr", Value: 5.33, Stats: map[string]float64{"d1": 0.5}},
		"walcl": {Key: "walcl", Value: 7700000, Stats: map[string]float64{"d1": -25000}},
		"rrp":   {Key: "rrp", Value: 400, Stats: map[string]float64{"d1": 5}},
	}

	changes := SignificantChanges(summaryConfig(), latest)

	// 0.5 is below the 2-point rate threshold and $5B is below the $10B
	// threshold; only the $25B balance sheet drop is significant.
	assert.Len(t, changes, 1)
	assert.Equal(t, "walcl", changes[0].Key)
}

func TestFormatDailySummary(t *testing.T) {
	cfg := summaryConfig()
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	msg := FormatDailySummary(cfg, []SignificantChange{
		{Key: "walcl", Value: 7700000, D1: -25000},
	}, now)

	assert.Contains(t, msg, "Daily Summary")
	assert.Contains(t, msg, "2026-08-25")
	assert.Contains(t, msg, "Fed Balance Sheet")
	assert.Contains(t, msg, "-25000")
}

func TestFormatDailySummaryQuietDay(t *testing.T) {
	msg := FormatDailySummary(summaryConfig(), nil, time.Now())
	assert.Contains(t, msg, "No significant changes")
}
