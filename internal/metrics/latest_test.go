package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestForValueAtTrueLatestDate(t *testing.T) {
	dates := []time.Time{day("2026-01-05"), day("2026-01-06"), day("2026-01-07")}
	p := NewPanel(dates)
	require.NoError(t, p.AddColumn("effr", []float64{5.30, 5.31, 5.33}))
	require.NoError(t, p.AddColumn("effr_d1", []float64{math.NaN(), 0.01, 0.02}))

	latest, ok := LatestFor(p, "effr", []string{"d1"})
	require.True(t, ok)
	assert.Equal(t, day("2026-01-07"), latest.Date)
	assert.Equal(t, 5.33, latest.Value)
	assert.InDelta(t, 0.02, latest.Stats["d1"], 1e-9)
}

func TestLatestForStatFallsBackToLastComputable(t *testing.T) {
	dates := []time.Time{day("2026-01-05"), day("2026-01-06"), day("2026-01-07")}
	p := NewPanel(dates)
	require.NoError(t, p.AddColumn("wal", []float64{7700.5, 7700.5, 7701.0}))
	// Weekly series: d5 only computable two rows back.
	require.NoError(t, p.AddColumn("wal_d5", []float64{-3.2, math.NaN(), math.NaN()}))

	latest, ok := LatestFor(p, "wal", []string{"d5"})
	require.True(t, ok)
	assert.Equal(t, 7701.0, latest.Value)
	assert.InDelta(t, -3.2, latest.Stats["d5"], 1e-9)
}

func TestLatestForOmitsAbsentStats(t *testing.T) {
	dates := []time.Time{day("2026-01-05")}
	p := NewPanel(dates)
	require.NoError(t, p.AddColumn("effr", []float64{5.33}))

	latest, ok := LatestFor(p, "effr", []string{"d1", "zscore20"})
	require.True(t, ok)
	assert.Empty(t, latest.Stats)
}

func TestLatestForNoData(t *testing.T) {
	dates := []time.Time{day("2026-01-05")}
	p := NewPanel(dates)
	require.NoError(t, p.AddColumn("effr", []float64{math.NaN()}))

	_, ok := LatestFor(p, "effr", nil)
	assert.False(t, ok)

	_, ok = LatestFor(p, "missing", nil)
	assert.False(t, ok)
}

func TestLatestAll(t *testing.T) {
	dates := []time.Time{day("2026-01-05")}
	p := NewPanel(dates)
	require.NoError(t, p.AddColumn("effr", []float64{5.33}))

	out := LatestAll(p, []string{"effr", "missing"}, nil)
	require.Len(t, out, 1)
	assert.Equal(t, 5.33, out["effr"].Value)
}
