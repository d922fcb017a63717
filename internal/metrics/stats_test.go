package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fed-monitor/internal/config"
)

func assertNaN(t *testing.T, v float64) {
	t.Helper()
	assert.True(t, math.IsNaN(v), "expected NaN, got %v", v)
}

func TestDiff(t *testing.T) {
	out := Diff([]float64{1, 2, 4, math.NaN(), 7}, 1)

	assertNaN(t, out[0])
	assert.Equal(t, 1.0, out[1])
	assert.Equal(t, 2.0, out[2])
	assertNaN(t, out[3])
	assertNaN(t, out[4]) // previous endpoint missing
}

func TestDiffMultiPeriod(t *testing.T) {
	out := Diff([]float64{10, 11, 13, 16}, 2)

	assertNaN(t, out[0])
	assertNaN(t, out[1])
	assert.Equal(t, 3.0, out[2])
	assert.Equal(t, 5.0, out[3])
}

func TestPctChange(t *testing.T) {
	out := PctChange([]float64{100, 110, 99}, 1)

	assertNaN(t, out[0])
	assert.InDelta(t, 10.0, out[1], 1e-9)
	assert.InDelta(t, -10.0, out[2], 1e-9)
}

func TestPctChangeZeroDenominator(t *testing.T) {
	out := PctChange([]float64{0, 5}, 1)
	assertNaN(t, out[1])
}

func TestRollingMeanRequiresFullWindow(t *testing.T) {
	out := RollingMean([]float64{1, 2, 3, 4}, 3)

	assertNaN(t, out[0])
	assertNaN(t, out[1])
	assert.InDelta(t, 2.0, out[2], 1e-9)
	assert.InDelta(t, 3.0, out[3], 1e-9)
}

func TestRollingMeanGapPoisonsWindow(t *testing.T) {
	out := RollingMean([]float64{1, math.NaN(), 3, 4, 5}, 3)

	assertNaN(t, out[2])
	assertNaN(t, out[3])
	assert.InDelta(t, 4.0, out[4], 1e-9)
}

func TestRollingStdIsSampleDeviation(t *testing.T) {
	out := RollingStd([]float64{1, 2, 3}, 3)
	assert.InDelta(t, 1.0, out[2], 1e-9)
}

func TestRollingStdWindowBelowTwo(t *testing.T) {
	out := RollingStd([]float64{1, 2, 3}, 1)
	for _, v := range out {
		assertNaN(t, v)
	}
}

func TestZScore(t *testing.T) {
	out := ZScore([]float64{1, 2, 3, 6}, 3)

	assertNaN(t, out[0])
	assertNaN(t, out[1])
	assert.InDelta(t, 1.0, out[2], 1e-9)
	// mean(2,3,6)=11/3, std=sqrt(13/3)
	assert.InDelta(t, (6.0-11.0/3.0)/math.Sqrt(13.0/3.0), out[3], 1e-9)
}

func TestZScoreZeroVariance(t *testing.T) {
	out := ZScore([]float64{5, 5, 5, 5}, 3)
	for _, v := range out {
		assertNaN(t, v)
	}
}

func TestApplyStatsNamesColumnsPerMetric(t *testing.T) {
	dates := []time.Time{day("2026-01-05"), day("2026-01-06"), day("2026-01-07")}
	p := NewPanel(dates)
	require.NoError(t, p.AddColumn("effr", []float64{5.30, 5.31, 5.33}))
	require.NoError(t, p.AddColumn("iorb", []float64{5.40, 5.40, 5.40}))

	ApplyStats(p,
		[]config.ChangeDef{{Name: "d1", Kind: config.ChangeDiff, Periods: 1}},
		[]config.RollingDef{{Name: "ma3", Kind: config.RollingMean, Window: 3}},
	)

	for _, col := range []string{"effr_d1", "effr_ma3", "iorb_d1", "iorb_ma3"} {
		assert.True(t, p.HasColumn(col), "missing column %s", col)
	}
	assert.InDelta(t, 0.02, p.Value("effr_d1", 2), 1e-9)
	assert.InDelta(t, 5.40, p.Value("iorb_ma3", 2), 1e-9)
}

func TestApplyStatsIgnoresUnknownKinds(t *testing.T) {
	p := NewPanel([]time.Time{day("2026-01-05")})
	require.NoError(t, p.AddColumn("effr", []float64{5.33}))

	ApplyStats(p, []config.ChangeDef{{Name: "bad", Kind: "median"}}, nil)
	assert.False(t, p.HasColumn("effr_bad"))
}
