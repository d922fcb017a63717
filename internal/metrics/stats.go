package metrics

import (
	"math"

	"fed-monitor/internal/config"
)

// Diff returns value[i] - value[i-periods]. The first periods rows, and any row
// where either endpoint is missing, are NaN.
func Diff(values []float64, periods int) []float64 {
	out := nanSlice(len(values))
	for i := periods; i < len(values); i++ {
		a, b := values[i], values[i-periods]
		if math.IsNaN(a) || math.IsNaN(b) {
			continue
		}
		out[i] = a - b
	}
	return out
}

// PctChange returns the percent change over periods rows, scaled by 100. NaN when
// either endpoint is missing or the denominator is zero.
func PctChange(values []float64, periods int) []float64 {
	out := nanSlice(len(values))
	for i := periods; i < len(values); i++ {
		a, b := values[i], values[i-periods]
		if math.IsNaN(a) || math.IsNaN(b) || b == 0 {
			continue
		}
		out[i] = (a - b) / b * 100
	}
	return out
}

// RollingMean returns the arithmetic mean over the trailing window rows. NaN until
// window rows of history exist or when any value in the window is missing.
func RollingMean(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		sum, ok := windowSum(values, i, window)
		if !ok {
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}

// RollingStd returns the sample standard deviation over the trailing window rows,
// with the same availability rule as RollingMean. A window below two rows has no
// sample deviation and yields NaN everywhere.
func RollingStd(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window < 2 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		sum, ok := windowSum(values, i, window)
		if !ok {
			continue
		}
		mean := sum / float64(window)
		var sq float64
		for j := i - window + 1; j <= i; j++ {
			d := values[j] - mean
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(window-1))
	}
	return out
}

// ZScore returns (value - rolling mean) / rolling std over the same window. A zero
// standard deviation yields NaN, never a division artifact.
func ZScore(values []float64, window int) []float64 {
	means := RollingMean(values, window)
	stds := RollingStd(values, window)
	out := nanSlice(len(values))
	for i := range values {
		if math.IsNaN(values[i]) || math.IsNaN(means[i]) || math.IsNaN(stds[i]) || stds[i] == 0 {
			continue
		}
		out[i] = (values[i] - means[i]) / stds[i]
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func windowSum(values []float64, end, window int) (float64, bool) {
	var sum float64
	for j := end - window + 1; j <= end; j++ {
		if math.IsNaN(values[j]) {
			return 0, false
		}
		sum += values[j]
	}
	return sum, true
}

// StatColumn joins a base column name with a statistic suffix.
func StatColumn(base, statName string) string {
	return base + "_" + statName
}

// ApplyStats appends one `{base}_{name}` column per configured change and rolling
// statistic, for every column currently in the panel (raw and derived alike).
func ApplyStats(p *Panel, changes []config.ChangeDef, rolling []config.RollingDef) {
	if p.Empty() {
		return
	}

	bases := p.Columns()
	for _, base := range bases {
		values := p.Column(base)

		for _, ch := range changes {
			var col []float64
			switch ch.Kind {
			case config.ChangeDiff:
				col = Diff(values, ch.Periods)
			case config.ChangePct:
				col = PctChange(values, ch.Periods)
			default:
				continue
			}
			_ = p.AddColumn(StatColumn(base, ch.Name), col)
		}

		for _, r := range rolling {
			var col []float64
			switch r.Kind {
			case config.RollingMean:
				col = RollingMean(values, r.Window)
			case config.RollingStd:
				col = RollingStd(values, r.Window)
			case config.RollingZ:
				col = ZScore(values, r.Window)
			default:
				continue
			}
			_ = p.AddColumn(StatColumn(base, r.Name), col)
		}
	}
}
