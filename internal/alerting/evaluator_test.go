package alerting

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fed-monitor/internal/config"
	"fed-monitor/internal/metrics"
	"fed-monitor/internal/storage"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func evalPanel(t *testing.T) *metrics.Panel {
	t.Helper()
	series := map[string][]storage.Observation{
		"effr": {
			{Date: day("2026-01-05"), Value: 5.30},
			{Date: day("2026-01-06"), Value: 5.31},
			{Date: day("2026-01-07"), Value: 5.33},
		},
	}
	p := metrics.BuildPanel([]string{"effr"}, series, true)
	metrics.ApplyStats(p, []config.ChangeDef{{Name: "d1", Kind: config.ChangeDiff, Periods: 1}}, nil)
	return p
}

func TestIdentityStableAcrossRuns(t *testing.T) {
	def := config.AlertRuleDef{Key: "effr", Rule: "value > 5.32", Severity: config.SeverityWarning}

	first := Identity(def)
	second := Identity(def)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "effr:warning:")
}

func TestIdentityChangesWithRuleText(t *testing.T) {
	a := Identity(config.AlertRuleDef{Key: "effr", Rule: "value > 5.32", Severity: config.SeverityWarning})
	b := Identity(config.AlertRuleDef{Key: "effr", Rule: "value > 5.35", Severity: config.SeverityWarning})
	assert.NotEqual(t, a, b)
}

func TestEvaluateTriggersOnLatestValue(t *testing.T) {
	e := NewEvaluator([]string{"d1"}, zerolog.Nop())
	def := config.AlertRuleDef{Key: "effr", Rule: "value > 5.32", Severity: config.SeverityWarning}

	result := e.Evaluate(def, evalPanel(t))

	assert.True(t, result.Triggered)
	assert.InDelta(t, 5.33, result.Value, 1e-9)
	assert.InDelta(t, 0.02, result.Context["d1"], 1e-9)
	assert.False(t, result.NoData)
}

func TestEvaluateNotTriggered(t *testing.T) {
	e := NewEvaluator([]string{"d1"}, zerolog.Nop())
	def := config.AlertRuleDef{Key: "effr", Rule: "value > 6", Severity: config.SeverityCritical}

	result := e.Evaluate(def, evalPanel(t))
	assert.False(t, result.Triggered)
	assert.InDelta(t, 5.33, result.Value, 1e-9)
}

func TestEvaluateMissingStatisticIsSilent(t *testing.T) {
	e := NewEvaluator([]string{"d1", "zscore20"}, zerolog.Nop())
	def := config.AlertRuleDef{Key: "effr", Rule: "zscore20 > 2", Severity: config.SeverityWarning}

	// zscore20 was never computed for this panel, so the rule quietly stays off.
	result := e.Evaluate(def, evalPanel(t))
	assert.False(t, result.Triggered)
	assert.False(t, result.NoData)
}

func TestEvaluateNoData(t *testing.T) {
	e := NewEvaluator(nil, zerolog.Nop())
	def := config.AlertRuleDef{Key: "sofr", Rule: "value > 1", Severity: config.SeverityInfo}

	result := e.Evaluate(def, evalPanel(t))
	assert.True(t, result.NoData)
	assert.False(t, result.Triggered)
	assert.True(t, math.IsNaN(result.Value))
}

func TestEvaluateInvalidRuleNeverAbortsPass(t *testing.T) {
	e := NewEvaluator(nil, zerolog.Nop())
	defs := []config.AlertRuleDef{
		{Key: "effr", Rule: "value >", Severity: config.SeverityWarning},
		{Key: "effr", Rule: "value > 5.32", Severity: config.SeverityWarning},
	}

	results := e.EvaluateAll(defs, evalPanel(t))
	require.Len(t, results, 2)
	assert.False(t, results[0].Triggered)
	assert.True(t, results[1].Triggered)
}

func TestEvaluateSpreadScenario(t *testing.T) {
	series := map[string][]storage.Observation{
		"effr": {
			{Date: day("2026-01-05"), Value: 5.30},
			{Date: day("2026-01-06"), Value: 5.31},
			{Date: day("2026-01-07"), Value: 5.33},
		},
		"iorb": {
			{Date: day("2026-01-05"), Value: 5.40},
			{Date: day("2026-01-06"), Value: 5.40},
			{Date: day("2026-01-07"), Value: 5.40},
		},
	}
	defs := []config.DerivedDef{{Key: "effr_iorb_spread", Expr: "(effr - iorb) * 100"}}
	rule := config.AlertRuleDef{Key: "effr_iorb_spread", Rule: "value > -8", Severity: config.SeverityCritical}
	e := NewEvaluator(nil, zerolog.Nop())

	// Panels truncated at each date: spread runs -10, -9, -7; the rule crosses only
	// on the last day.
	for i, want := range []bool{false, false, true} {
		cutoff := series["effr"][i].Date
		truncated := map[string][]storage.Observation{
			"effr": series["effr"][:i+1],
			"iorb": series["iorb"][:i+1],
		}
		p := metrics.BuildPanel([]string{"effr", "iorb"}, truncated, true)
		metrics.ApplyDerived(p, defs, zerolog.Nop())

		result := e.Evaluate(rule, p)
		assert.Equal(t, want, result.Triggered, "at %s", cutoff.Format("2006-01-02"))
	}

	p := metrics.BuildPanel([]string{"effr", "iorb"}, series, true)
	metrics.ApplyDerived(p, defs, zerolog.Nop())
	result := e.Evaluate(rule, p)
	assert.InDelta(t, -7.0, result.Value, 1e-9)
}

func TestBuildContextNil(t *testing.T) {
	assert.Nil(t, BuildContext(metrics.NewPanel(nil), "effr", nil))
}
