// Package alerting evaluates configured alert rules against the computed panel and
// tracks OK/BREACH state transitions so that notifications fire exactly once per
// transition.
package alerting

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"fed-monitor/internal/config"
	"fed-monitor/internal/metrics"
	"fed-monitor/internal/rules"
)

// Result is the outcome of evaluating one alert in one pass.
type Result struct {
	Identity      string
	Key           string
	Rule          string
	Severity      string
	Note          string
	Category      string
	Triggered     bool
	Value         float64 // NaN when the metric has no data
	Context       map[string]float64
	NoData        bool
	StateChanged  bool
	PreviousState string
}

// Identity derives the stable identifier used to track one alert's state across
// evaluation passes. It survives process restarts and configuration re-ordering,
// and changes when the rule text changes: a changed rule is a different alert.
func Identity(def config.AlertRuleDef) string {
	sum := sha256.Sum256([]byte(def.Rule))
	return fmt.Sprintf("%s:%s:%s", def.Key, def.Severity, hex.EncodeToString(sum[:4]))
}

// BuildContext maps rule variable names to the metric's most recent available
// values: "value" at the metric's true latest date, and each statistic at that date
// when computed there, falling back to the statistic's own most recent figure.
// Returns nil when the metric has no data at all.
func BuildContext(p *metrics.Panel, key string, statNames []string) map[string]float64 {
	latest, ok := metrics.LatestFor(p, key, statNames)
	if !ok {
		return nil
	}
	vars := make(map[string]float64, len(latest.Stats)+1)
	vars["value"] = latest.Value
	for name, v := range latest.Stats {
		vars[name] = v
	}
	return vars
}

// Evaluator evaluates alert definitions against a panel snapshot.
type Evaluator struct {
	statNames []string
	logger    zerolog.Logger
}

// NewEvaluator constructs an evaluator over the configured statistic names.
func NewEvaluator(statNames []string, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		statNames: statNames,
		logger:    logger.With().Str("component", "alert_evaluator").Logger(),
	}
}

// Evaluate runs one alert rule against the panel. A rule referencing a statistic
// that is unavailable for its metric yields triggered=false silently; any other
// evaluation failure is logged and also yields triggered=false. A broken rule never
// aborts the pass.
func (e *Evaluator) Evaluate(def config.AlertRuleDef, p *metrics.Panel) Result {
	result := Result{
		Identity: Identity(def),
		Key:      def.Key,
		Rule:     def.Rule,
		Severity: def.Severity,
		Note:     def.Note,
		Category: def.Category,
		Value:    math.NaN(),
	}

	vars := BuildContext(p, def.Key, e.statNames)
	if vars == nil {
		result.NoData = true
		return result
	}
	result.Context = vars
	result.Value = vars["value"]

	idents := append([]string{"value"}, e.statNames...)
	prog, err := rules.Compile(def.Rule, idents)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", def.Key).Msg("alert rule invalid")
		return result
	}

	triggered, err := prog.EvalBool(vars)
	if err != nil {
		// Missing statistics are expected for low-frequency series.
		if !errors.Is(err, rules.ErrMissingVar) {
			e.logger.Warn().Err(err).Str("key", def.Key).Str("rule", def.Rule).Msg("alert rule evaluation failed")
		}
		return result
	}

	result.Triggered = triggered
	return result
}

// EvaluateAll evaluates every definition against the same panel snapshot, so two
// alerts referencing the same metric never observe inconsistent data within a pass.
func (e *Evaluator) EvaluateAll(defs []config.AlertRuleDef, p *metrics.Panel) []Result {
	results := make([]Result, 0, len(defs))
	for _, def := range defs {
		results = append(results, e.Evaluate(def, p))
	}
	return results
}
