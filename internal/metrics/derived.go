package metrics

import (
	"math"

	"github.com/rs/zerolog"

	"fed-monitor/internal/config"
	"fed-monitor/internal/rules"
)

// ApplyDerived evaluates every derived-metric expression against the panel and
// appends the result under the definition's key.
//
// All expressions are bound against the same raw-only column snapshot taken before
// any derived column is appended, so evaluation order across definitions cannot
// influence results. A definition that fails to compile, or that references a
// column absent from the snapshot, produces an all-NaN column and is logged; a
// row-local arithmetic failure (missing operand, division by zero) yields NaN for
// that row only. One bad definition never blocks the rest.
func ApplyDerived(p *Panel, defs []config.DerivedDef, logger zerolog.Logger) {
	if p.Empty() {
		return
	}

	rawCols := p.Columns()
	rawValues := make(map[string][]float64, len(rawCols))
	for _, name := range rawCols {
		rawValues[name] = p.Column(name)
	}

	for _, def := range defs {
		prog, err := rules.Compile(def.Expr, rawCols)
		if err != nil {
			logger.Warn().Err(err).Str("metric", def.Key).Msg("derived metric expression invalid")
			_ = p.AddColumn(def.Key, nanSlice(p.NumRows()))
			continue
		}

		col := nanSlice(p.NumRows())
		vars := make(map[string]float64, len(rawCols))
		for i := 0; i < p.NumRows(); i++ {
			for name, values := range rawValues {
				if math.IsNaN(values[i]) {
					delete(vars, name)
					continue
				}
				vars[name] = values[i]
			}
			v, evalErr := prog.Eval(vars)
			if evalErr != nil {
				continue
			}
			col[i] = v
		}

		if err := p.AddColumn(def.Key, col); err != nil {
			logger.Warn().Err(err).Str("metric", def.Key).Msg("derived metric column rejected")
		}
	}
}
