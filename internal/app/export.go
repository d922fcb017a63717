package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"fed-monitor/internal/config"
	"fed-monitor/internal/metrics"
)

// dashboardDoc is the JSON document consumed by the static dashboard.
type dashboardDoc struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Charts      []dashboardChart `json:"charts"`
	Tables      []dashboardTable `json:"tables"`
	Alerts      []dashboardAlert `json:"alerts"`
}

type dashboardChart struct {
	Title  string            `json:"title"`
	YLabel string            `json:"y_label,omitempty"`
	Series []dashboardSeries `json:"series"`
}

type dashboardSeries struct {
	Key    string           `json:"key"`
	Label  string           `json:"label"`
	Unit   string           `json:"unit,omitempty"`
	Points []dashboardPoint `json:"points"`
}

type dashboardPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type dashboardTable struct {
	Title   string               `json:"title"`
	Columns []string             `json:"columns"`
	Rows    []map[string]*string `json:"rows"`
}

type dashboardAlert struct {
	Key       string   `json:"key"`
	Severity  string   `json:"severity"`
	Rule      string   `json:"rule"`
	Note      string   `json:"note,omitempty"`
	Category  string   `json:"category,omitempty"`
	Triggered bool     `json:"triggered"`
	Value     *float64 `json:"value"`
}

// Export writes the dashboard JSON document, and optionally one PNG per configured
// chart, into the output directory.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = a.Config.Export.OutputDir
	}
	days := opts.Days
	if days <= 0 {
		days = a.Config.Export.Days
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := a.newService(store, false)

	from := time.Now().UTC().AddDate(0, 0, -days)

	// Charts use the sparse panel so plots keep each series' native observation
	// dates instead of forward-filled steps.
	sparse, err := svc.BuildPanel(ctx, &from, nil, false)
	if err != nil {
		return err
	}
	filled, err := svc.BuildPanel(ctx, nil, nil, true)
	if err != nil {
		return err
	}

	results, err := svc.EvaluateAlerts(ctx)
	if err != nil {
		return err
	}

	doc := dashboardDoc{
		GeneratedAt: time.Now().UTC(),
		Charts:      buildCharts(a.Config, sparse, a.Config.Export.MaxPoints),
		Tables:      buildTables(a.Config, filled),
		Alerts:      make([]dashboardAlert, 0, len(results)),
	}
	for _, r := range results {
		alert := dashboardAlert{
			Key:       r.Key,
			Severity:  r.Severity,
			Rule:      r.Rule,
			Note:      r.Note,
			Category:  r.Category,
			Triggered: r.Triggered,
		}
		if !math.IsNaN(r.Value) {
			v := r.Value
			alert.Value = &v
		}
		doc.Alerts = append(doc.Alerts, alert)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(outputDir, "dashboard.json")
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return err
	}
	a.Logger.Info().Str("path", path).Int("charts", len(doc.Charts)).Int("alerts", len(doc.Alerts)).Msg("dashboard exported")

	if !opts.PNG {
		return nil
	}
	for i, def := range a.Config.Panel.Charts {
		name := fmt.Sprintf("chart_%02d.png", i+1)
		pngPath := filepath.Join(outputDir, name)
		if err := writeChartPNG(pngPath, a.Config, def, sparse, a.Config.Export.MaxPoints); err != nil {
			a.Logger.Error().Err(err).Str("chart", def.Title).Msg("failed to render chart")
			continue
		}
		a.Logger.Info().Str("path", pngPath).Msg("chart rendered")
	}
	return nil
}

func buildCharts(cfg *config.Config, p *metrics.Panel, maxPoints int) []dashboardChart {
	charts := make([]dashboardChart, 0, len(cfg.Panel.Charts))
	for _, def := range cfg.Panel.Charts {
		out := dashboardChart{Title: def.Title, YLabel: def.YLabel}
		for _, key := range def.Series {
			dates, values := seriesPoints(p, key, maxPoints)
			points := make([]dashboardPoint, len(dates))
			for i := range dates {
				points[i] = dashboardPoint{Date: dates[i].Format("2006-01-02"), Value: values[i]}
			}
			out.Series = append(out.Series, dashboardSeries{
				Key:    key,
				Label:  cfg.LabelFor(key),
				Unit:   cfg.UnitFor(key),
				Points: points,
			})
		}
		charts = append(charts, out)
	}
	return charts
}

func buildTables(cfg *config.Config, p *metrics.Panel) []dashboardTable {
	statNames := cfg.Metrics.StatNames()
	latest := metrics.LatestAll(p, cfg.MetricKeys(), statNames)

	tables := make([]dashboardTable, 0, len(cfg.Panel.Tables))
	for _, def := range cfg.Panel.Tables {
		out := dashboardTable{Title: def.Title, Columns: def.Columns}
		for _, key := range def.Series {
			entry, ok := latest[key]
			if !ok {
				continue
			}
			row := make(map[string]*string, len(def.Columns)+2)
			row["key"] = strPtr(key)
			row["label"] = strPtr(cfg.LabelFor(key))
			for _, col := range def.Columns {
				switch col {
				case "date":
					row[col] = strPtr(entry.Date.Format("2006-01-02"))
				case "value":
					row[col] = strPtr(fmt.Sprintf("%.4f", entry.Value))
				default:
					if v, present := entry.Stats[col]; present && !math.IsNaN(v) {
						row[col] = strPtr(fmt.Sprintf("%.4f", v))
					} else {
						row[col] = nil
					}
				}
			}
			out.Rows = append(out.Rows, row)
		}
		tables = append(tables, out)
	}
	return tables
}

// seriesPoints extracts the non-missing points of one column, evenly downsampled
// when they exceed maxPoints.
func seriesPoints(p *metrics.Panel, key string, maxPoints int) ([]time.Time, []float64) {
	col := p.Column(key)
	if col == nil {
		return nil, nil
	}

	dates := make([]time.Time, 0, len(col))
	values := make([]float64, 0, len(col))
	for i, v := range col {
		if math.IsNaN(v) {
			continue
		}
		dates = append(dates, p.Date(i))
		values = append(values, v)
	}

	if maxPoints <= 0 || len(dates) <= maxPoints {
		return dates, values
	}

	outDates := make([]time.Time, 0, maxPoints)
	outValues := make([]float64, 0, maxPoints)
	step := float64(len(dates)-1) / float64(maxPoints-1)
	for i := 0; i < maxPoints; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(dates) {
			idx = len(dates) - 1
		}
		outDates = append(outDates, dates[idx])
		outValues = append(outValues, values[idx])
	}
	return outDates, outValues
}

func writeChartPNG(path string, cfg *config.Config, def config.ChartDef, p *metrics.Panel, maxPoints int) error {
	series := make([]chart.Series, 0, len(def.Series))
	for _, key := range def.Series {
		dates, values := seriesPoints(p, key, maxPoints)
		if len(dates) == 0 {
			continue
		}
		series = append(series, chart.TimeSeries{
			Name:    cfg.LabelFor(key),
			XValues: dates,
			YValues: values,
		})
	}
	if len(series) == 0 {
		return fmt.Errorf("chart %q has no data", def.Title)
	}

	graph := chart.Chart{
		Title:  def.Title,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: def.YLabel,
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func strPtr(s string) *string { return &s }
