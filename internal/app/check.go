package app

import (
	"context"
	"fmt"
	"math"
	"os"

	"fed-monitor/internal/alerting"
	"fed-monitor/internal/config"
)

// Check evaluates all alerts. A dry run prints evaluation results without touching
// persisted state or sending notifications; otherwise the full state machine runs
// and new breaches are notified.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.InitSchema(ctx); err != nil {
		return err
	}

	svc := a.newService(store, !opts.DryRun)

	if opts.Summary {
		results, err := svc.EvaluateAlerts(ctx)
		if err != nil {
			return err
		}
		printBreachSummary(results)
		return nil
	}

	if opts.DryRun {
		results, err := svc.EvaluateAlerts(ctx)
		if err != nil {
			return err
		}
		printResults(results)
		fmt.Fprintln(os.Stdout, "\n(dry run - no state updates or notifications)")
		return nil
	}

	severities := opts.Severities
	if len(severities) == 0 {
		severities = a.Config.Alerting.NotifySeverities
	}

	results, breaches, err := svc.EvaluationPass(ctx, severities)
	if err != nil {
		return err
	}

	printResults(results)
	if len(breaches) == 0 {
		fmt.Fprintln(os.Stdout, "\nno new state transitions")
		return nil
	}
	fmt.Fprintf(os.Stdout, "\n%d new breach(es) recorded\n", len(breaches))
	return nil
}

func printResults(results []alerting.Result) {
	triggered := 0
	for _, r := range results {
		if r.Triggered {
			triggered++
		}
	}
	fmt.Fprintf(os.Stdout, "alerts evaluated: %d, triggered: %d\n", len(results), triggered)

	for _, r := range results {
		if !r.Triggered {
			continue
		}
		fmt.Fprintf(os.Stdout, "\n[%s] %s\n", r.Severity, r.Key)
		fmt.Fprintf(os.Stdout, "  value: %s\n", formatResultValue(r))
		fmt.Fprintf(os.Stdout, "  rule:  %s\n", r.Rule)
		if r.Note != "" {
			fmt.Fprintf(os.Stdout, "  note:  %s\n", r.Note)
		}
	}
}

func printBreachSummary(results []alerting.Result) {
	bySeverity := map[string][]alerting.Result{}
	for _, r := range results {
		if r.Triggered {
			bySeverity[r.Severity] = append(bySeverity[r.Severity], r)
		}
	}

	fmt.Fprintln(os.Stdout, "current breach summary")
	for _, severity := range []string{config.SeverityCritical, config.SeverityWarning, config.SeverityInfo} {
		breaches := bySeverity[severity]
		fmt.Fprintf(os.Stdout, "\n%s (%d):\n", severity, len(breaches))
		for _, b := range breaches {
			fmt.Fprintf(os.Stdout, "  - %s: %s\n", b.Key, formatResultValue(b))
			fmt.Fprintf(os.Stdout, "    rule: %s\n", b.Rule)
			if b.Note != "" {
				fmt.Fprintf(os.Stdout, "    %s\n", b.Note)
			}
		}
	}
}

func formatResultValue(r alerting.Result) string {
	if r.NoData || math.IsNaN(r.Value) {
		return "N/A"
	}
	return fmt.Sprintf("%.4f", r.Value)
}
