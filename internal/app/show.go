package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"fed-monitor/internal/metrics"
	"fed-monitor/internal/storage"
)

type transitionLister interface {
	ListRecentTransitions(ctx context.Context, limit int) ([]storage.TransitionLogEntry, error)
}

// Show prints the latest value and statistics for every configured metric, or the
// recent alert transition log.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Transitions {
		return showTransitions(ctx, store, opts.Limit)
	}

	svc := a.newService(store, false)
	panel, err := svc.BuildPanel(ctx, nil, nil, true)
	if err != nil {
		return err
	}
	if panel.Empty() {
		fmt.Fprintln(os.Stdout, "no observations found")
		return nil
	}

	statNames := a.Config.Metrics.StatNames()

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	header := append([]string{"Key", "Date", "Value"}, statNames...)
	fmt.Fprintln(writer, strings.Join(header, "\t"))

	for _, key := range a.Config.MetricKeys() {
		latest, ok := metrics.LatestFor(panel, key, statNames)
		if !ok {
			continue
		}
		row := []string{key, latest.Date.Format("2006-01-02"), fmt.Sprintf("%.4f", latest.Value)}
		for _, name := range statNames {
			if v, present := latest.Stats[name]; present {
				row = append(row, fmt.Sprintf("%.4f", v))
			} else {
				row = append(row, "N/A")
			}
		}
		fmt.Fprintln(writer, strings.Join(row, "\t"))
	}

	writer.Flush()
	return nil
}

func showTransitions(ctx context.Context, store transitionLister, limit int) error {
	entries, err := store.ListRecentTransitions(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "no transitions recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tAlert\tSeverity\tFrom\tTo\tValue")
	for _, e := range entries {
		value := "N/A"
		if e.Value != nil {
			value = fmt.Sprintf("%.4f", *e.Value)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.TriggeredAt.UTC().Format(time.RFC3339), e.AlertID, e.Severity, e.StateFrom, e.StateTo, value)
	}
	writer.Flush()
	return nil
}
